package machine

// Status is the lifecycle status of a machine instance.
type Status int

const (
	// StatusUninitialized is the status before the first Start.
	StatusUninitialized Status = iota
	// StatusRunning means the machine accepts Step calls.
	StatusRunning
	// StatusStopped means the machine was stopped and may be restarted.
	StatusStopped
	// StatusErrored means fault recovery itself failed. The machine is
	// terminal unless the embedding program restarts it.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}
