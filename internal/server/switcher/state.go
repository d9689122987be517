package switcher

// State is a stage of a context switch.
type State int

const (
	Idle State = iota
	Saving
	Clearing
	Loading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Saving:
		return "saving"
	case Clearing:
		return "clearing"
	case Loading:
		return "loading"
	default:
		return "unknown"
	}
}
