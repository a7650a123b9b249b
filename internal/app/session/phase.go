package session

// Phase represents the session lifecycle phase.
type Phase int

const (
	PhaseIdle       Phase = iota // Created, not started
	PhaseActive                  // Engine running
	PhaseTerminated              // Closed, or the backend died
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
