package submitter

import (
	"fmt"

	"go.uber.org/zap"
)

// Phase is a step of the per-submission state machine.
type Phase int

const (
	PhaseBuilt Phase = iota
	PhaseDispatched
	PhasePending
	PhaseConfirmed
	PhaseFailed
	PhaseTimedOut
)

func (p Phase) String() string {
	switch p {
	case PhaseBuilt:
		return "built"
	case PhaseDispatched:
		return "dispatched"
	case PhasePending:
		return "pending"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseFailed:
		return "failed"
	case PhaseTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed from p.
func (p Phase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseFailed || p == PhaseTimedOut
}

var transitions = map[Phase][]Phase{
	PhaseBuilt:      {PhaseDispatched, PhaseFailed, PhaseTimedOut},
	PhaseDispatched: {PhasePending, PhaseFailed, PhaseTimedOut},
	PhasePending:    {PhaseConfirmed, PhaseFailed, PhaseTimedOut},
}

// lifecycle records the phases of one submission and rejects illegal moves.
type lifecycle struct {
	phases []Phase
	logger *zap.Logger
}

func newLifecycle(logger *zap.Logger) *lifecycle {
	return &lifecycle{phases: []Phase{PhaseBuilt}, logger: logger}
}

func (l *lifecycle) current() Phase {
	return l.phases[len(l.phases)-1]
}

func (l *lifecycle) advance(to Phase) error {
	from := l.current()
	for _, allowed := range transitions[from] {
		if allowed == to {
			l.phases = append(l.phases, to)
			l.logger.Debug("submission phase", zap.Stringer("from", from), zap.Stringer("to", to))
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", from, to)
}

func (l *lifecycle) history() []Phase {
	return append([]Phase(nil), l.phases...)
}
