package conversation

import (
	"fmt"

	"github.com/ashureev/sdlc-studio/internal/domain"
)

var allowedTransitions = map[domain.Phase]map[domain.Phase]struct{}{
	domain.PhaseAwaitingSpec: {
		domain.PhaseAsking:    {},
		domain.PhaseSatisfied: {},
	},
	domain.PhaseAsking: {
		domain.PhaseAsking:    {},
		domain.PhaseSatisfied: {},
	},
	domain.PhaseSatisfied: {
		domain.PhaseAwaitingFeedback: {},
	},
	domain.PhaseAwaitingFeedback: {
		domain.PhaseOutputReady: {},
	},
	domain.PhaseOutputReady: {},
}

func validateTransition(from, to domain.Phase) error {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source phase %q", ErrInvalidTransition, from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func requirePhase(run *domain.RunState, want domain.Phase) error {
	if run.Phase != want {
		return fmt.Errorf("%w: %s is %s, want %s", ErrInvalidTransition, run.Agent, run.Phase, want)
	}
	return nil
}
