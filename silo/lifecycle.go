package silo

import (
	"fmt"

	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
)

var allowedTransitions = map[entities.SiloState]map[entities.SiloState]struct{}{
	entities.SiloCreated: {
		entities.SiloRunning:    {},
		entities.SiloTerminated: {},
		entities.SiloFailed:     {},
	},
	entities.SiloRunning: {
		entities.SiloSuspended:  {},
		entities.SiloTerminated: {},
		entities.SiloFailed:     {},
	},
	entities.SiloSuspended: {
		entities.SiloRunning:    {},
		entities.SiloTerminated: {},
		entities.SiloFailed:     {},
	},
	entities.SiloTerminated: {},
	entities.SiloFailed:     {},
}

func validateTransition(from, to entities.SiloState) error {
	if from == to {
		return nil
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source state %q", domainerrors.ErrInvalidTransition, from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", domainerrors.ErrInvalidTransition, from, to)
	}
	return nil
}
