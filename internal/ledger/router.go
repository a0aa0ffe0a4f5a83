package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

const defaultRouteAttempts = 3

// Router is the Store services run against. It sends each atomic unit to
// the layer that currently holds its entries, so the same ledger logic runs
// unchanged on the base and execution layers.
type Router struct {
	base     BaseStore
	replica  Replica
	attempts int
}

// NewRouter builds a Router over both layers.
func NewRouter(base BaseStore, replica Replica) *Router {
	return &Router{base: base, replica: replica, attempts: defaultRouteAttempts}
}

// Base exposes the settlement layer.
func (r *Router) Base() BaseStore { return r.base }

// Replica exposes the execution layer.
func (r *Router) Replica() Replica { return r.replica }

// State reports which layer holds the entry at addr.
func (r *Router) State(ctx context.Context, addr key.Key) (State, error) {
	return r.base.State(ctx, addr)
}

// Atomic runs fn on the layer holding addrs. A handoff racing the lookup is
// detected by the layer itself (ErrDelegated on the base, ErrNotFound on the
// execution layer) before fn reaches any external call, and the unit is
// re-routed.
func (r *Router) Atomic(ctx context.Context, addrs []key.Key, fn func(Tx) error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		var delegated bool
		delegated, err = r.placement(ctx, addrs)
		if err != nil {
			return err
		}

		if !delegated {
			err = r.base.Atomic(ctx, addrs, fn)
			if errors.Is(err, ErrDelegated) {
				continue
			}
			return err
		}

		err = r.replica.Atomic(ctx, addrs, fn)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return err
	}
	return err
}

func (r *Router) placement(ctx context.Context, addrs []key.Key) (bool, error) {
	var delegated, resident bool
	for _, addr := range addrs {
		state, err := r.base.State(ctx, addr)
		if err != nil {
			return false, err
		}
		switch state {
		case StateDelegated:
			delegated = true
		case StateBaseResident:
			resident = true
		}
	}
	if delegated && resident {
		return false, fmt.Errorf("%w: entries live on different layers", ErrInvalidState)
	}
	return delegated, nil
}
