package delegation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
)

// Handoff is the in-process Protocol. It is the only code that moves an
// entry between the base store and the replica.
type Handoff struct {
	base    ledger.BaseStore
	replica ledger.Replica
	ectx    ExecutionContext
	logger  *slog.Logger
}

// NewHandoff builds a Protocol over both layers. Undelegations must present ectx.
func NewHandoff(base ledger.BaseStore, replica ledger.Replica, ectx ExecutionContext, logger *slog.Logger) *Handoff {
	return &Handoff{base: base, replica: replica, ectx: ectx, logger: logger}
}

// Delegate marks account delegated on the base layer and installs its
// execution copy in the same base transaction.
func (h *Handoff) Delegate(ctx context.Context, account key.Key, seeds Seeds, cfg Config) error {
	if ledger.Derive(seeds.Tag, seeds.Owner, seeds.Asset) != account {
		return ledger.ErrAddressDerivationMismatch
	}

	installed := false
	err := h.base.AtomicBase(ctx, []key.Key{account}, func(tx ledger.BaseTx) error {
		installed = false
		state, err := tx.State(ctx, account)
		if err != nil {
			return err
		}
		if state != ledger.StateBaseResident {
			return fmt.Errorf("%w: entry is %s", ledger.ErrInvalidState, state)
		}
		entry, err := tx.Get(ctx, account)
		if err != nil {
			return err
		}
		if err := tx.SetState(ctx, account, ledger.StateDelegated); err != nil {
			return err
		}
		if err := h.replica.Install(ctx, entry); err != nil {
			return err
		}
		installed = true
		return nil
	})
	if err != nil {
		if installed {
			if evictErr := h.replica.Evict(ctx, account); evictErr != nil {
				return errors.Join(err, evictErr)
			}
		}
		return err
	}

	if h.logger != nil {
		h.logger.Debug("delegation.installed",
			slog.String("account", account.String()),
			slog.Duration("commit_frequency", cfg.CommitFrequency),
			slog.String("validator", cfg.Validator.String()),
		)
	}
	return nil
}

// CommitAndUndelegate seals each execution copy, writes it back to the base
// layer and evicts it.
func (h *Handoff) CommitAndUndelegate(ctx context.Context, accounts []key.Key, ectx ExecutionContext) error {
	if ectx != h.ectx {
		return ErrContextMismatch
	}
	for _, account := range accounts {
		if err := h.undelegate(ctx, account); err != nil {
			return fmt.Errorf("undelegate %s: %w", account, err)
		}
	}
	return nil
}

func (h *Handoff) undelegate(ctx context.Context, account key.Key) error {
	state, err := h.base.State(ctx, account)
	if err != nil {
		return err
	}
	if state != ledger.StateDelegated {
		return fmt.Errorf("%w: entry is %s", ledger.ErrInvalidState, state)
	}

	sealed, err := h.replica.Seal(ctx, account)
	if err != nil {
		return err
	}

	err = h.base.AtomicBase(ctx, []key.Key{account}, func(tx ledger.BaseTx) error {
		state, err := tx.State(ctx, account)
		if err != nil {
			return err
		}
		if state != ledger.StateDelegated {
			return fmt.Errorf("%w: entry is %s", ledger.ErrInvalidState, state)
		}
		if err := tx.SetState(ctx, account, ledger.StateBaseResident); err != nil {
			return err
		}
		return tx.Put(ctx, sealed)
	})
	if err != nil {
		if reErr := h.reopen(ctx, sealed); reErr != nil {
			return errors.Join(err, reErr)
		}
		return err
	}

	if err := h.replica.Evict(ctx, account); err != nil && h.logger != nil {
		h.logger.Warn("delegation.evict_failed",
			slog.String("account", account.String()),
			slog.Any("error", err),
		)
	}
	return nil
}

// reopen makes a sealed copy writable again after a failed write-back, but
// only while the base layer still records the entry as delegated. If another
// undelegation already returned the entry, the stale copy is evicted instead.
func (h *Handoff) reopen(ctx context.Context, sealed ledger.Entry) error {
	account := sealed.Address()
	stillDelegated := false
	err := h.base.AtomicBase(ctx, []key.Key{account}, func(tx ledger.BaseTx) error {
		stillDelegated = false
		state, err := tx.State(ctx, account)
		if err != nil {
			return err
		}
		if state != ledger.StateDelegated {
			return nil
		}
		if err := h.replica.Install(ctx, sealed); err != nil {
			return err
		}
		stillDelegated = true
		return nil
	})
	if err != nil {
		return err
	}
	if !stillDelegated {
		return h.replica.Evict(ctx, account)
	}
	return nil
}
