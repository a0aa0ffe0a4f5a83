package delegation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
	"github.com/congo-pay/deposit_ledger/internal/metrics"
	"github.com/congo-pay/deposit_ledger/internal/notification"
)

// Bridge drives the BaseResident <-> Delegated state machine of entries.
type Bridge struct {
	store    *ledger.Router
	protocol Protocol
	config   Config
	ectx     ExecutionContext
	notifier notification.Notifier
	logger   *slog.Logger
}

// Options configures a Bridge.
type Options struct {
	Config           Config
	ExecutionContext ExecutionContext
	Notifier         notification.Notifier
	Logger           *slog.Logger
}

// NewBridge builds a delegation bridge.
func NewBridge(store *ledger.Router, protocol Protocol, opts Options) *Bridge {
	return &Bridge{
		store:    store,
		protocol: protocol,
		config:   opts.Config,
		ectx:     opts.ExecutionContext,
		notifier: opts.Notifier,
		logger:   opts.Logger,
	}
}

// State reports where the entry of (owner, asset) lives.
func (b *Bridge) State(ctx context.Context, owner, asset key.Key) (ledger.State, error) {
	return b.store.State(ctx, ledger.DepositAddress(owner, asset))
}

// Delegate hands the entry to the execution layer. It fails with
// ErrInvalidState unless the entry is base resident.
func (b *Bridge) Delegate(ctx context.Context, owner, asset key.Key) (err error) {
	defer func() { metrics.Record(metrics.OpDelegate, err) }()

	addr := ledger.DepositAddress(owner, asset)
	if err := b.expect(ctx, addr, ledger.StateBaseResident); err != nil {
		return err
	}

	seeds := Seeds{Tag: ledger.DepositTag, Owner: owner, Asset: asset}
	if err := b.protocol.Delegate(ctx, addr, seeds, b.config); err != nil {
		return external("delegate", err)
	}

	b.record(ctx, notification.KindDelegated, owner, addr)
	return nil
}

// Undelegate commits the execution copy back to the base layer. The signer
// must own the entry.
func (b *Bridge) Undelegate(ctx context.Context, signer, owner, asset key.Key) (err error) {
	defer func() { metrics.Record(metrics.OpUndelegate, err) }()

	if signer != owner {
		return ledger.ErrUnauthorized
	}
	addr := ledger.DepositAddress(owner, asset)
	if err := b.expect(ctx, addr, ledger.StateDelegated); err != nil {
		return err
	}

	var entry ledger.Entry
	err = b.store.Replica().Atomic(ctx, []key.Key{addr}, func(tx ledger.Tx) error {
		var err error
		entry, err = tx.Get(ctx, addr)
		return err
	})
	if err != nil {
		return err
	}
	if entry.Owner != signer {
		return ledger.ErrUnauthorized
	}

	if err := b.protocol.CommitAndUndelegate(ctx, []key.Key{addr}, b.ectx); err != nil {
		return external("commit and undelegate", err)
	}

	b.record(ctx, notification.KindUndelegated, owner, addr)
	return nil
}

func (b *Bridge) expect(ctx context.Context, addr key.Key, want ledger.State) error {
	state, err := b.store.State(ctx, addr)
	if err != nil {
		return err
	}
	if state != want {
		return fmt.Errorf("%w: entry is %s, want %s", ledger.ErrInvalidState, state, want)
	}
	return nil
}

func (b *Bridge) record(ctx context.Context, kind string, owner, addr key.Key) {
	if b.logger != nil {
		b.logger.Info("deposit."+kind, slog.String("address", addr.String()))
	}
	if b.notifier != nil {
		_ = b.notifier.Send(ctx, notification.NewMessage(kind, owner.String(), addr.String(), 0))
	}
}

// external keeps state machine and derivation errors as they are and
// reports everything else as a failed collaborator call.
func external(call string, err error) error {
	if errors.Is(err, ledger.ErrInvalidState) || errors.Is(err, ledger.ErrAddressDerivationMismatch) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ledger.ErrExternalCallFailure, call, err)
}
