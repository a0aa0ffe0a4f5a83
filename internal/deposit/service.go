package deposit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/deposit_ledger/internal/assets"
	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
	"github.com/congo-pay/deposit_ledger/internal/metrics"
)

// Service creates and reads deposit entries.
type Service struct {
	store  *ledger.Router
	assets assets.Service
	logger *slog.Logger
}

// NewService builds a deposit service instance.
func NewService(store *ledger.Router, assetSvc assets.Service, logger *slog.Logger) *Service {
	return &Service{store: store, assets: assetSvc, logger: logger}
}

// InitializeInput captures data required to initialize an entry. Address is
// optional; when set it must be the derived address of (Owner, Asset).
type InitializeInput struct {
	Owner   key.Key
	Asset   key.Key
	Address *key.Key
}

// Initialize creates the entry for (owner, asset) with a zero balance if it
// does not exist yet, and returns it unchanged otherwise.
func (s *Service) Initialize(ctx context.Context, input InitializeInput) (d Deposit, err error) {
	defer func() { metrics.Record(metrics.OpInitialize, err) }()

	if input.Owner.IsZero() || input.Asset.IsZero() {
		return Deposit{}, fmt.Errorf("%w: owner and asset are required", ledger.ErrInvalidArgument)
	}
	addr := ledger.DepositAddress(input.Owner, input.Asset)
	if input.Address != nil {
		if err := ledger.Verify(*input.Address, input.Owner, input.Asset); err != nil {
			return Deposit{}, err
		}
	}

	decimals, err := s.assets.Decimals(ctx, input.Asset)
	if err != nil {
		return Deposit{}, fmt.Errorf("%w: %v", ledger.ErrExternalCallFailure, err)
	}

	var (
		stored  ledger.Entry
		created bool
	)
	err = s.store.Atomic(ctx, []key.Key{addr}, func(tx ledger.Tx) error {
		var err error
		stored, created, err = tx.Insert(ctx, ledger.Entry{Owner: input.Owner, Asset: input.Asset})
		return err
	})
	if err != nil {
		return Deposit{}, err
	}

	if created && s.logger != nil {
		s.logger.Info("deposit.initialized",
			slog.String("address", addr.String()),
			slog.String("owner", input.Owner.String()),
			slog.String("asset", input.Asset.String()),
		)
	}

	state, err := s.store.State(ctx, addr)
	if err != nil {
		return Deposit{}, err
	}
	return fromEntry(stored, decimals, state), nil
}

// Get returns the entry of (owner, asset) from whichever layer holds it.
func (s *Service) Get(ctx context.Context, owner, asset key.Key) (Deposit, error) {
	addr := ledger.DepositAddress(owner, asset)
	var entry ledger.Entry
	err := s.store.Atomic(ctx, []key.Key{addr}, func(tx ledger.Tx) error {
		var err error
		entry, err = tx.Get(ctx, addr)
		return err
	})
	if err != nil {
		return Deposit{}, err
	}

	decimals, err := s.assets.Decimals(ctx, asset)
	if err != nil {
		return Deposit{}, fmt.Errorf("%w: %v", ledger.ErrExternalCallFailure, err)
	}
	state, err := s.store.State(ctx, addr)
	if err != nil {
		return Deposit{}, err
	}
	return fromEntry(entry, decimals, state), nil
}
