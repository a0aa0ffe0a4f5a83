package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/deposit_ledger/internal/assets"
	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
	"github.com/congo-pay/deposit_ledger/internal/metrics"
	"github.com/congo-pay/deposit_ledger/internal/notification"
)

// Service couples asset transfers into and out of custody with the ledger
// balance of the entry.
type Service struct {
	store    ledger.Store
	assets   assets.Service
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService prepares a balance mutation service.
func NewService(store ledger.Store, assetSvc assets.Service, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if assetSvc == nil {
		return nil, fmt.Errorf("asset service is required")
	}
	return &Service{store: store, assets: assetSvc, notifier: notifier, logger: logger}, nil
}

// ModifyInput captures a deposit (Increase) or withdrawal request.
type ModifyInput struct {
	Owner    key.Key
	Asset    key.Key
	Signer   key.Key
	Amount   uint64
	Increase bool
}

// Result is the outcome of a balance mutation.
type Result struct {
	Address  key.Key
	Balance  uint64
	Decimals uint8
	Kind     string
}

// ModifyBalance moves Amount into custody and credits the entry, or debits
// the entry and returns Amount to the owner. Either both the asset transfer
// and the ledger update persist or neither does.
func (s *Service) ModifyBalance(ctx context.Context, input ModifyInput) (res Result, err error) {
	defer func() { metrics.Record(metrics.OpModifyBalance, err) }()

	if input.Amount == 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidArgument)
	}
	if input.Signer != input.Owner {
		return Result{}, ledger.ErrUnauthorized
	}

	addr := ledger.DepositAddress(input.Owner, input.Asset)
	decimals, err := s.assets.Decimals(ctx, input.Asset)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ledger.ErrExternalCallFailure, err)
	}
	userHolding, err := s.assets.EnsureHolding(ctx, input.Owner, input.Asset)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ledger.ErrExternalCallFailure, err)
	}
	custody, err := s.assets.EnsureHolding(ctx, addr, input.Asset)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ledger.ErrExternalCallFailure, err)
	}

	var (
		moved   *assets.TransferRequest
		balance uint64
	)
	err = s.store.Atomic(ctx, []key.Key{addr}, func(tx ledger.Tx) error {
		moved = nil
		entry, err := tx.Get(ctx, addr)
		if err != nil {
			return err
		}
		if entry.Owner != input.Owner || entry.Asset != input.Asset {
			return ledger.ErrUnauthorized
		}

		var req assets.TransferRequest
		if input.Increase {
			if err := entry.Credit(input.Amount); err != nil {
				return err
			}
			req = assets.TransferRequest{
				From:      userHolding,
				To:        custody,
				Asset:     input.Asset,
				Authority: input.Owner,
				Signers:   []key.Key{input.Signer},
				Amount:    input.Amount,
				Decimals:  decimals,
			}
		} else {
			if err := entry.Debit(input.Amount); err != nil {
				return err
			}
			capability := entry.Capability()
			req = assets.TransferRequest{
				From:       custody,
				To:         userHolding,
				Asset:      input.Asset,
				Authority:  addr,
				Capability: &capability,
				Amount:     input.Amount,
				Decimals:   decimals,
			}
		}

		if err := s.assets.Transfer(ctx, req); err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrExternalCallFailure, err)
		}
		moved = &req

		balance = entry.Balance
		return tx.Put(ctx, entry)
	})
	if err != nil {
		if moved != nil {
			err = s.compensate(ctx, *moved, input, err)
		}
		return Result{}, err
	}

	kind := notification.KindWithdrawal
	if input.Increase {
		kind = notification.KindDeposit
	}
	if s.logger != nil {
		s.logger.Info("deposit.balance_modified",
			slog.String("address", addr.String()),
			slog.String("kind", kind),
			slog.Uint64("amount", input.Amount),
			slog.Uint64("balance", balance),
		)
	}
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.NewMessage(kind, input.Owner.String(), addr.String(), input.Amount))
	}

	return Result{Address: addr, Balance: balance, Decimals: decimals, Kind: kind}, nil
}

// compensate reverses an asset transfer whose ledger update did not commit.
func (s *Service) compensate(ctx context.Context, moved assets.TransferRequest, input ModifyInput, cause error) error {
	reverse := assets.TransferRequest{
		From:     moved.To,
		To:       moved.From,
		Asset:    moved.Asset,
		Amount:   moved.Amount,
		Decimals: moved.Decimals,
	}
	if input.Increase {
		capability := ledger.NewCapability(ledger.DepositTag, input.Owner, input.Asset)
		reverse.Authority = capability.Address()
		reverse.Capability = &capability
	} else {
		reverse.Authority = input.Owner
		reverse.Signers = []key.Key{input.Signer}
	}

	err := s.assets.Transfer(ctx, reverse)
	metrics.Record(metrics.OpCompensation, err)
	if err == nil {
		return cause
	}
	if s.logger != nil {
		s.logger.Error("deposit.compensation_failed",
			slog.String("from", reverse.From.String()),
			slog.String("to", reverse.To.String()),
			slog.Uint64("amount", reverse.Amount),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
	}
	return errors.Join(cause, fmt.Errorf("%w: compensation failed: %v", ledger.ErrExternalCallFailure, err))
}
