package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
	"github.com/congo-pay/deposit_ledger/internal/metrics"
	"github.com/congo-pay/deposit_ledger/internal/notification"
)

// Service moves balance between two entries of the same asset without
// touching custody.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a transfer service.
func NewService(store ledger.Store, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: logger}
}

// TransferInput captures the data needed to move balance between entries.
// Destination is the address of an initialized entry.
type TransferInput struct {
	Signer      key.Key
	Owner       key.Key
	Asset       key.Key
	Destination key.Key
	Amount      uint64
}

// TransferResult describes the ledger outcome of a transfer.
type TransferResult struct {
	Source        key.Key
	Destination   key.Key
	SourceBalance uint64
	DestBalance   uint64
}

// Transfer debits the signer's entry and credits the destination in one
// atomic unit. The sum of both balances is unchanged.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (res TransferResult, err error) {
	defer func() { metrics.Record(metrics.OpTransfer, err) }()

	if input.Amount == 0 {
		return TransferResult{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidArgument)
	}
	if input.Signer != input.Owner {
		return TransferResult{}, ledger.ErrUnauthorized
	}
	source := ledger.DepositAddress(input.Owner, input.Asset)
	res = TransferResult{Source: source, Destination: input.Destination}

	err = s.store.Atomic(ctx, []key.Key{source, input.Destination}, func(tx ledger.Tx) error {
		from, err := tx.Get(ctx, source)
		if err != nil {
			return err
		}
		if from.Owner != input.Signer {
			return ledger.ErrUnauthorized
		}
		to, err := tx.Get(ctx, input.Destination)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if to.Asset != from.Asset {
			return ledger.ErrAssetMismatch
		}

		if source == input.Destination {
			if from.Balance < input.Amount {
				return ledger.ErrInsufficientBalance
			}
			res.SourceBalance, res.DestBalance = from.Balance, from.Balance
			return nil
		}

		if err := from.Debit(input.Amount); err != nil {
			return err
		}
		if err := to.Credit(input.Amount); err != nil {
			return err
		}
		if err := tx.Put(ctx, from); err != nil {
			return err
		}
		if err := tx.Put(ctx, to); err != nil {
			return err
		}
		res.SourceBalance, res.DestBalance = from.Balance, to.Balance
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	if s.logger != nil {
		s.logger.Info("deposit.transferred",
			slog.String("source", source.String()),
			slog.String("destination", input.Destination.String()),
			slog.Uint64("amount", input.Amount),
		)
	}
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.NewMessage(notification.KindTransfer, input.Destination.String(), source.String(), input.Amount))
	}
	return res, nil
}
