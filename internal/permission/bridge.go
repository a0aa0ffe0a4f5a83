package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
	"github.com/congo-pay/deposit_ledger/internal/metrics"
	"github.com/congo-pay/deposit_ledger/internal/notification"
)

// Bridge issues a group and a permission over an entry as one operation.
type Bridge struct {
	store     ledger.Store
	authority Authority
	notifier  notification.Notifier
	logger    *slog.Logger

	mu      sync.Mutex
	orphans []key.Key
}

// NewBridge wires the access control bridge.
func NewBridge(store ledger.Store, authority Authority, notifier notification.Notifier, logger *slog.Logger) *Bridge {
	return &Bridge{store: store, authority: authority, notifier: notifier, logger: logger}
}

// CreatePermission creates group groupID with the owner as its only member
// and grants it a permission over the entry of (owner, asset), signed by the
// entry's capability. If the permission cannot be issued the group is
// removed again, or recorded as orphaned when the authority cannot remove it.
func (b *Bridge) CreatePermission(ctx context.Context, owner, asset, groupID key.Key) (grant Grant, err error) {
	defer func() { metrics.Record(metrics.OpCreatePermission, err) }()

	addr := ledger.DepositAddress(owner, asset)
	var entry ledger.Entry
	err = b.store.Atomic(ctx, []key.Key{addr}, func(tx ledger.Tx) error {
		var err error
		entry, err = tx.Get(ctx, addr)
		return err
	})
	if err != nil {
		return Grant{}, err
	}
	if entry.Owner != owner || entry.Asset != asset {
		return Grant{}, ledger.ErrUnauthorized
	}

	members := []key.Key{owner}
	if err := b.authority.CreateGroup(ctx, groupID, members); err != nil {
		return Grant{}, fmt.Errorf("%w: create group: %v", ledger.ErrExternalCallFailure, err)
	}

	err = b.authority.CreatePermission(ctx, Request{
		Group:      groupID,
		Account:    addr,
		Owner:      addr,
		Capability: entry.Capability(),
	})
	if err != nil {
		cause := fmt.Errorf("%w: create permission: %v", ledger.ErrExternalCallFailure, err)
		return Grant{}, b.compensate(ctx, groupID, cause)
	}

	if b.logger != nil {
		b.logger.Info("deposit.permission_created",
			slog.String("address", addr.String()),
			slog.String("group", groupID.String()),
		)
	}
	if b.notifier != nil {
		_ = b.notifier.Send(ctx, notification.NewMessage(notification.KindPermission, owner.String(), addr.String(), 0))
	}
	return Grant{Group: groupID, Account: addr, Members: members}, nil
}

func (b *Bridge) compensate(ctx context.Context, groupID key.Key, cause error) error {
	remover, ok := b.authority.(GroupRemover)
	if ok {
		err := remover.DeleteGroup(ctx, groupID)
		metrics.Record(metrics.OpCompensation, err)
		if err == nil {
			return cause
		}
		cause = errors.Join(cause, fmt.Errorf("delete group: %w", err))
	}

	b.mu.Lock()
	b.orphans = append(b.orphans, groupID)
	b.mu.Unlock()
	if b.logger != nil {
		b.logger.Warn("deposit.permission_group_orphaned",
			slog.String("group", groupID.String()),
			slog.Any("error", cause),
		)
	}
	return cause
}

// Orphans lists groups left behind by permissions that failed to issue.
func (b *Bridge) Orphans() []key.Key {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]key.Key(nil), b.orphans...)
}
