package assets

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
)

func TestMemoryTransferBySigner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	asset, alice, bob := key.New(), key.New(), key.New()
	m.RegisterAsset(asset, 6)

	from, err := m.EnsureHolding(ctx, alice, asset)
	if err != nil {
		t.Fatalf("ensure alice: %v", err)
	}
	to, err := m.EnsureHolding(ctx, bob, asset)
	if err != nil {
		t.Fatalf("ensure bob: %v", err)
	}
	if err := m.Fund(alice, asset, 1_000); err != nil {
		t.Fatalf("fund: %v", err)
	}

	req := TransferRequest{From: from, To: to, Asset: asset, Authority: alice, Amount: 400, Decimals: 6}
	if err := m.Transfer(ctx, req); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("expected unsigned transfer to be refused, got %v", err)
	}

	req.Signers = []key.Key{alice}
	if err := m.Transfer(ctx, req); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if m.Balance(alice, asset) != 600 || m.Balance(bob, asset) != 400 {
		t.Fatalf("unexpected balances alice=%d bob=%d", m.Balance(alice, asset), m.Balance(bob, asset))
	}

	req.Decimals = 9
	if err := m.Transfer(ctx, req); !errors.Is(err, ErrDecimalsMismatch) {
		t.Fatalf("expected decimals mismatch, got %v", err)
	}

	req.Decimals = 6
	req.Amount = 10_000
	if err := m.Transfer(ctx, req); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestMemoryTransferByCapability(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	asset, owner := key.New(), key.New()
	m.RegisterAsset(asset, 2)

	entry := ledger.Entry{Owner: owner, Asset: asset}
	custody, _ := m.EnsureHolding(ctx, entry.Address(), asset)
	user, _ := m.EnsureHolding(ctx, owner, asset)
	if err := m.Fund(entry.Address(), asset, 50); err != nil {
		t.Fatalf("fund custody: %v", err)
	}

	other := ledger.Entry{Owner: key.New(), Asset: asset}.Capability()
	req := TransferRequest{From: custody, To: user, Asset: asset, Authority: entry.Address(), Capability: &other, Amount: 20, Decimals: 2}
	if err := m.Transfer(ctx, req); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("expected foreign capability to be refused, got %v", err)
	}

	own := entry.Capability()
	req.Capability = &own
	if err := m.Transfer(ctx, req); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if m.Balance(entry.Address(), asset) != 30 || m.Balance(owner, asset) != 20 {
		t.Fatalf("unexpected balances custody=%d user=%d", m.Balance(entry.Address(), asset), m.Balance(owner, asset))
	}
}
