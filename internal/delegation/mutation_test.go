package delegation

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/deposit_ledger/internal/assets"
	"github.com/congo-pay/deposit_ledger/internal/funding"
	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
	"github.com/congo-pay/deposit_ledger/internal/logging"
	"github.com/congo-pay/deposit_ledger/internal/payments"
)

type services struct {
	bridge   *Bridge
	base     ledger.BaseStore
	holdings *assets.Memory
	funding  *funding.Service
	payments *payments.Service
	asset    key.Key
}

func newServices(t *testing.T, replica ledger.Replica) *services {
	t.Helper()
	base := ledger.NewInMemory()
	router := ledger.NewRouter(base, replica)
	ectx := ExecutionContext{Context: key.New(), Program: key.New()}
	bridge := NewBridge(router, NewHandoff(base, replica, ectx, nil), Options{ExecutionContext: ectx})

	holdings := assets.NewMemory()
	asset := key.New()
	holdings.RegisterAsset(asset, 6)
	fundingSvc, err := funding.NewService(router, holdings, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new funding service: %v", err)
	}
	return &services{
		bridge:   bridge,
		base:     base,
		holdings: holdings,
		funding:  fundingSvc,
		payments: payments.NewService(router, nil, logging.Discard()),
		asset:    asset,
	}
}

func (s *services) open(t *testing.T, funds uint64) key.Key {
	t.Helper()
	owner := key.New()
	ledger.SeedBalance(s.base, owner, s.asset, 0)
	if err := s.holdings.Fund(owner, s.asset, funds); err != nil {
		t.Fatalf("fund owner: %v", err)
	}
	return owner
}

func (s *services) modify(owner key.Key, amount uint64, increase bool) (funding.Result, error) {
	return s.funding.ModifyBalance(context.Background(), funding.ModifyInput{
		Owner: owner, Asset: s.asset, Signer: owner, Amount: amount, Increase: increase,
	})
}

func (s *services) balance(t *testing.T, owner key.Key) uint64 {
	t.Helper()
	ctx := context.Background()
	addr := ledger.DepositAddress(owner, s.asset)
	var balance uint64
	err := s.base.Atomic(ctx, []key.Key{addr}, func(tx ledger.Tx) error {
		e, err := tx.Get(ctx, addr)
		balance = e.Balance
		return err
	})
	if err != nil {
		t.Fatalf("base balance: %v", err)
	}
	return balance
}

func modifyWhileDelegated(t *testing.T, replica ledger.Replica) {
	s := newServices(t, replica)
	ctx := context.Background()
	owner := s.open(t, 100)
	addr := ledger.DepositAddress(owner, s.asset)

	if err := s.bridge.Delegate(ctx, owner, s.asset); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if res, err := s.modify(owner, 30, true); err != nil || res.Balance != 30 {
		t.Fatalf("deposit while delegated: %+v %v", res, err)
	}
	if res, err := s.modify(owner, 20, false); err != nil || res.Balance != 10 {
		t.Fatalf("withdraw while delegated: %+v %v", res, err)
	}
	if _, err := s.modify(owner, 11, false); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got := s.balance(t, owner); got != 0 {
		t.Fatalf("base copy changed while delegated: %d", got)
	}

	if err := s.bridge.Undelegate(ctx, owner, owner, s.asset); err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	if got := s.balance(t, owner); got != 10 {
		t.Fatalf("expected 10 committed to base, got %d", got)
	}
	if s.holdings.Balance(addr, s.asset) != 10 || s.holdings.Balance(owner, s.asset) != 90 {
		t.Fatalf("unexpected holdings custody=%d user=%d", s.holdings.Balance(addr, s.asset), s.holdings.Balance(owner, s.asset))
	}
	if res, err := s.modify(owner, 5, false); err != nil || res.Balance != 5 {
		t.Fatalf("withdraw after undelegate: %+v %v", res, err)
	}
}

func transferWhileDelegated(t *testing.T, replica ledger.Replica) {
	s := newServices(t, replica)
	ctx := context.Background()
	alice, bob, carol := s.open(t, 100), s.open(t, 0), s.open(t, 0)
	if _, err := s.modify(alice, 60, true); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	for _, owner := range []key.Key{alice, bob} {
		if err := s.bridge.Delegate(ctx, owner, s.asset); err != nil {
			t.Fatalf("delegate: %v", err)
		}
	}

	_, err := s.payments.Transfer(ctx, payments.TransferInput{
		Signer: alice, Owner: alice, Asset: s.asset,
		Destination: ledger.DepositAddress(carol, s.asset), Amount: 10,
	})
	if !errors.Is(err, ledger.ErrInvalidState) {
		t.Fatalf("expected invalid state across layers, got %v", err)
	}

	res, err := s.payments.Transfer(ctx, payments.TransferInput{
		Signer: alice, Owner: alice, Asset: s.asset,
		Destination: ledger.DepositAddress(bob, s.asset), Amount: 25,
	})
	if err != nil {
		t.Fatalf("transfer between delegated entries: %v", err)
	}
	if res.SourceBalance != 35 || res.DestBalance != 25 {
		t.Fatalf("unexpected balances %+v", res)
	}

	for _, owner := range []key.Key{alice, bob} {
		if err := s.bridge.Undelegate(ctx, owner, owner, s.asset); err != nil {
			t.Fatalf("undelegate: %v", err)
		}
	}
	if a, b, c := s.balance(t, alice), s.balance(t, bob), s.balance(t, carol); a != 35 || b != 25 || c != 0 {
		t.Fatalf("unexpected committed balances alice=%d bob=%d carol=%d", a, b, c)
	}
}

func miniRedisReplica(t *testing.T) ledger.Replica {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return ledger.NewRedisReplica(client)
}

func TestModifyBalanceWhileDelegated(t *testing.T) {
	modifyWhileDelegated(t, ledger.NewInMemoryReplica())
}

func TestModifyBalanceWhileDelegatedOnRedis(t *testing.T) {
	modifyWhileDelegated(t, miniRedisReplica(t))
}

func TestTransferWhileDelegated(t *testing.T) {
	transferWhileDelegated(t, ledger.NewInMemoryReplica())
}

func TestTransferWhileDelegatedOnRedis(t *testing.T) {
	transferWhileDelegated(t, miniRedisReplica(t))
}
