package delegation

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
	"github.com/congo-pay/deposit_ledger/internal/notification"
)

type harness struct {
	bridge   *Bridge
	router   *ledger.Router
	base     ledger.BaseStore
	notifier *notification.Recorder
	owner    key.Key
	asset    key.Key
	addr     key.Key
}

func newHarness(t *testing.T, replica ledger.Replica, wrap func(Protocol) Protocol) *harness {
	t.Helper()
	base := ledger.NewInMemory()
	router := ledger.NewRouter(base, replica)
	ectx := ExecutionContext{Context: key.New(), Program: key.New()}
	var protocol Protocol = NewHandoff(base, replica, ectx, nil)
	if wrap != nil {
		protocol = wrap(protocol)
	}
	notifier := &notification.Recorder{}
	owner, asset := key.New(), key.New()
	ledger.SeedBalance(base, owner, asset, 50)
	return &harness{
		bridge:   NewBridge(router, protocol, Options{ExecutionContext: ectx, Notifier: notifier}),
		router:   router,
		base:     base,
		notifier: notifier,
		owner:    owner,
		asset:    asset,
		addr:     ledger.DepositAddress(owner, asset),
	}
}

func (h *harness) state(t *testing.T) ledger.State {
	t.Helper()
	state, err := h.bridge.State(context.Background(), h.owner, h.asset)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return state
}

func (h *harness) credit(t *testing.T, amount uint64) {
	t.Helper()
	ctx := context.Background()
	err := h.router.Atomic(ctx, []key.Key{h.addr}, func(tx ledger.Tx) error {
		e, err := tx.Get(ctx, h.addr)
		if err != nil {
			return err
		}
		if err := e.Credit(amount); err != nil {
			return err
		}
		return tx.Put(ctx, e)
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (h *harness) baseBalance(t *testing.T) uint64 {
	t.Helper()
	ctx := context.Background()
	var balance uint64
	err := h.base.Atomic(ctx, []key.Key{h.addr}, func(tx ledger.Tx) error {
		e, err := tx.Get(ctx, h.addr)
		balance = e.Balance
		return err
	})
	if err != nil {
		t.Fatalf("base balance: %v", err)
	}
	return balance
}

func TestDelegateLifecycle(t *testing.T) {
	h := newHarness(t, ledger.NewInMemoryReplica(), nil)
	ctx := context.Background()

	if err := h.bridge.Delegate(ctx, h.owner, h.asset); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if got := h.state(t); got != ledger.StateDelegated {
		t.Fatalf("expected delegated, got %s", got)
	}
	if h.notifier.Last().Kind != notification.KindDelegated {
		t.Fatalf("expected delegated notification")
	}

	err := h.bridge.Delegate(ctx, h.owner, h.asset)
	if !errors.Is(err, ledger.ErrInvalidState) {
		t.Fatalf("expected invalid state on second delegate, got %v", err)
	}
	if got := h.state(t); got != ledger.StateDelegated {
		t.Fatalf("failed delegate moved the entry to %s", got)
	}

	h.credit(t, 25)

	if err := h.bridge.Undelegate(ctx, h.owner, h.owner, h.asset); err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	if got := h.state(t); got != ledger.StateBaseResident {
		t.Fatalf("expected base resident, got %s", got)
	}
	if got := h.baseBalance(t); got != 75 {
		t.Fatalf("execution layer balance not committed, got %d", got)
	}
}

func TestUndelegateOutOfOrder(t *testing.T) {
	h := newHarness(t, ledger.NewInMemoryReplica(), nil)

	err := h.bridge.Undelegate(context.Background(), h.owner, h.owner, h.asset)
	if !errors.Is(err, ledger.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if got := h.state(t); got != ledger.StateBaseResident {
		t.Fatalf("entry moved to %s", got)
	}
}

func TestDelegateUninitialized(t *testing.T) {
	h := newHarness(t, ledger.NewInMemoryReplica(), nil)

	err := h.bridge.Delegate(context.Background(), key.New(), h.asset)
	if !errors.Is(err, ledger.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestUndelegateRequiresOwner(t *testing.T) {
	h := newHarness(t, ledger.NewInMemoryReplica(), nil)
	ctx := context.Background()
	if err := h.bridge.Delegate(ctx, h.owner, h.asset); err != nil {
		t.Fatalf("delegate: %v", err)
	}

	err := h.bridge.Undelegate(ctx, key.New(), h.owner, h.asset)
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := h.state(t); got != ledger.StateDelegated {
		t.Fatalf("entry moved to %s", got)
	}
}

type failingProtocol struct {
	Protocol
}

func (failingProtocol) Delegate(context.Context, key.Key, Seeds, Config) error {
	return errors.New("validator unreachable")
}

func TestDelegateProtocolFailure(t *testing.T) {
	h := newHarness(t, ledger.NewInMemoryReplica(), func(p Protocol) Protocol { return failingProtocol{Protocol: p} })

	err := h.bridge.Delegate(context.Background(), h.owner, h.asset)
	if !errors.Is(err, ledger.ErrExternalCallFailure) {
		t.Fatalf("expected external call failure, got %v", err)
	}
	if got := h.state(t); got != ledger.StateBaseResident {
		t.Fatalf("entry moved to %s", got)
	}
}

func TestHandoffRejectsWrongSeeds(t *testing.T) {
	base := ledger.NewInMemory()
	owner, asset := key.New(), key.New()
	ledger.SeedBalance(base, owner, asset, 1)
	handoff := NewHandoff(base, ledger.NewInMemoryReplica(), ExecutionContext{}, nil)

	err := handoff.Delegate(context.Background(), ledger.DepositAddress(owner, asset), Seeds{Tag: "other", Owner: owner, Asset: asset}, Config{})
	if !errors.Is(err, ledger.ErrAddressDerivationMismatch) {
		t.Fatalf("expected derivation mismatch, got %v", err)
	}
}

func TestHandoffRejectsForeignExecutionContext(t *testing.T) {
	h := newHarness(t, ledger.NewInMemoryReplica(), nil)
	ctx := context.Background()
	if err := h.bridge.Delegate(ctx, h.owner, h.asset); err != nil {
		t.Fatalf("delegate: %v", err)
	}

	err := h.bridge.protocol.CommitAndUndelegate(ctx, []key.Key{h.addr}, ExecutionContext{Context: key.New(), Program: key.New()})
	if !errors.Is(err, ErrContextMismatch) {
		t.Fatalf("expected context mismatch, got %v", err)
	}
	if got := h.state(t); got != ledger.StateDelegated {
		t.Fatalf("entry moved to %s", got)
	}
}

func TestDelegateLifecycleOnRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	h := newHarness(t, ledger.NewRedisReplica(client), nil)
	ctx := context.Background()

	if err := h.bridge.Delegate(ctx, h.owner, h.asset); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	h.credit(t, 10)
	if err := h.bridge.Undelegate(ctx, h.owner, h.owner, h.asset); err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	if got := h.baseBalance(t); got != 60 {
		t.Fatalf("expected 60 after commit, got %d", got)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("execution copy not evicted: %v", keys)
	}
}
