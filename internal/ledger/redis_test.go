package ledger

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

func setupRedisReplica(t *testing.T) (*RedisReplica, *miniredis.Miniredis) {
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
	return NewRedisReplica(client), mr
}

func TestRedisReplica_AtomicUpdatesBalance(t *testing.T) {
	r, mr := setupRedisReplica(t)
	ctx := context.Background()
	e := Entry{Owner: key.New(), Asset: key.New(), Balance: 100}
	addr := e.Address()

	if err := r.Install(ctx, e); err != nil {
		t.Fatalf("install: %v", err)
	}

	err := r.Atomic(ctx, []key.Key{addr}, func(tx Tx) error {
		got, err := tx.Get(ctx, addr)
		if err != nil {
			return err
		}
		if err := got.Debit(30); err != nil {
			return err
		}
		return tx.Put(ctx, got)
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}

	if v := mr.HGet(replicaKey(addr), fieldBalance); v != "70" {
		t.Fatalf("expected stored balance 70, got %q", v)
	}
}

func TestRedisReplica_FailedUnitWritesNothing(t *testing.T) {
	r, mr := setupRedisReplica(t)
	ctx := context.Background()
	e := Entry{Owner: key.New(), Asset: key.New(), Balance: 5}
	addr := e.Address()
	if err := r.Install(ctx, e); err != nil {
		t.Fatalf("install: %v", err)
	}

	err := r.Atomic(ctx, []key.Key{addr}, func(tx Tx) error {
		got, err := tx.Get(ctx, addr)
		if err != nil {
			return err
		}
		return got.Debit(6)
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if v := mr.HGet(replicaKey(addr), fieldBalance); v != "5" {
		t.Fatalf("expected balance to stay 5, got %q", v)
	}
}

func TestRedisReplica_SealAndEvict(t *testing.T) {
	r, mr := setupRedisReplica(t)
	ctx := context.Background()
	e := Entry{Owner: key.New(), Asset: key.New(), Balance: 9}
	addr := e.Address()

	if _, err := r.Seal(ctx, addr); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found before install, got %v", err)
	}
	if err := r.Install(ctx, e); err != nil {
		t.Fatalf("install: %v", err)
	}

	sealed, err := r.Seal(ctx, addr)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed != e {
		t.Fatalf("expected sealed entry %+v, got %+v", e, sealed)
	}

	err = r.Atomic(ctx, []key.Key{addr}, func(tx Tx) error {
		_, err := tx.Get(ctx, addr)
		return err
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state after seal, got %v", err)
	}

	if err := r.Evict(ctx, addr); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if mr.Exists(replicaKey(addr)) {
		t.Fatal("expected key to be evicted")
	}
}
