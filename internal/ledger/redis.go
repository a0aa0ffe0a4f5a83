package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

const replicaPrefix = "deposit:exec:v1:"

const (
	fieldOwner   = "owner"
	fieldAsset   = "asset"
	fieldBalance = "balance"
	fieldSealed  = "sealed"
)

// RedisReplica keeps delegated entries as Redis hashes. Transactions are
// optimistic: a WATCHed key changing under a transaction yields ErrConflict.
type RedisReplica struct {
	client *redis.Client
}

// NewRedisReplica builds an execution layer on top of a Redis client.
func NewRedisReplica(client *redis.Client) *RedisReplica {
	return &RedisReplica{client: client}
}

func replicaKey(addr key.Key) string { return replicaPrefix + addr.String() }

func (r *RedisReplica) Atomic(ctx context.Context, addrs []key.Key, fn func(Tx) error) error {
	sorted := uniqueSorted(addrs)
	keys := make([]string, len(sorted))
	for i, addr := range sorted {
		keys[i] = replicaKey(addr)
	}

	err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
		tx := &redisTx{declared: declared(addrs), rows: make(map[key.Key]replicaRow), dirty: make(map[key.Key]struct{})}
		for _, addr := range sorted {
			row, ok, err := loadReplicaRow(ctx, rtx, addr)
			if err != nil {
				return err
			}
			if ok {
				tx.rows[addr] = row
			}
		}

		if err := fn(tx); err != nil {
			return err
		}
		if len(tx.dirty) == 0 {
			return nil
		}

		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for addr := range tx.dirty {
				pipe.HSet(ctx, replicaKey(addr), fieldBalance, strconv.FormatUint(tx.rows[addr].entry.Balance, 10))
			}
			return nil
		})
		return err
	}, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func loadReplicaRow(ctx context.Context, c hashReader, addr key.Key) (replicaRow, bool, error) {
	fields, err := c.HGetAll(ctx, replicaKey(addr)).Result()
	if err != nil {
		return replicaRow{}, false, err
	}
	if len(fields) == 0 {
		return replicaRow{}, false, nil
	}
	owner, err := key.Parse(fields[fieldOwner])
	if err != nil {
		return replicaRow{}, false, fmt.Errorf("decode replica owner: %w", err)
	}
	asset, err := key.Parse(fields[fieldAsset])
	if err != nil {
		return replicaRow{}, false, fmt.Errorf("decode replica asset: %w", err)
	}
	balance, err := strconv.ParseUint(fields[fieldBalance], 10, 64)
	if err != nil {
		return replicaRow{}, false, fmt.Errorf("decode replica balance: %w", err)
	}
	return replicaRow{
		entry:  Entry{Owner: owner, Asset: asset, Balance: balance},
		sealed: fields[fieldSealed] == "1",
	}, true, nil
}

// Install overwrites the execution-layer copy with e, unsealed.
func (r *RedisReplica) Install(ctx context.Context, e Entry) error {
	return r.client.HSet(ctx, replicaKey(e.Address()),
		fieldOwner, e.Owner.String(),
		fieldAsset, e.Asset.String(),
		fieldBalance, strconv.FormatUint(e.Balance, 10),
		fieldSealed, "0",
	).Err()
}

// Seal marks the copy read-only and returns its latest state.
func (r *RedisReplica) Seal(ctx context.Context, addr key.Key) (Entry, error) {
	var sealed Entry
	k := replicaKey(addr)
	err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
		row, ok, err := loadReplicaRow(ctx, rtx, addr)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		sealed = row.entry
		if row.sealed {
			return nil
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, fieldSealed, "1")
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return Entry{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		return Entry{}, err
	}
	return sealed, nil
}

// Evict removes the copy at addr.
func (r *RedisReplica) Evict(ctx context.Context, addr key.Key) error {
	return r.client.Del(ctx, replicaKey(addr)).Err()
}

type redisTx struct {
	declared map[key.Key]struct{}
	rows     map[key.Key]replicaRow
	dirty    map[key.Key]struct{}
}

func (tx *redisTx) live(addr key.Key) (replicaRow, error) {
	if err := checkDeclared(tx.declared, addr); err != nil {
		return replicaRow{}, err
	}
	row, ok := tx.rows[addr]
	if !ok {
		return replicaRow{}, ErrNotFound
	}
	if row.sealed {
		return replicaRow{}, fmt.Errorf("%w: entry %s is being committed", ErrInvalidState, addr)
	}
	return row, nil
}

func (tx *redisTx) Get(_ context.Context, addr key.Key) (Entry, error) {
	row, err := tx.live(addr)
	if err != nil {
		return Entry{}, err
	}
	return row.entry, nil
}

func (tx *redisTx) Insert(_ context.Context, e Entry) (Entry, bool, error) {
	row, err := tx.live(e.Address())
	if err != nil {
		return Entry{}, false, err
	}
	return row.entry, false, nil
}

func (tx *redisTx) Put(_ context.Context, e Entry) error {
	addr := e.Address()
	row, err := tx.live(addr)
	if err != nil {
		return err
	}
	row.entry = e
	tx.rows[addr] = row
	tx.dirty[addr] = struct{}{}
	return nil
}
