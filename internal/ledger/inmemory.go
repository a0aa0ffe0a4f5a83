package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

// lockTable serializes work per address; callers acquire in sorted order.
type lockTable struct {
	mu    sync.Mutex
	locks map[key.Key]*sync.Mutex
}

func (t *lockTable) acquire(addrs []key.Key) func() {
	sorted := uniqueSorted(addrs)

	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[key.Key]*sync.Mutex)
	}
	held := make([]*sync.Mutex, 0, len(sorted))
	for _, addr := range sorted {
		l, ok := t.locks[addr]
		if !ok {
			l = &sync.Mutex{}
			t.locks[addr] = l
		}
		held = append(held, l)
	}
	t.mu.Unlock()

	for _, l := range held {
		l.Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func uniqueSorted(addrs []key.Key) []key.Key {
	out := make([]key.Key, 0, len(addrs))
	seen := make(map[key.Key]struct{}, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

type baseRow struct {
	entry Entry
	state State
}

type inMemoryBase struct {
	locks lockTable
	mu    sync.RWMutex
	rows  map[key.Key]baseRow
}

// NewInMemory creates a concurrency-safe in-memory base layer useful for
// development and unit tests.
func NewInMemory() BaseStore {
	return &inMemoryBase{rows: make(map[key.Key]baseRow)}
}

func (s *inMemoryBase) State(_ context.Context, addr key.Key) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[addr]
	if !ok {
		return StateUninitialized, nil
	}
	return row.state, nil
}

func (s *inMemoryBase) Atomic(ctx context.Context, addrs []key.Key, fn func(Tx) error) error {
	return s.AtomicBase(ctx, addrs, func(tx BaseTx) error { return fn(tx) })
}

func (s *inMemoryBase) AtomicBase(_ context.Context, addrs []key.Key, fn func(BaseTx) error) error {
	release := s.locks.acquire(addrs)
	defer release()

	tx := &memoryBaseTx{declared: declared(addrs), staged: make(map[key.Key]baseRow)}
	s.mu.RLock()
	for addr := range tx.declared {
		if row, ok := s.rows[addr]; ok {
			tx.staged[addr] = row
		}
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for addr := range tx.dirty {
		s.rows[addr] = tx.staged[addr]
	}
	return nil
}

type memoryBaseTx struct {
	declared map[key.Key]struct{}
	staged   map[key.Key]baseRow
	dirty    map[key.Key]struct{}
}

func declared(addrs []key.Key) map[key.Key]struct{} {
	out := make(map[key.Key]struct{}, len(addrs))
	for _, a := range addrs {
		out[a] = struct{}{}
	}
	return out
}

func checkDeclared(set map[key.Key]struct{}, addr key.Key) error {
	if _, ok := set[addr]; !ok {
		return fmt.Errorf("ledger: address %s not declared to the transaction", addr)
	}
	return nil
}

func (tx *memoryBaseTx) markDirty(addr key.Key) {
	if tx.dirty == nil {
		tx.dirty = make(map[key.Key]struct{})
	}
	tx.dirty[addr] = struct{}{}
}

func (tx *memoryBaseTx) Get(_ context.Context, addr key.Key) (Entry, error) {
	if err := checkDeclared(tx.declared, addr); err != nil {
		return Entry{}, err
	}
	row, ok := tx.staged[addr]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if row.state == StateDelegated {
		return Entry{}, ErrDelegated
	}
	return row.entry, nil
}

func (tx *memoryBaseTx) Insert(_ context.Context, e Entry) (Entry, bool, error) {
	addr := e.Address()
	if err := checkDeclared(tx.declared, addr); err != nil {
		return Entry{}, false, err
	}
	if row, ok := tx.staged[addr]; ok {
		if row.state == StateDelegated {
			return Entry{}, false, ErrDelegated
		}
		return row.entry, false, nil
	}
	tx.staged[addr] = baseRow{entry: e, state: StateBaseResident}
	tx.markDirty(addr)
	return e, true, nil
}

func (tx *memoryBaseTx) Put(_ context.Context, e Entry) error {
	addr := e.Address()
	if err := checkDeclared(tx.declared, addr); err != nil {
		return err
	}
	row, ok := tx.staged[addr]
	if !ok {
		return ErrNotFound
	}
	if row.state == StateDelegated {
		return ErrDelegated
	}
	row.entry = e
	tx.staged[addr] = row
	tx.markDirty(addr)
	return nil
}

func (tx *memoryBaseTx) State(_ context.Context, addr key.Key) (State, error) {
	if err := checkDeclared(tx.declared, addr); err != nil {
		return "", err
	}
	row, ok := tx.staged[addr]
	if !ok {
		return StateUninitialized, nil
	}
	return row.state, nil
}

func (tx *memoryBaseTx) SetState(_ context.Context, addr key.Key, state State) error {
	if err := checkDeclared(tx.declared, addr); err != nil {
		return err
	}
	row, ok := tx.staged[addr]
	if !ok {
		return ErrNotFound
	}
	row.state = state
	tx.staged[addr] = row
	tx.markDirty(addr)
	return nil
}

type replicaRow struct {
	entry  Entry
	sealed bool
}

type inMemoryReplica struct {
	locks lockTable
	mu    sync.RWMutex
	rows  map[key.Key]replicaRow
}

// NewInMemoryReplica creates an in-memory execution layer.
func NewInMemoryReplica() Replica {
	return &inMemoryReplica{rows: make(map[key.Key]replicaRow)}
}

func (r *inMemoryReplica) Atomic(_ context.Context, addrs []key.Key, fn func(Tx) error) error {
	release := r.locks.acquire(addrs)
	defer release()

	tx := &memoryReplicaTx{declared: declared(addrs), staged: make(map[key.Key]replicaRow), dirty: make(map[key.Key]struct{})}
	r.mu.RLock()
	for addr := range tx.declared {
		if row, ok := r.rows[addr]; ok {
			tx.staged[addr] = row
		}
	}
	r.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for addr := range tx.dirty {
		r.rows[addr] = tx.staged[addr]
	}
	return nil
}

func (r *inMemoryReplica) Install(_ context.Context, e Entry) error {
	addr := e.Address()
	release := r.locks.acquire([]key.Key{addr})
	defer release()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[addr] = replicaRow{entry: e}
	return nil
}

func (r *inMemoryReplica) Seal(_ context.Context, addr key.Key) (Entry, error) {
	release := r.locks.acquire([]key.Key{addr})
	defer release()
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[addr]
	if !ok {
		return Entry{}, ErrNotFound
	}
	row.sealed = true
	r.rows[addr] = row
	return row.entry, nil
}

func (r *inMemoryReplica) Evict(_ context.Context, addr key.Key) error {
	release := r.locks.acquire([]key.Key{addr})
	defer release()
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, addr)
	return nil
}

type memoryReplicaTx struct {
	declared map[key.Key]struct{}
	staged   map[key.Key]replicaRow
	dirty    map[key.Key]struct{}
}

func (tx *memoryReplicaTx) live(addr key.Key) (replicaRow, error) {
	if err := checkDeclared(tx.declared, addr); err != nil {
		return replicaRow{}, err
	}
	row, ok := tx.staged[addr]
	if !ok {
		return replicaRow{}, ErrNotFound
	}
	if row.sealed {
		return replicaRow{}, fmt.Errorf("%w: entry %s is being committed", ErrInvalidState, addr)
	}
	return row, nil
}

func (tx *memoryReplicaTx) Get(_ context.Context, addr key.Key) (Entry, error) {
	row, err := tx.live(addr)
	if err != nil {
		return Entry{}, err
	}
	return row.entry, nil
}

// Insert never creates on the execution layer: new entries start on the base layer.
func (tx *memoryReplicaTx) Insert(_ context.Context, e Entry) (Entry, bool, error) {
	row, err := tx.live(e.Address())
	if err != nil {
		return Entry{}, false, err
	}
	return row.entry, false, nil
}

func (tx *memoryReplicaTx) Put(_ context.Context, e Entry) error {
	addr := e.Address()
	row, err := tx.live(addr)
	if err != nil {
		return err
	}
	row.entry = e
	tx.staged[addr] = row
	tx.dirty[addr] = struct{}{}
	return nil
}
