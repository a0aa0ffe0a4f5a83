package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

const schema = `
CREATE TABLE IF NOT EXISTS deposits (
    address    BYTEA PRIMARY KEY,
    owner      BYTEA NOT NULL,
    asset      BYTEA NOT NULL,
    balance    NUMERIC(20, 0) NOT NULL CHECK (balance >= 0 AND balance <= 18446744073709551615),
    state      TEXT NOT NULL DEFAULT 'base_resident',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (owner, asset)
)`

// PostgresBase persists deposit entries in PostgreSQL. Each Atomic call runs
// in one transaction holding row locks on every declared entry.
type PostgresBase struct {
	db *pgxpool.Pool
}

// NewPostgresBase constructs a Postgres-backed base layer.
func NewPostgresBase(db *pgxpool.Pool) *PostgresBase {
	return &PostgresBase{db: db}
}

// Migrate creates the deposits table if it does not exist.
func (s *PostgresBase) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate deposits: %w", err)
	}
	return nil
}

// State returns the delegation state of the entry at addr without locking it.
func (s *PostgresBase) State(ctx context.Context, addr key.Key) (State, error) {
	var state string
	err := s.db.QueryRow(ctx, `SELECT state FROM deposits WHERE address = $1`, addr[:]).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return StateUninitialized, nil
	}
	if err != nil {
		return "", err
	}
	return State(state), nil
}

// Atomic runs fn against resident entries.
func (s *PostgresBase) Atomic(ctx context.Context, addrs []key.Key, fn func(Tx) error) error {
	return s.AtomicBase(ctx, addrs, func(tx BaseTx) error { return fn(tx) })
}

// AtomicBase locks every declared row in address order and commits only if fn succeeds.
func (s *PostgresBase) AtomicBase(ctx context.Context, addrs []key.Key, fn func(BaseTx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	ptx := &postgresTx{tx: tx, declared: declared(addrs), rows: make(map[key.Key]baseRow)}
	if err := ptx.lock(ctx, uniqueSorted(addrs)); err != nil {
		return err
	}

	if err := fn(ptx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type postgresTx struct {
	tx       pgx.Tx
	declared map[key.Key]struct{}
	rows     map[key.Key]baseRow
}

func (p *postgresTx) lock(ctx context.Context, addrs []key.Key) error {
	for _, addr := range addrs {
		row, err := p.selectForUpdate(ctx, addr)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		p.rows[addr] = row
	}
	return nil
}

func (p *postgresTx) selectForUpdate(ctx context.Context, addr key.Key) (baseRow, error) {
	const query = `SELECT owner, asset, balance::text, state FROM deposits WHERE address = $1 FOR UPDATE`
	var (
		owner, asset []byte
		balance      string
		state        string
	)
	if err := p.tx.QueryRow(ctx, query, addr[:]).Scan(&owner, &asset, &balance, &state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return baseRow{}, ErrNotFound
		}
		return baseRow{}, err
	}
	return decodeRow(owner, asset, balance, state)
}

func decodeRow(owner, asset []byte, balance, state string) (baseRow, error) {
	o, err := key.FromBytes(owner)
	if err != nil {
		return baseRow{}, fmt.Errorf("decode owner: %w", err)
	}
	a, err := key.FromBytes(asset)
	if err != nil {
		return baseRow{}, fmt.Errorf("decode asset: %w", err)
	}
	amount, err := strconv.ParseUint(balance, 10, 64)
	if err != nil {
		return baseRow{}, fmt.Errorf("decode balance: %w", err)
	}
	return baseRow{entry: Entry{Owner: o, Asset: a, Balance: amount}, state: State(state)}, nil
}

func (p *postgresTx) Get(_ context.Context, addr key.Key) (Entry, error) {
	if err := checkDeclared(p.declared, addr); err != nil {
		return Entry{}, err
	}
	row, ok := p.rows[addr]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if row.state == StateDelegated {
		return Entry{}, ErrDelegated
	}
	return row.entry, nil
}

func (p *postgresTx) Insert(ctx context.Context, e Entry) (Entry, bool, error) {
	addr := e.Address()
	if err := checkDeclared(p.declared, addr); err != nil {
		return Entry{}, false, err
	}
	if row, ok := p.rows[addr]; ok {
		if row.state == StateDelegated {
			return Entry{}, false, ErrDelegated
		}
		return row.entry, false, nil
	}

	tag, err := p.tx.Exec(ctx, `INSERT INTO deposits (address, owner, asset, balance, state)
        VALUES ($1, $2, $3, $4::numeric, $5) ON CONFLICT (address) DO NOTHING`,
		addr[:], e.Owner[:], e.Asset[:], strconv.FormatUint(e.Balance, 10), string(StateBaseResident))
	if err != nil {
		return Entry{}, false, err
	}

	// A concurrent initializer won the insert; lock and return its row.
	row, err := p.selectForUpdate(ctx, addr)
	if err != nil {
		return Entry{}, false, err
	}
	p.rows[addr] = row
	if row.state == StateDelegated {
		return Entry{}, false, ErrDelegated
	}
	return row.entry, tag.RowsAffected() == 1, nil
}

func (p *postgresTx) Put(ctx context.Context, e Entry) error {
	addr := e.Address()
	if err := checkDeclared(p.declared, addr); err != nil {
		return err
	}
	row, ok := p.rows[addr]
	if !ok {
		return ErrNotFound
	}
	if row.state == StateDelegated {
		return ErrDelegated
	}
	if _, err := p.tx.Exec(ctx, `UPDATE deposits SET balance = $2::numeric, updated_at = now() WHERE address = $1`,
		addr[:], strconv.FormatUint(e.Balance, 10)); err != nil {
		return err
	}
	row.entry = e
	p.rows[addr] = row
	return nil
}

func (p *postgresTx) State(_ context.Context, addr key.Key) (State, error) {
	if err := checkDeclared(p.declared, addr); err != nil {
		return "", err
	}
	row, ok := p.rows[addr]
	if !ok {
		return StateUninitialized, nil
	}
	return row.state, nil
}

func (p *postgresTx) SetState(ctx context.Context, addr key.Key, state State) error {
	if err := checkDeclared(p.declared, addr); err != nil {
		return err
	}
	row, ok := p.rows[addr]
	if !ok {
		return ErrNotFound
	}
	if _, err := p.tx.Exec(ctx, `UPDATE deposits SET state = $2, updated_at = now() WHERE address = $1`,
		addr[:], string(state)); err != nil {
		return err
	}
	row.state = state
	p.rows[addr] = row
	return nil
}
