package ledger

import (
	"context"
	"errors"
	"math/bits"

	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

// DepositTag is the domain tag every deposit address is derived under.
const DepositTag = "deposit"

// derivationMarker separates derived addresses from anything a signer could hold.
const derivationMarker = "deposit-ledger/derived-address"

var (
	// ErrInsufficientBalance occurs when a debit exceeds the entry balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrAssetMismatch occurs when two entries or an entry and a request disagree on the asset.
	ErrAssetMismatch = errors.New("ledger: asset mismatch")
	// ErrArithmeticOverflow occurs when a credit would wrap past the 64-bit range.
	ErrArithmeticOverflow = errors.New("ledger: arithmetic overflow")
	// ErrUnauthorized occurs when the signer is not the owner recorded on the entry.
	ErrUnauthorized = errors.New("ledger: unauthorized")
	// ErrInvalidState occurs when delegate or undelegate is called out of order,
	// or when an operation targets entries that live on different layers.
	ErrInvalidState = errors.New("ledger: invalid state")
	// ErrAddressDerivationMismatch occurs when a supplied address is not the derived one.
	ErrAddressDerivationMismatch = errors.New("ledger: address derivation mismatch")
	// ErrExternalCallFailure wraps failures of the asset, permission or delegation services.
	ErrExternalCallFailure = errors.New("ledger: external call failure")
	// ErrNotFound occurs when no entry exists at an address.
	ErrNotFound = errors.New("ledger: entry not found")
	// ErrInvalidArgument occurs when a request is malformed before any entry is read.
	ErrInvalidArgument = errors.New("ledger: invalid argument")

	// ErrDelegated is returned by the base layer for entries whose canonical
	// copy lives on the execution layer.
	ErrDelegated = errors.New("ledger: entry is delegated")
	// ErrConflict is returned when an optimistic transaction lost a race.
	ErrConflict = errors.New("ledger: concurrent update conflict")
)

// IsRetryable reports whether the operation may be retried unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Code returns a stable machine readable code for the taxonomy member in err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrAssetMismatch):
		return "asset_mismatch"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrDelegated):
		return "invalid_state"
	case errors.Is(err, ErrAddressDerivationMismatch):
		return "address_derivation_mismatch"
	case errors.Is(err, ErrExternalCallFailure):
		return "external_call_failure"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

// Derive maps (tag, owner, asset) to the unique address of their entry.
func Derive(tag string, owner, asset key.Key) key.Key {
	buf := make([]byte, 0, len(tag)+2*key.Size+len(derivationMarker))
	buf = append(buf, tag...)
	buf = append(buf, owner[:]...)
	buf = append(buf, asset[:]...)
	buf = append(buf, derivationMarker...)
	return key.Key(blake2b.Sum256(buf))
}

// DepositAddress is Derive under DepositTag.
func DepositAddress(owner, asset key.Key) key.Key {
	return Derive(DepositTag, owner, asset)
}

// Verify fails with ErrAddressDerivationMismatch unless addr is the deposit address of (owner, asset).
func Verify(addr, owner, asset key.Key) error {
	if DepositAddress(owner, asset) != addr {
		return ErrAddressDerivationMismatch
	}
	return nil
}

// Capability is an entry's authority over its own custody. It can only be
// built from the derivation inputs and authorizes exactly one account.
type Capability struct {
	tag     string
	owner   key.Key
	asset   key.Key
	address key.Key
}

// NewCapability derives the signing capability of the entry at (tag, owner, asset).
func NewCapability(tag string, owner, asset key.Key) Capability {
	return Capability{tag: tag, owner: owner, asset: asset, address: Derive(tag, owner, asset)}
}

// Address is the account the capability signs for.
func (c Capability) Address() key.Key { return c.address }

// Authorizes reports whether c may sign for account.
func (c Capability) Authorizes(account key.Key) bool {
	if c.tag == "" || account.IsZero() {
		return false
	}
	return c.address == account && Derive(c.tag, c.owner, c.asset) == account
}

// Entry is the custodial balance of one owner in one asset.
type Entry struct {
	Owner   key.Key
	Asset   key.Key
	Balance uint64
}

// Address returns the derived address the entry is stored at.
func (e Entry) Address() key.Key { return DepositAddress(e.Owner, e.Asset) }

// Capability returns the entry's own signing capability.
func (e Entry) Capability() Capability { return NewCapability(DepositTag, e.Owner, e.Asset) }

// Credit adds amount, failing instead of wrapping.
func (e *Entry) Credit(amount uint64) error {
	sum, carry := bits.Add64(e.Balance, amount, 0)
	if carry != 0 {
		return ErrArithmeticOverflow
	}
	e.Balance = sum
	return nil
}

// Debit subtracts amount, failing instead of wrapping below zero.
func (e *Entry) Debit(amount uint64) error {
	diff, borrow := bits.Sub64(e.Balance, amount, 0)
	if borrow != 0 {
		return ErrInsufficientBalance
	}
	e.Balance = diff
	return nil
}

// State is where an entry's authoritative copy lives.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBaseResident  State = "base_resident"
	StateDelegated     State = "delegated"
)

// Tx reads and writes entries inside one atomic unit. Only the addresses
// declared to Store.Atomic may be touched.
type Tx interface {
	// Get returns ErrNotFound for absent entries.
	Get(ctx context.Context, addr key.Key) (Entry, error)
	// Insert stores e if no entry exists at its address and returns the
	// stored entry and whether it was created.
	Insert(ctx context.Context, e Entry) (Entry, bool, error)
	// Put replaces an existing entry.
	Put(ctx context.Context, e Entry) error
}

// Store runs fn as a single atomic unit holding every entry in addrs.
// Nothing fn wrote persists when fn or the commit fails.
type Store interface {
	Atomic(ctx context.Context, addrs []key.Key, fn func(Tx) error) error
}

// BaseTx additionally reads and moves the delegation state of entries.
type BaseTx interface {
	Tx
	State(ctx context.Context, addr key.Key) (State, error)
	SetState(ctx context.Context, addr key.Key, state State) error
}

// BaseStore is the durable settlement layer.
type BaseStore interface {
	Store
	AtomicBase(ctx context.Context, addrs []key.Key, fn func(BaseTx) error) error
	State(ctx context.Context, addr key.Key) (State, error)
}

// Replica is the execution layer copy of delegated entries.
type Replica interface {
	Store
	// Install writes e as the live execution-layer copy.
	Install(ctx context.Context, e Entry) error
	// Seal freezes the copy at addr against further mutation and returns it.
	Seal(ctx context.Context, addr key.Key) (Entry, error)
	// Evict drops the copy at addr.
	Evict(ctx context.Context, addr key.Key) error
}
