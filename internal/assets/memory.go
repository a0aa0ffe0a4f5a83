package assets

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

type holding struct {
	authority key.Key
	asset     key.Key
	balance   uint64
}

// Memory is an in-process asset service used in development and tests.
type Memory struct {
	mu       sync.Mutex
	decimals map[key.Key]uint8
	holdings map[key.Key]*holding
}

// NewMemory creates an empty asset service.
func NewMemory() *Memory {
	return &Memory{
		decimals: make(map[key.Key]uint8),
		holdings: make(map[key.Key]*holding),
	}
}

// RegisterAsset makes asset known with the given decimals.
func (m *Memory) RegisterAsset(asset key.Key, decimals uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decimals[asset] = decimals
}

// Fund credits the holding account of authority directly. It stands in for
// whatever put the units there in the first place.
func (m *Memory) Fund(authority, asset key.Key, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.decimals[asset]; !ok {
		return ErrUnknownAsset
	}
	h := m.ensure(authority, asset)
	sum, carry := bits.Add64(h.balance, amount, 0)
	if carry != 0 {
		return ErrHoldingOverflow
	}
	h.balance = sum
	return nil
}

// Balance returns the units held by the holding account of authority.
func (m *Memory) Balance(authority, asset key.Key) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.holdings[HoldingAccount(authority, asset)]; ok {
		return h.balance
	}
	return 0
}

func (m *Memory) Decimals(_ context.Context, asset key.Key) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decimals[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return d, nil
}

func (m *Memory) EnsureHolding(_ context.Context, authority, asset key.Key) (key.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.decimals[asset]; !ok {
		return key.Zero, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	m.ensure(authority, asset)
	return HoldingAccount(authority, asset), nil
}

func (m *Memory) ensure(authority, asset key.Key) *holding {
	addr := HoldingAccount(authority, asset)
	h, ok := m.holdings[addr]
	if !ok {
		h = &holding{authority: authority, asset: asset}
		m.holdings[addr] = h
	}
	return h
}

// Transfer applies the debit and credit together or not at all.
func (m *Memory) Transfer(_ context.Context, req TransferRequest) error {
	if req.Amount == 0 {
		return ErrInvalidTransferAmt
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	decimals, ok := m.decimals[req.Asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, req.Asset)
	}
	if decimals != req.Decimals {
		return fmt.Errorf("%w: asset has %d, request has %d", ErrDecimalsMismatch, decimals, req.Decimals)
	}

	from, ok := m.holdings[req.From]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHolding, req.From)
	}
	to, ok := m.holdings[req.To]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHolding, req.To)
	}
	if from.asset != req.Asset || to.asset != req.Asset {
		return fmt.Errorf("%w: holding asset differs from %s", ErrUnknownHolding, req.Asset)
	}
	if from.authority != req.Authority || !req.authorized() {
		return ErrNotAuthority
	}

	debited, borrow := bits.Sub64(from.balance, req.Amount, 0)
	if borrow != 0 {
		return ErrInsufficientFunds
	}
	if req.From == req.To {
		return nil
	}
	credited, carry := bits.Add64(to.balance, req.Amount, 0)
	if carry != 0 {
		return ErrHoldingOverflow
	}
	from.balance = debited
	to.balance = credited
	return nil
}
