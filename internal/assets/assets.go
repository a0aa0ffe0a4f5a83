package assets

import (
	"context"
	"errors"

	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
)

// holdingTag is the derivation tag of associated holding accounts.
const holdingTag = "holding"

var (
	ErrUnknownAsset       = errors.New("assets: unknown asset")
	ErrUnknownHolding     = errors.New("assets: unknown holding account")
	ErrDecimalsMismatch   = errors.New("assets: decimals mismatch")
	ErrNotAuthority       = errors.New("assets: transfer not authorized")
	ErrInsufficientFunds  = errors.New("assets: insufficient funds")
	ErrHoldingOverflow    = errors.New("assets: holding balance overflow")
	ErrInvalidTransferAmt = errors.New("assets: amount must be positive")
)

// Service moves units of an asset between holding accounts. It is the
// external collaborator the ledger couples its balance updates to.
type Service interface {
	Decimals(ctx context.Context, asset key.Key) (uint8, error)
	// EnsureHolding creates the holding account of authority for asset if
	// needed and returns its address.
	EnsureHolding(ctx context.Context, authority, asset key.Key) (key.Key, error)
	Transfer(ctx context.Context, req TransferRequest) error
}

// TransferRequest is one debit/credit pair. The transfer is authorized when
// Authority is among Signers (live signatures verified by the caller) or when
// Capability signs for Authority.
type TransferRequest struct {
	From       key.Key
	To         key.Key
	Asset      key.Key
	Authority  key.Key
	Signers    []key.Key
	Capability *ledger.Capability
	Amount     uint64
	Decimals   uint8
}

func (r TransferRequest) authorized() bool {
	if r.Capability != nil && r.Capability.Authorizes(r.Authority) {
		return true
	}
	for _, s := range r.Signers {
		if s == r.Authority {
			return true
		}
	}
	return false
}

// HoldingAccount returns the associated holding account of authority for asset.
func HoldingAccount(authority, asset key.Key) key.Key {
	return ledger.Derive(holdingTag, authority, asset)
}
