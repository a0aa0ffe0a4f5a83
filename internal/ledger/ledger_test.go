package ledger

import (
	"errors"
	"math"
	"testing"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

func TestDeriveIsDeterministicAndUnique(t *testing.T) {
	owner, asset, other := key.New(), key.New(), key.New()

	if DepositAddress(owner, asset) != DepositAddress(owner, asset) {
		t.Fatal("expected derivation to be deterministic")
	}
	if DepositAddress(owner, asset) == DepositAddress(owner, other) {
		t.Fatal("expected distinct assets to derive distinct addresses")
	}
	if DepositAddress(owner, asset) == DepositAddress(asset, owner) {
		t.Fatal("expected owner and asset positions to matter")
	}
	if Derive("vault", owner, asset) == DepositAddress(owner, asset) {
		t.Fatal("expected the tag to separate address domains")
	}
}

func TestVerify(t *testing.T) {
	owner, asset := key.New(), key.New()
	if err := Verify(DepositAddress(owner, asset), owner, asset); err != nil {
		t.Fatalf("verify derived address: %v", err)
	}
	if err := Verify(key.New(), owner, asset); !errors.Is(err, ErrAddressDerivationMismatch) {
		t.Fatalf("expected derivation mismatch, got %v", err)
	}
}

func TestCapabilityAuthorizesOnlyItsEntry(t *testing.T) {
	e := Entry{Owner: key.New(), Asset: key.New()}
	c := e.Capability()

	if !c.Authorizes(e.Address()) {
		t.Fatal("expected capability to authorize its own entry")
	}
	if c.Authorizes(DepositAddress(e.Owner, key.New())) {
		t.Fatal("expected capability to reject another entry")
	}

	var zero Capability
	if zero.Authorizes(e.Address()) || zero.Authorizes(key.Zero) {
		t.Fatal("expected zero capability to authorize nothing")
	}
}

func TestCreditAndDebitAreChecked(t *testing.T) {
	e := Entry{Balance: math.MaxUint64 - 5}
	if err := e.Credit(6); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if e.Balance != math.MaxUint64-5 {
		t.Fatalf("failed credit changed balance to %d", e.Balance)
	}
	if err := e.Credit(5); err != nil {
		t.Fatalf("credit to max: %v", err)
	}

	e = Entry{Balance: 10}
	if err := e.Debit(11); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if e.Balance != 10 {
		t.Fatalf("failed debit changed balance to %d", e.Balance)
	}
	if err := e.Debit(10); err != nil || e.Balance != 0 {
		t.Fatalf("debit to zero: balance=%d err=%v", e.Balance, err)
	}
}

func TestCode(t *testing.T) {
	cases := map[error]string{
		ErrInsufficientBalance:       "insufficient_balance",
		ErrDelegated:                 "invalid_state",
		ErrAddressDerivationMismatch: "address_derivation_mismatch",
		ErrInvalidArgument:           "invalid_argument",
		errors.New("boom"):           "internal",
	}
	for err, want := range cases {
		if got := Code(err); got != want {
			t.Fatalf("Code(%v) = %s, want %s", err, got, want)
		}
	}
}
