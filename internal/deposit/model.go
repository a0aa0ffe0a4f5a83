package deposit

import (
	"time"

	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
)

// Deposit is a ledger entry as seen by callers: the entry plus where it lives.
type Deposit struct {
	Address  key.Key
	Owner    key.Key
	Asset    key.Key
	Balance  uint64
	Decimals uint8
	State    ledger.State
	AsOf     time.Time
}

func fromEntry(e ledger.Entry, decimals uint8, state ledger.State) Deposit {
	return Deposit{
		Address:  e.Address(),
		Owner:    e.Owner,
		Asset:    e.Asset,
		Balance:  e.Balance,
		Decimals: decimals,
		State:    state,
		AsOf:     time.Now().UTC(),
	}
}
