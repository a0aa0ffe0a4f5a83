package ledger

import "github.com/congo-pay/deposit_ledger/internal/key"

// SeedBalance is a test helper that seeds the balance of an entry when using
// the in-memory base layer. The entry is created if it does not exist.
func SeedBalance(s BaseStore, owner, asset key.Key, amount uint64) {
	mem, ok := s.(*inMemoryBase)
	if !ok {
		return
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	addr := DepositAddress(owner, asset)
	row, exists := mem.rows[addr]
	if !exists {
		row = baseRow{entry: Entry{Owner: owner, Asset: asset}, state: StateBaseResident}
	}
	row.entry.Balance = amount
	mem.rows[addr] = row
}
