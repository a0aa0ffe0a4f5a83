package delegation

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

// ErrContextMismatch is returned when an undelegation names an execution
// context other than the one the entries were delegated under.
var ErrContextMismatch = errors.New("delegation: execution context mismatch")

// Seeds are the derivation inputs of a delegated account.
type Seeds struct {
	Tag   string
	Owner key.Key
	Asset key.Key
}

// Config tunes a delegation. A zero Validator lets the protocol choose.
type Config struct {
	CommitFrequency time.Duration
	Validator       key.Key
}

// ExecutionContext identifies the execution environment that commits
// delegated state back to the base layer.
type ExecutionContext struct {
	Context key.Key
	Program key.Key
}

// Protocol moves accounts between the base and execution layers.
type Protocol interface {
	Delegate(ctx context.Context, account key.Key, seeds Seeds, cfg Config) error
	CommitAndUndelegate(ctx context.Context, accounts []key.Key, ectx ExecutionContext) error
}
