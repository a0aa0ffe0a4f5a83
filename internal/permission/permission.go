package permission

import (
	"context"
	"errors"

	"github.com/congo-pay/deposit_ledger/internal/key"
	"github.com/congo-pay/deposit_ledger/internal/ledger"
)

var (
	ErrGroupExists      = errors.New("permission: group already exists")
	ErrUnknownGroup     = errors.New("permission: unknown group")
	ErrPermissionExists = errors.New("permission: account already has a permission")
	ErrNotAuthorized    = errors.New("permission: capability does not sign for account")
	ErrEmptyGroup       = errors.New("permission: group needs at least one member")
)

// Request asks the access control service to bind Account to Group. Owner
// is the owning authority of the permission, which for an entry is the
// entry itself; the capability must sign for both Account and Owner.
type Request struct {
	Group      key.Key
	Account    key.Key
	Owner      key.Key
	Capability ledger.Capability
}

// Authority is the access control service entries are registered with.
type Authority interface {
	CreateGroup(ctx context.Context, id key.Key, members []key.Key) error
	CreatePermission(ctx context.Context, req Request) error
}

// GroupRemover is implemented by authorities that can undo CreateGroup.
type GroupRemover interface {
	DeleteGroup(ctx context.Context, id key.Key) error
}

// Grant describes an issued permission.
type Grant struct {
	Group   key.Key
	Account key.Key
	Members []key.Key
}
