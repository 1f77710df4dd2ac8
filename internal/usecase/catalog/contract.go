package catalog

import (
	"context"

	"github.com/kailas-cloud/dirsearch/internal/domain/account"
	domcat "github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
)

// Repository defines the storage contract for accounts and lists.
type Repository interface {
	CreateAccount(ctx context.Context, a account.Account) error
	GetAccount(ctx context.Context, name string) (account.Account, error)
	CreateList(ctx context.Context, l domcat.List) error
	GetList(ctx context.Context, accountID, name string) (domcat.List, error)
	ListLists(ctx context.Context, accountID string) ([]domcat.List, error)
	DeleteList(ctx context.Context, id string) error
}

// RecordRepository writes records and enumerates them for cascades.
type RecordRepository interface {
	Upsert(ctx context.Context, rec domrec.Record) (domrec.Record, domrec.Change, error)
	IDsByList(ctx context.Context, listID string) ([]string, error)
}

// SyncQueue schedules semantic index maintenance.
type SyncQueue interface {
	Enqueue(ctx context.Context, recordID, fingerprint string) error
	Forget(ctx context.Context, recordIDs ...string) error
}

// AccessInvalidator drops cached grant sets after grants cascade away.
type AccessInvalidator interface {
	InvalidateAll()
}
