package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/account"
	domcat "github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
)

// Service handles catalog administration and record ingestion.
type Service struct {
	repo    Repository
	records RecordRepository
	sync    SyncQueue
	access  AccessInvalidator
	logger  *zap.Logger
}

// New creates a catalog service. sync may be nil when no semantic backend is configured.
func New(repo Repository, records RecordRepository, sync SyncQueue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, records: records, sync: sync, logger: logger}
}

// WithAccessInvalidator sets the grant cache to flush when lists are deleted.
func (s *Service) WithAccessInvalidator(a AccessInvalidator) *Service {
	s.access = a
	return s
}

// CreateAccount validates and stores a new account.
func (s *Service) CreateAccount(ctx context.Context, name string) (account.Account, error) {
	a, err := account.New(name)
	if err != nil {
		return account.Account{}, fmt.Errorf("validate account: %w: %w", domain.ErrInvalidSchema, err)
	}
	if err := s.repo.CreateAccount(ctx, a); err != nil {
		return account.Account{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// GetAccount retrieves an account by name.
func (s *Service) GetAccount(ctx context.Context, name string) (account.Account, error) {
	a, err := s.repo.GetAccount(ctx, name)
	if err != nil {
		return account.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// CreateList validates and stores a new list under the named account.
func (s *Service) CreateList(
	ctx context.Context, accountName, name, recordType string, fields []field.Field,
) (domcat.List, error) {
	a, err := s.GetAccount(ctx, accountName)
	if err != nil {
		return domcat.List{}, err
	}
	l, err := domcat.New(a.ID(), name, recordType, fields)
	if err != nil {
		return domcat.List{}, fmt.Errorf("validate list: %w: %w", domain.ErrInvalidSchema, err)
	}
	if err := s.repo.CreateList(ctx, l); err != nil {
		return domcat.List{}, fmt.Errorf("create list: %w", err)
	}
	return l, nil
}

// GetList retrieves a list by account and list name.
func (s *Service) GetList(ctx context.Context, accountName, name string) (domcat.List, error) {
	a, err := s.GetAccount(ctx, accountName)
	if err != nil {
		return domcat.List{}, err
	}
	l, err := s.repo.GetList(ctx, a.ID(), name)
	if err != nil {
		return domcat.List{}, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

// ListLists returns the lists of an account.
func (s *Service) ListLists(ctx context.Context, accountName string) ([]domcat.List, error) {
	a, err := s.GetAccount(ctx, accountName)
	if err != nil {
		return nil, err
	}
	lists, err := s.repo.ListLists(ctx, a.ID())
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	return lists, nil
}

// DeleteList removes a list with its records, grants and embeddings.
func (s *Service) DeleteList(ctx context.Context, accountName, name string) error {
	l, err := s.GetList(ctx, accountName, name)
	if err != nil {
		return err
	}

	ids, err := s.records.IDsByList(ctx, l.ID())
	if err != nil {
		return fmt.Errorf("list record ids: %w", err)
	}

	if err := s.repo.DeleteList(ctx, l.ID()); err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	if s.access != nil {
		s.access.InvalidateAll()
	}

	// records are gone from the catalog; orphaned embeddings are unreachable through any scope
	if len(ids) > 0 && s.sync != nil {
		if err := s.sync.Forget(ctx, ids...); err != nil {
			s.logger.Warn("Failed to forget embeddings of deleted list",
				zap.String("list_id", l.ID()),
				zap.Int("records", len(ids)),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("List deleted",
		zap.String("list_id", l.ID()),
		zap.String("list", l.Name()),
		zap.Int("records", len(ids)),
	)
	return nil
}

// UpsertRecord writes one record keyed by its external id and schedules a semantic sync when it changed.
// A record with an unchanged fingerprint is a no-op.
func (s *Service) UpsertRecord(
	ctx context.Context, accountName, listName string, in domrec.Input,
) (domrec.Record, domrec.Change, error) {
	l, err := s.GetList(ctx, accountName, listName)
	if err != nil {
		return domrec.Record{}, domrec.Change{}, err
	}

	rec, err := domrec.New(l.ID(), in)
	if err != nil {
		return domrec.Record{}, domrec.Change{}, fmt.Errorf("validate record: %w: %w", domain.ErrInvalidRecord, err)
	}
	if _, ok := l.ArrayField(); !ok && len(rec.Tags()) > 0 {
		return domrec.Record{}, domrec.Change{}, fmt.Errorf(
			"validate record: %w: list %q declares no array field for tags", domain.ErrInvalidRecord, l.Name())
	}

	stored, change, err := s.records.Upsert(ctx, rec)
	if err != nil {
		return domrec.Record{}, domrec.Change{}, fmt.Errorf("upsert record: %w", err)
	}
	if !change.Changed || s.sync == nil {
		return stored, change, nil
	}

	// the write is committed; a lost task is recovered by resync
	if err := s.sync.Enqueue(ctx, stored.ID(), stored.Fingerprint()); err != nil {
		s.logger.Error("Failed to enqueue semantic sync",
			zap.String("record_id", stored.ID()),
			zap.Error(err),
		)
	}
	return stored, change, nil
}
