// Package dbstore implements the skald.Store contract on top of gorm.
package dbstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sre-norns/skald/pkg/skald"
)

var ErrUnsupportedStoreScheme = fmt.Errorf("unsupported store connection scheme")

// Open connects to the store identified by a connection URL. The scheme
// selects the driver: "sqlite:" (or a bare file path) and "postgres:".
func Open(connectionURL string) (*gorm.DB, error) {
	dialector, err := dialectorFor(connectionURL)
	if err != nil {
		return nil, err
	}

	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func dialectorFor(connectionURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(connectionURL, "postgres://"), strings.HasPrefix(connectionURL, "postgresql://"):
		return postgres.Open(connectionURL), nil
	case strings.HasPrefix(connectionURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(connectionURL, "sqlite://")), nil
	case !strings.Contains(connectionURL, "://"):
		// Bare path, sqlite file or ":memory:"
		return sqlite.Open(connectionURL), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedStoreScheme, connectionURL)
}

type DbStore struct {
	db *gorm.DB
}

func NewDbStore(db *gorm.DB) skald.Store {
	return &DbStore{
		db: db,
	}
}

func (s *DbStore) Create(ctx context.Context, value any) error {
	err := s.db.WithContext(ctx).Create(value).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", skald.ErrDuplicateValue, err)
	}

	return err
}

func (s *DbStore) Get(ctx context.Context, dest any, id skald.ResourceID) (bool, error) {
	tx := s.db.WithContext(ctx).First(dest, "id = ?", id)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return false, nil
	}

	return tx.RowsAffected == 1, tx.Error
}

func (s *DbStore) Patch(ctx context.Context, model any, id skald.ResourceID, fields map[string]any) (bool, error) {
	tx := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(fields)
	if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
		return false, fmt.Errorf("%w: %v", skald.ErrDuplicateValue, tx.Error)
	}

	return tx.RowsAffected == 1, tx.Error
}

func (s *DbStore) Delete(ctx context.Context, model any, id skald.ResourceID) (bool, error) {
	tx := s.db.WithContext(ctx).Delete(model, "id = ?", id)
	return tx.RowsAffected == 1, tx.Error
}

func (s *DbStore) Find(ctx context.Context, dest any, query skald.Query) error {
	tx := s.startQueryTx(ctx, query).
		Order("created_at DESC").
		Offset(int(query.Offset))
	if query.Limit > 0 {
		tx = tx.Limit(int(query.Limit))
	}

	return tx.Find(dest).Error
}

func (s *DbStore) FindOne(ctx context.Context, dest any, query skald.Query) (bool, error) {
	tx := s.startQueryTx(ctx, query).First(dest)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return false, nil
	}

	return tx.RowsAffected == 1, tx.Error
}

func (s *DbStore) Count(ctx context.Context, model any, query skald.Query) (int64, error) {
	var total int64
	err := s.startQueryTx(ctx, query).Model(model).Count(&total).Error

	return total, err
}

func (s *DbStore) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}

	return db.PingContext(ctx)
}

func (s *DbStore) startQueryTx(ctx context.Context, query skald.Query) *gorm.DB {
	tx := s.db.WithContext(ctx)

	for column, value := range query.Filter {
		tx = tx.Where(fmt.Sprintf("%v = ?", column), value)
	}

	if query.Match != nil && len(query.Match.Columns) > 0 {
		predicates := make([]string, 0, len(query.Match.Columns))
		args := make([]any, 0, len(query.Match.Columns))
		for _, column := range query.Match.Columns {
			predicates = append(predicates, fmt.Sprintf("%v LIKE ?", column))
			args = append(args, "%"+query.Match.Term+"%")
		}
		tx = tx.Where(strings.Join(predicates, " OR "), args...)
	}

	return tx
}
