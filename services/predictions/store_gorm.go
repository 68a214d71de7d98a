package predictions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"ticker_backend/models"
)

// GormStore keeps predictions one row per (symbol, submitter) in sqlite or postgres.
// A symbol with no rows simply has no predictions, so no empty mapping can linger.
type GormStore struct {
	db *gorm.DB
	mu sync.Mutex // serializes writers in this process; transactions cover the rest
}

// NewGormStore migrates the schema and returns the store
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := models.MigratePredictionModels(db); err != nil {
		return nil, fmt.Errorf("failed to migrate predictions: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Upsert(ctx context.Context, p *models.Prediction) (*models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var replaced *models.Prediction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old models.Prediction
		err := tx.Where("symbol = ? AND submitter = ?", p.Symbol, p.Submitter).Take(&old).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			p.Revision = 1
			return tx.Create(p).Error
		case err != nil:
			return err
		}

		replaced = &old
		p.Revision = old.Revision + 1
		return tx.Save(p).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save prediction %s/%s: %w", p.Symbol, p.Submitter, err)
	}
	return replaced, nil
}

func (s *GormStore) Get(ctx context.Context, symbol, submitter string) (*models.Prediction, error) {
	var p models.Prediction
	err := s.db.WithContext(ctx).Where("symbol = ? AND submitter = ?", symbol, submitter).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction %s/%s: %w", symbol, submitter, err)
	}
	return &p, nil
}

func (s *GormStore) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := s.db.WithContext(ctx).Model(&models.Prediction{}).
		Distinct("symbol").Order("symbol").Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list predicted symbols: %w", err)
	}
	return symbols, nil
}

func (s *GormStore) List(ctx context.Context) ([]models.Prediction, error) {
	var preds []models.Prediction
	if err := s.db.WithContext(ctx).Order("symbol, created_at, submitter").Find(&preds).Error; err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	return preds, nil
}

// Take reads the symbol's rows and deletes exactly the revisions it read, in one transaction
func (s *GormStore) Take(ctx context.Context, symbol string) ([]models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var taken []models.Prediction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.Prediction
		if err := tx.Where("symbol = ?", symbol).Order("created_at, submitter").Find(&rows).Error; err != nil {
			return err
		}

		taken = taken[:0]
		for _, row := range rows {
			res := tx.Where("symbol = ? AND submitter = ? AND revision = ?", row.Symbol, row.Submitter, row.Revision).
				Delete(&models.Prediction{})
			if res.Error != nil {
				return res.Error
			}
			// Overwritten by another process after our read: it belongs to the next round
			if res.RowsAffected == 1 {
				taken = append(taken, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take predictions for %s: %w", symbol, err)
	}
	return taken, nil
}

func (s *GormStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Prediction{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge predictions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
