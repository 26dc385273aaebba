// Package watermark implements the pipeline's watermark registry: a
// persistent mapping from logical table name to the (last-loaded
// timestamp, batch generation) pair that bounds the next run's input
// window. Stages read their upstream table's mark before selecting
// work and append a new mark for their own table after a successful
// run, so a failed run leaves the window unconsumed and a retry
// naturally reprocesses it.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store provides database operations for the load tracker log.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the adf_load_tracker table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&LoadTracker{}); err != nil {
		return fmt.Errorf("auto-migrate adf_load_tracker: %w", err)
	}
	return nil
}

// Get returns the current mark for a logical table. Tables that have
// never been tracked get (epoch zero, 0), the contract that makes a
// first run process all historical rows. The newest tracker row carries
// both maxima because the log is append-only and generations never
// regress per table.
func (s *Store) Get(ctx context.Context, tableName string) (Mark, error) {
	var row LoadTracker
	err := s.db.WithContext(ctx).
		Where("tbl_nm = ?", tableName).
		Order("tbl_id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Mark{LastLoadedAt: EpochZero}, nil
	}
	if err != nil {
		return Mark{}, fmt.Errorf("get watermark for %s: %w", tableName, err)
	}
	return Mark{LastLoadedAt: row.LastLoadedAt.UTC(), Generation: row.Generation}, nil
}

// Advance appends a tracking row for a logical table. The tracker id is
// allocated as max+1 inside the same transaction as the insert, keeping
// ids dense under the single-writer assumption.
func (s *Store) Advance(ctx context.Context, tableName string, loadedAt time.Time, generation int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxID int64
		if err := tx.Model(&LoadTracker{}).
			Select("COALESCE(MAX(tbl_id), 0)").
			Scan(&maxID).Error; err != nil {
			return fmt.Errorf("max tracker id: %w", err)
		}

		row := LoadTracker{
			TrackerID:    maxID + 1,
			Table:        tableName,
			LastLoadedAt: loadedAt.UTC(),
			Generation:   generation,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert tracker row: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("advance watermark for %s: %w", tableName, err)
	}
	return nil
}

// History returns the most recent tracker rows for a logical table,
// newest first. An empty tableName returns rows for all tables.
func (s *Store) History(ctx context.Context, tableName string, limit int) ([]LoadTracker, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Order("tbl_id DESC").Limit(limit)
	if tableName != "" {
		query = query.Where("tbl_nm = ?", tableName)
	}

	var rows []LoadTracker
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("watermark history: %w", err)
	}
	return rows, nil
}

// Latest returns the current mark of every tracked table.
func (s *Store) Latest(ctx context.Context) ([]LoadTracker, error) {
	var rows []LoadTracker
	err := s.db.WithContext(ctx).
		Raw(`SELECT t.tbl_id, t.tbl_nm, t.last_loaded_ts, t.etl_nr
		     FROM adf_load_tracker t
		     JOIN (SELECT tbl_nm, MAX(tbl_id) AS max_id FROM adf_load_tracker GROUP BY tbl_nm) m
		       ON t.tbl_nm = m.tbl_nm AND t.tbl_id = m.max_id
		     ORDER BY t.tbl_nm`).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest watermarks: %w", err)
	}
	return rows, nil
}
