// Package scd implements the slowly-changing-dimension machinery the
// silver stages share: surrogate-key/generation allocation and the
// deactivate-then-insert upsert rules. Allocation runs inside the same
// transaction as the writes it feeds; the design assumes a single
// writer per logical table per run.
package scd

import (
	"fmt"

	"gorm.io/gorm"
)

// NextKeys inspects a table's current maxima and returns
// (max surrogate key, max generation), both 0 for an empty table. The
// caller increments the generation by one for the new batch and draws
// surrogate keys from a KeySequence seeded with the key maximum.
//
// table and keyColumn are compile-time constants from the model
// packages, never user input.
func NextKeys(tx *gorm.DB, table, keyColumn string) (maxKey, maxGen int64, err error) {
	var out struct {
		MaxKey int64
		MaxGen int64
	}
	query := fmt.Sprintf(
		"SELECT COALESCE(MAX(%s), 0) AS max_key, COALESCE(MAX(etl_nr), 0) AS max_gen FROM %s",
		keyColumn, table,
	)
	if err := tx.Raw(query).Scan(&out).Error; err != nil {
		return 0, 0, fmt.Errorf("next keys for %s: %w", table, err)
	}
	return out.MaxKey, out.MaxGen, nil
}

// KeySequence hands out surrogate keys for one batch. Keys are
// allocated in memory, once per emitted row, and never reused: a failed
// batch abandons its keys.
type KeySequence struct {
	last int64
}

// NewKeySequence seeds a sequence with the table's current key maximum.
func NewKeySequence(maxKey int64) *KeySequence {
	return &KeySequence{last: maxKey}
}

// Next returns the next surrogate key.
func (s *KeySequence) Next() int64 {
	s.last++
	return s.last
}
