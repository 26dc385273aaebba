package scd

import (
	"fmt"

	"gorm.io/gorm"
)

// DeactivateGeneration flips the active indicator to false on every row
// of a previous generation. Used by generation-wide SCD tables where a
// new batch supersedes the whole prior version of the table. Must run
// inside the same transaction as the subsequent inserts so a crash
// leaves the table in its pre-batch state.
func DeactivateGeneration(tx *gorm.DB, model any, flagColumn string, prevGeneration int64) error {
	err := tx.Model(model).
		Where(flagColumn+" = ? AND etl_nr = ?", true, prevGeneration).
		Update(flagColumn, false).Error
	if err != nil {
		return fmt.Errorf("deactivate generation %d: %w", prevGeneration, err)
	}
	return nil
}

// DeactivateByKey flips the active indicator to false on rows currently
// flagged true under a natural key value. Used by address-scoped
// latest-record tables: the caller invokes it immediately before
// inserting the replacement row for the same key, so a batch carrying
// several rows for one key leaves only the last processed one active.
// Batch ordering therefore decides the final latest row when duplicates
// collide within one run.
func DeactivateByKey(tx *gorm.DB, model any, flagColumn, keyColumn, keyValue string) error {
	err := tx.Model(model).
		Where(flagColumn+" = ? AND "+keyColumn+" = ?", true, keyValue).
		Update(flagColumn, false).Error
	if err != nil {
		return fmt.Errorf("deactivate %s %q: %w", keyColumn, keyValue, err)
	}
	return nil
}
