package watermark

import (
	"time"
)

// LoadTracker is one row of the append-only load tracker log. Every
// successful stage run appends a row recording how far its output table
// has been processed; the registry never updates rows in place, so the
// full load history stays queryable.
type LoadTracker struct {
	TrackerID    int64     `gorm:"primaryKey;autoIncrement:false;column:tbl_id"`
	Table        string    `gorm:"column:tbl_nm;index:idx_tracker_tbl_nm;not null"`
	LastLoadedAt time.Time `gorm:"column:last_loaded_ts;not null"`
	Generation   int64     `gorm:"column:etl_nr;not null"`
}

// TableName returns the GORM table name.
func (LoadTracker) TableName() string { return "adf_load_tracker" }

// Mark is the (timestamp, generation) pair recording how far a logical
// table has been processed.
type Mark struct {
	LastLoadedAt time.Time
	Generation   int64
}

// EpochZero is the timestamp returned for tables that have never been
// tracked. A zero mark tells the first run to process the entire
// historical data set.
var EpochZero = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// IsZero reports whether the mark is the never-tracked default.
func (m Mark) IsZero() bool {
	return m.Generation == 0 && m.LastLoadedAt.Equal(EpochZero)
}
