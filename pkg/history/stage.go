// Package history implements the property sale history composition
// stage: folding propstream sale facts and comparable parcel facts into
// the silver sale-detail table with latest-record maintenance.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rehouzd/estate-pipeline/pkg/bronze"
	"github.com/rehouzd/estate-pipeline/pkg/scd"
	"github.com/rehouzd/estate-pipeline/pkg/silver"
	"github.com/rehouzd/estate-pipeline/pkg/watermark"
)

// SaleHistoryStage composes the sale-detail table. It runs as a
// background stage: the caller allocates the generation up front so the
// trigger can report it before the run finishes.
type SaleHistoryStage struct {
	db         *gorm.DB
	watermarks *watermark.Store
	logger     *slog.Logger
	now        func() time.Time
}

// NewSaleHistoryStage creates the stage.
func NewSaleHistoryStage(db *gorm.DB, watermarks *watermark.Store, logger *slog.Logger) *SaleHistoryStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaleHistoryStage{
		db:         db,
		watermarks: watermarks,
		logger:     logger,
		now:        time.Now,
	}
}

// AllocateGeneration reserves the generation the next run will stamp.
// Called on the trigger path before the run is launched.
func (s *SaleHistoryStage) AllocateGeneration(ctx context.Context) (int64, error) {
	_, maxGen, err := scd.NextKeys(s.db.WithContext(ctx), silver.PropertySaleDetailTable, "slvr_int_prop_dtl_sk")
	if err != nil {
		return 0, fmt.Errorf("allocate sale history generation: %w", err)
	}
	return maxGen + 1, nil
}

// AddressKey builds the natural address key sale-detail rows are
// deduplicated on.
func AddressKey(addressLine, city, state, county, zip string) string {
	return strings.Join([]string{addressLine, city, state, county, zip}, "/")
}

// Run executes one composition batch under a pre-allocated generation.
// Two passes share it: propstream facts with address-scoped
// latest-record maintenance, then comparable parcel facts appended as
// always-latest rows without an address key. The watermark advances
// once after both passes commit. Returns rows written.
func (s *SaleHistoryStage) Run(ctx context.Context, generation int64) (int64, error) {
	now := s.now().UTC()
	loadDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var seq *scd.KeySequence
	var written int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxKey, _, err := scd.NextKeys(tx, silver.PropertySaleDetailTable, "slvr_int_prop_dtl_sk")
		if err != nil {
			return err
		}
		seq = scd.NewKeySequence(maxKey)
		n, err := s.composePropstream(ctx, tx, seq, generation, now, loadDate)
		written += n
		return err
	})
	if err != nil {
		return written, fmt.Errorf("compose sale history: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.composeParcelComps(ctx, tx, seq, generation, now, loadDate)
		written += n
		return err
	})
	if err != nil {
		return written, fmt.Errorf("compose sale history: %w", err)
	}

	if err := s.watermarks.Advance(ctx, silver.PropertySaleDetailTable, now, generation); err != nil {
		return written, fmt.Errorf("compose sale history: %w", err)
	}

	s.logger.Info("sale history composition complete",
		"generation", generation,
		"rows", written)
	return written, nil
}

// composePropstream lands the watermark-bounded propstream facts. Each
// row carries its address key; the newest sale per key arrives flagged
// latest, and the currently-latest row under that key is retired first.
func (s *SaleHistoryStage) composePropstream(ctx context.Context, tx *gorm.DB, seq *scd.KeySequence, generation int64, now, loadDate time.Time) (int64, error) {
	mark, err := s.watermarks.Get(ctx, bronze.PropertySaleTrackerName)
	if err != nil {
		return 0, err
	}
	query := tx.Order("brnz_prps_prop_sales_dtl_sk")
	if !mark.IsZero() {
		query = query.Where("etl_nr = ? AND etl_recorded_gmts <= ?", mark.Generation, mark.LastLoadedAt)
	}
	var facts []bronze.PropertySale
	if err := query.Find(&facts).Error; err != nil {
		return 0, fmt.Errorf("select propstream window: %w", err)
	}

	// Rank 1 within an address key is the newest sale date.
	newest := make(map[string]time.Time)
	keys := make([]string, len(facts))
	for i, fact := range facts {
		key := factAddressKey(fact)
		keys[i] = key
		if fact.LastSaleDate == nil {
			continue
		}
		if cur, ok := newest[key]; !ok || fact.LastSaleDate.After(cur) {
			newest[key] = *fact.LastSaleDate
		}
	}

	var written int64
	for i, fact := range facts {
		key := keys[i]
		latest := false
		if fact.LastSaleDate != nil {
			latest = fact.LastSaleDate.Equal(newest[key])
		} else if _, ok := newest[key]; !ok {
			// No dated sale under this key; everything ranks first.
			latest = true
		}

		if err := scd.DeactivateByKey(tx, &silver.PropertySaleDetail{}, "latest_record_ind", "usraddr", key); err != nil {
			return written, err
		}

		addrKey := key
		row := silver.PropertySaleDetail{
			SK:                seq.Next(),
			LoadDate:          loadDate,
			Generation:        generation,
			RecordedAt:        now,
			InsertedAt:        time.Now().UTC(),
			SaleDate:          fact.LastSaleDate,
			SaleAmount:        fact.LastSaleAmount,
			ConditionOverall:  fact.ConditionOverall,
			ConditionInterior: fact.ConditionInterior,
			ConditionExterior: fact.ConditionExterior,
			ConditionBathroom: fact.ConditionBathroom,
			ConditionKitchen:  fact.ConditionKitchen,
			ListPrice:         fact.ListPrice,
			LatestRecord:      latest,
			AddressKey:        &addrKey,
		}
		if err := tx.Create(&row).Error; err != nil {
			return written, fmt.Errorf("insert sale detail: %w", err)
		}
		written++
	}
	return written, nil
}

// composeParcelComps appends the watermark-bounded parcel facts that
// produced comparables. Conditions stay null and no address key is
// carried, so these rows never participate in latest-record retirement.
func (s *SaleHistoryStage) composeParcelComps(ctx context.Context, tx *gorm.DB, seq *scd.KeySequence, generation int64, now, loadDate time.Time) (int64, error) {
	parcelMark, err := s.watermarks.Get(ctx, bronze.ParcelPropertySaleTable)
	if err != nil {
		return 0, err
	}
	compMark, err := s.watermarks.Get(ctx, silver.PropertyCompTable)
	if err != nil {
		return 0, err
	}

	parcelQuery := tx.Order("brnz_prcl_prop_sales_dtl_sk")
	if !parcelMark.IsZero() {
		parcelQuery = parcelQuery.Where("etl_nr = ? AND etl_recorded_gmts <= ?", parcelMark.Generation, parcelMark.LastLoadedAt)
	}
	var parcels []bronze.ParcelPropertySale
	if err := parcelQuery.Find(&parcels).Error; err != nil {
		return 0, fmt.Errorf("select parcel window: %w", err)
	}

	compQuery := tx.Order("slvr_int_prop_comps_sk")
	if !compMark.IsZero() {
		compQuery = compQuery.Where("etl_nr = ? AND etl_recorded_gmts <= ?", compMark.Generation, compMark.LastLoadedAt)
	}
	var comps []silver.PropertyComp
	if err := compQuery.Find(&comps).Error; err != nil {
		return 0, fmt.Errorf("select comparables window: %w", err)
	}

	byParcel := make(map[int64]bronze.ParcelPropertySale, len(parcels))
	for _, parcel := range parcels {
		byParcel[parcel.SK] = parcel
	}

	var written int64
	for _, comp := range comps {
		parcel, ok := byParcel[comp.ParcelSaleFK]
		if !ok {
			continue
		}
		propertyFK := comp.PropertyFK
		row := silver.PropertySaleDetail{
			SK:           seq.Next(),
			PropertyFK:   &propertyFK,
			LoadDate:     loadDate,
			Generation:   generation,
			RecordedAt:   now,
			InsertedAt:   time.Now().UTC(),
			SaleDate:     parcel.SaleDate,
			SaleAmount:   parcel.SaleAmount,
			ListPrice:    parcel.ListPrice,
			LatestRecord: true,
		}
		if err := tx.Create(&row).Error; err != nil {
			return written, fmt.Errorf("insert comparable sale detail: %w", err)
		}
		written++
	}
	return written, nil
}

func factAddressKey(fact bronze.PropertySale) string {
	zip := ""
	if fact.Zip != nil {
		zip = *fact.Zip
	}
	return AddressKey(fact.AddressLine, fact.City, fact.State, fact.County, zip)
}
