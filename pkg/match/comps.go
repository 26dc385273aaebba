package match

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/rehouzd/estate-pipeline/pkg/bronze"
	"github.com/rehouzd/estate-pipeline/pkg/scd"
	"github.com/rehouzd/estate-pipeline/pkg/silver"
	"github.com/rehouzd/estate-pipeline/pkg/watermark"
)

// ComparablesStage joins parcel sale facts against matched silver
// properties to build comparable-sale associations.
type ComparablesStage struct {
	db         *gorm.DB
	watermarks *watermark.Store
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewComparablesStage creates the stage.
func NewComparablesStage(db *gorm.DB, watermarks *watermark.Store, cfg Config, logger *slog.Logger) *ComparablesStage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SquareFootageTolerance <= 0 {
		cfg.SquareFootageTolerance = 200
	}
	if cfg.YearBuiltTolerance <= 0 {
		cfg.YearBuiltTolerance = 20
	}
	return &ComparablesStage{
		db:         db,
		watermarks: watermarks,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one comparables batch: watermark-bounded parcel facts are
// joined against the committed generation of matched properties on
// similar physical attributes, and every passing pair becomes a
// comparable row. Returns the generation stamped on the batch and its
// recorded timestamp.
func (s *ComparablesStage) Run(ctx context.Context) (int64, time.Time, error) {
	parcels, err := boundedParcelRows(ctx, s.db, s.watermarks)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("build property comparables: %w", err)
	}

	propMark, err := s.watermarks.Get(ctx, silver.PropertyTable)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("build property comparables: %w", err)
	}
	propQuery := s.db.WithContext(ctx).
		Where("prop_attr_br_cnt IS NOT NULL").
		Where("prop_attr_bth_cnt IS NOT NULL").
		Where("prop_attr_sqft_nr IS NOT NULL").
		Where("prop_yr_blt_nr IS NOT NULL")
	if !propMark.IsZero() {
		propQuery = propQuery.Where("etl_nr = ? AND etl_recorded_gmts <= ?", propMark.Generation, propMark.LastLoadedAt)
	}
	var properties []silver.Property
	if err := propQuery.Order("slvr_int_prop_sk").Find(&properties).Error; err != nil {
		return 0, time.Time{}, fmt.Errorf("select matched properties: %w", err)
	}

	now := s.now().UTC()
	loadDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var generation int64
	var matched int

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxKey, maxGen, err := scd.NextKeys(tx, silver.PropertyCompTable, "slvr_int_prop_comps_sk")
		if err != nil {
			return err
		}
		generation = maxGen + 1
		seq := scd.NewKeySequence(maxKey)

		for _, parcel := range parcels {
			for _, prop := range properties {
				// A parcel fact is not comparable to the property row it
				// itself produced.
				if prop.ParcelSaleFK == parcel.SK {
					continue
				}
				if !s.comparable(parcel, prop) {
					continue
				}
				row := silver.PropertyComp{
					SK:            seq.Next(),
					PropertyFK:    prop.SK,
					ParcelSaleFK:  parcel.SK,
					LoadDate:      loadDate,
					Generation:    generation,
					RecordedAt:    now,
					InsertedAt:    time.Now().UTC(),
					Bedrooms:      parcel.Bedrooms,
					Bathrooms:     parcel.Bathrooms,
					SquareFootage: parcel.SquareFootage,
					YearBuilt:     parcel.YearBuilt,
					AddressLine:   parcel.AddressLine,
					City:          parcel.City,
					State:         parcel.State,
					County:        parcel.County,
					Zip:           parcel.Zip,
					Latitude:      parcel.Latitude,
					Longitude:     parcel.Longitude,
				}
				if parcel.ActivityStatus != nil {
					switch *parcel.ActivityStatus {
					case StatusRental:
						row.LatestRentalAmt = parcel.SaleAmount
					case StatusSale, StatusListing:
						row.LatestSalesAmt = parcel.SaleAmount
					}
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("insert property comparable: %w", err)
				}
				matched++
			}
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("build property comparables: %w", err)
	}

	if err := s.watermarks.Advance(ctx, silver.PropertyCompTable, now, generation); err != nil {
		return 0, time.Time{}, fmt.Errorf("build property comparables: %w", err)
	}

	s.logger.Info("property comparables complete",
		"generation", generation,
		"parcels", len(parcels),
		"properties", len(properties),
		"comparables", matched)

	return generation, now, nil
}

// comparable tests whether a parcel fact is a comparable sale for a
// matched property. Attribute pointers are non-nil by query
// construction on both sides.
func (s *ComparablesStage) comparable(parcel bronze.ParcelPropertySale, prop silver.Property) bool {
	if *parcel.Bedrooms != *prop.Bedrooms {
		return false
	}
	if *parcel.Bathrooms != *prop.Bathrooms {
		return false
	}
	if abs(*parcel.SquareFootage-*prop.SquareFootage) > s.cfg.SquareFootageTolerance {
		return false
	}
	return abs(*parcel.YearBuilt-*prop.YearBuilt) <= s.cfg.YearBuiltTolerance
}
