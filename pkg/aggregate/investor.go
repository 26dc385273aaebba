// Package aggregate implements the bronze → silver aggregation stage:
// it folds raw property sale facts into one investor profile snapshot
// per investor company and applies the generation-wide SCD upsert.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"

	"github.com/rehouzd/estate-pipeline/pkg/bronze"
	"github.com/rehouzd/estate-pipeline/pkg/scd"
	"github.com/rehouzd/estate-pipeline/pkg/silver"
	"github.com/rehouzd/estate-pipeline/pkg/watermark"
)

// Config controls the aggregation window and bucketing.
type Config struct {
	// TrailingMonths bounds the purchase window (default 12).
	TrailingMonths int
	// BucketWidth is the floor-division width for year-built and
	// square-footage buckets (default 10).
	BucketWidth int
}

// DefaultConfig returns the default aggregation configuration.
func DefaultConfig() Config {
	return Config{TrailingMonths: 12, BucketWidth: 10}
}

// InvestorProfileStage computes investor profile snapshots from the
// propstream bronze feed.
type InvestorProfileStage struct {
	db         *gorm.DB
	watermarks *watermark.Store
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewInvestorProfileStage creates the stage.
func NewInvestorProfileStage(db *gorm.DB, watermarks *watermark.Store, cfg Config, logger *slog.Logger) *InvestorProfileStage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TrailingMonths <= 0 {
		cfg.TrailingMonths = 12
	}
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = 10
	}
	return &InvestorProfileStage{
		db:         db,
		watermarks: watermarks,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one aggregation batch: select the committed bronze
// window, group by investor company, build profile documents, retire
// the previous generation and insert the new one, then advance the
// watermark. Returns the generation stamped on the batch and its
// recorded timestamp.
func (s *InvestorProfileStage) Run(ctx context.Context) (int64, time.Time, error) {
	mark, err := s.watermarks.Get(ctx, bronze.PropertySaleTrackerName)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("aggregate investor profiles: %w", err)
	}

	now := s.now().UTC()
	windowStart := now.AddDate(0, -s.cfg.TrailingMonths, 0)

	query := s.db.WithContext(ctx).
		Where("prop_last_sale_dt <= ? AND prop_last_sale_dt >= ?", now, windowStart).
		Where("investor_company_nm_txt IS NOT NULL").
		Where("prop_attr_br_cnt IS NOT NULL").
		Where("prop_attr_bth_cnt IS NOT NULL").
		Where("prop_last_sale_amt IS NOT NULL").
		Where("prop_yr_blt_nr IS NOT NULL").
		Where("prop_attr_sqft_nr IS NOT NULL").
		Where("prop_zip_cd IS NOT NULL")
	// A zero mark means the bronze feed has never been tracked: the
	// first run takes the whole history. Afterwards only the committed
	// batch the mark points at is eligible.
	if !mark.IsZero() {
		query = query.Where("etl_nr = ? AND etl_recorded_gmts <= ?", mark.Generation, mark.LastLoadedAt)
	}

	var facts []bronze.PropertySale
	if err := query.Find(&facts).Error; err != nil {
		return 0, time.Time{}, fmt.Errorf("select bronze window: %w", err)
	}

	groups := make(map[string][]bronze.PropertySale)
	for _, fact := range facts {
		company := *fact.InvestorCompany
		groups[company] = append(groups[company], fact)
	}
	companies := make([]string, 0, len(groups))
	for company := range groups {
		companies = append(companies, company)
	}
	sort.Strings(companies)

	recordedAt := now
	loadDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var generation int64

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxKey, maxGen, err := scd.NextKeys(tx, silver.InvestorDetail{}.TableName(), "slvr_int_inv_dtl_sk")
		if err != nil {
			return err
		}
		generation = maxGen + 1
		seq := scd.NewKeySequence(maxKey)

		if err := scd.DeactivateGeneration(tx, &silver.InvestorDetail{}, "active_rec_ind", maxGen); err != nil {
			return err
		}

		for _, company := range companies {
			profile, count := buildProfile(groups[company], s.cfg.BucketWidth)
			doc, err := profile.Marshal()
			if err != nil {
				return err
			}

			row := silver.InvestorDetail{
				SK:              seq.Next(),
				LoadDate:        loadDate,
				Generation:      generation,
				RecordedAt:      recordedAt,
				InsertedAt:      time.Now().UTC(),
				ActiveFlag:      count >= 2,
				InvestorCompany: company,
				Profile:         doc,
				PurchaseCount:   count,
				ActiveRecord:    true,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert investor detail for %q: %w", company, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("aggregate investor profiles: %w", err)
	}

	if err := s.watermarks.Advance(ctx, silver.InvestorDetailTrackerName, recordedAt, generation); err != nil {
		return 0, time.Time{}, fmt.Errorf("aggregate investor profiles: %w", err)
	}

	s.logger.Info("investor profile aggregation complete",
		"generation", generation,
		"facts", len(facts),
		"investors", len(companies))

	return generation, recordedAt, nil
}

// buildProfile folds one investor's facts into a profile document.
// Groups of one are still emitted; the count decides the active flag
// upstream. Required fields are non-null by query construction.
func buildProfile(facts []bronze.PropertySale, bucketWidth int) (*silver.InvestorProfile, int) {
	profile := &silver.InvestorProfile{
		OverallCondition:  silver.NewConditionTally(),
		InteriorCondition: silver.NewConditionTally(),
		ExteriorCondition: silver.NewConditionTally(),
		BathroomCondition: silver.NewConditionTally(),
		KitchenCondition:  silver.NewConditionTally(),
	}

	zips := mapset.NewSet[string]()
	minBedrooms := math.MaxInt
	minBathrooms := math.MaxFloat64
	minAmount := math.MaxFloat64
	maxAmount := -math.MaxFloat64
	minYear := math.MaxInt
	minSqft := math.MaxInt

	for _, fact := range facts {
		if *fact.Bedrooms < minBedrooms {
			minBedrooms = *fact.Bedrooms
		}
		if *fact.Bathrooms < minBathrooms {
			minBathrooms = *fact.Bathrooms
		}
		if *fact.LastSaleAmount < minAmount {
			minAmount = *fact.LastSaleAmount
		}
		if *fact.LastSaleAmount > maxAmount {
			maxAmount = *fact.LastSaleAmount
		}
		if *fact.YearBuilt < minYear {
			minYear = *fact.YearBuilt
		}
		if *fact.SquareFootage < minSqft {
			minSqft = *fact.SquareFootage
		}
		zips.Add(*fact.Zip)

		profile.OverallCondition.Add(fact.ConditionOverall)
		profile.InteriorCondition.Add(fact.ConditionInterior)
		profile.ExteriorCondition.Add(fact.ConditionExterior)
		profile.BathroomCondition.Add(fact.ConditionBathroom)
		profile.KitchenCondition.Add(fact.ConditionKitchen)
	}

	profile.MinBedrooms = minBedrooms
	profile.MinBathrooms = int(math.Floor(minBathrooms))
	profile.MinPurchaseAmount = minAmount
	profile.MaxPurchaseAmount = maxAmount
	profile.MinYearBuilt = silver.Bucket(float64(minYear), bucketWidth)
	profile.MinSquareFootage = silver.Bucket(float64(minSqft), bucketWidth)

	list := zips.ToSlice()
	sort.Strings(list)
	profile.Zips = list

	return profile, len(facts)
}
