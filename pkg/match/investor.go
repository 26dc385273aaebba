// Package match implements the silver matching stages: correlating
// parcel sale facts with active investor profiles, and building
// comparable-sale associations for matched properties.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"

	"github.com/rehouzd/estate-pipeline/pkg/bronze"
	"github.com/rehouzd/estate-pipeline/pkg/scd"
	"github.com/rehouzd/estate-pipeline/pkg/silver"
	"github.com/rehouzd/estate-pipeline/pkg/watermark"
)

// Source system codes stamped on matched property rows.
const (
	SourcePAR     = "PAR"
	SourcePARDesc = "Parcl Labs API"
)

// Activity statuses on parcel facts.
const (
	StatusSale    = "SALE"
	StatusListing = "LISTING"
	StatusRental  = "RENTAL"
)

// allowedEvents is the activity status/sub-status whitelist: only these
// parcel events are eligible for matching.
var allowedEvents = map[string]mapset.Set[string]{
	StatusSale: mapset.NewSet(
		"SOLD",
		"NON_ARMS_LENGTH_TRANSFER",
		"SOLD_INTER_PORTFOLIO_TRANSFER",
		"NON_ARMS_LENGTH_INTRA_PORTFOLIO_TRANSFER",
	),
	StatusListing: mapset.NewSet(
		"LISTED_SALE",
		"LISTING_REMOVED",
		"OTHER",
		"PENDING_SALE",
		"PRICE_CHANGE",
		"RELISTED",
	),
	StatusRental: mapset.NewSet(
		"LISTED_FOR_RENT",
		"PRICE_CHANGE",
		"DELISTED_FOR_RENT",
		"LISTED_RENT",
	),
}

func eventAllowed(status, subStatus *string) bool {
	if status == nil || subStatus == nil {
		return false
	}
	subs, ok := allowedEvents[*status]
	return ok && subs.Contains(*subStatus)
}

// Config controls the matching tolerances.
type Config struct {
	// SquareFootageTolerance is the half-width of the square footage
	// acceptance band (default 200).
	SquareFootageTolerance int
	// YearBuiltTolerance is the half-width of the year-built band used
	// for comparables (default 20).
	YearBuiltTolerance int
}

// DefaultConfig returns the default matching configuration.
func DefaultConfig() Config {
	return Config{SquareFootageTolerance: 200, YearBuiltTolerance: 20}
}

// PropertyInvestorStage correlates parcel sale facts with active
// investor profiles and records the candidate associations.
type PropertyInvestorStage struct {
	db         *gorm.DB
	watermarks *watermark.Store
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewPropertyInvestorStage creates the stage.
func NewPropertyInvestorStage(db *gorm.DB, watermarks *watermark.Store, cfg Config, logger *slog.Logger) *PropertyInvestorStage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SquareFootageTolerance <= 0 {
		cfg.SquareFootageTolerance = 200
	}
	if cfg.YearBuiltTolerance <= 0 {
		cfg.YearBuiltTolerance = 20
	}
	return &PropertyInvestorStage{
		db:         db,
		watermarks: watermarks,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// boundedParcelRows selects the parcel facts a matching run may consume:
// the committed batch the parcel watermark points at, or the whole feed
// when the mark is still zero. Rows missing a matchable attribute are
// filtered out up front.
func boundedParcelRows(ctx context.Context, db *gorm.DB, watermarks *watermark.Store) ([]bronze.ParcelPropertySale, error) {
	mark, err := watermarks.Get(ctx, bronze.ParcelPropertySaleTable)
	if err != nil {
		return nil, err
	}

	query := db.WithContext(ctx).
		Where("prop_attr_br_cnt IS NOT NULL").
		Where("prop_attr_bth_cnt IS NOT NULL").
		Where("prop_attr_sqft_nr IS NOT NULL").
		Where("prop_yr_blt_nr IS NOT NULL").
		Where("prop_zip_cd IS NOT NULL")
	if !mark.IsZero() {
		query = query.Where("etl_nr = ? AND etl_recorded_gmts <= ?", mark.Generation, mark.LastLoadedAt)
	}

	var rows []bronze.ParcelPropertySale
	if err := query.Order("brnz_prcl_prop_sales_dtl_sk").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select parcel window: %w", err)
	}
	return rows, nil
}

type profileCandidate struct {
	detail  silver.InvestorDetail
	profile *silver.InvestorProfile
	zips    mapset.Set[string]
}

// Run executes one matching batch: every whitelisted parcel fact is
// tested against every active investor profile, and every passing pair
// becomes a property association row. Fan-out is intentional. Returns
// the generation stamped on the batch and its recorded timestamp.
func (s *PropertyInvestorStage) Run(ctx context.Context) (int64, time.Time, error) {
	parcels, err := boundedParcelRows(ctx, s.db, s.watermarks)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("match properties to investors: %w", err)
	}

	var details []silver.InvestorDetail
	err = s.db.WithContext(ctx).
		Where("active_rec_ind = ? AND active_flg = ?", true, true).
		Order("slvr_int_inv_dtl_sk").
		Find(&details).Error
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("select active investor profiles: %w", err)
	}

	candidates := make([]profileCandidate, 0, len(details))
	for _, detail := range details {
		profile, err := silver.ParseInvestorProfile(detail.Profile)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("parse profile for %q: %w", detail.InvestorCompany, err)
		}
		candidates = append(candidates, profileCandidate{
			detail:  detail,
			profile: profile,
			zips:    mapset.NewSet(profile.Zips...),
		})
	}

	now := s.now().UTC()
	loadDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var generation int64
	var matched int

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxKey, maxGen, err := scd.NextKeys(tx, silver.PropertyTable, "slvr_int_prop_sk")
		if err != nil {
			return err
		}
		generation = maxGen + 1
		seq := scd.NewKeySequence(maxKey)

		for _, parcel := range parcels {
			if !eventAllowed(parcel.ActivityStatus, parcel.ActivitySubStatus) {
				continue
			}
			for _, cand := range candidates {
				if !s.matchesProfile(parcel, cand) {
					continue
				}
				row := silver.Property{
					SK:               seq.Next(),
					InvestorDetailFK: cand.detail.SK,
					ParcelSaleFK:     parcel.SK,
					LoadDate:         loadDate,
					Generation:       generation,
					RecordedAt:       now,
					InsertedAt:       time.Now().UTC(),
					SourceSystemCode: SourcePAR,
					SourceSystemDesc: SourcePARDesc,
					Bedrooms:         parcel.Bedrooms,
					Bathrooms:        parcel.Bathrooms,
					SquareFootage:    parcel.SquareFootage,
					YearBuilt:        parcel.YearBuilt,
					AddressLine:      parcel.AddressLine,
					City:             parcel.City,
					State:            parcel.State,
					County:           parcel.County,
					Zip:              parcel.Zip,
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("insert property match: %w", err)
				}
				matched++
			}
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("match properties to investors: %w", err)
	}

	if err := s.watermarks.Advance(ctx, silver.PropertyTable, now, generation); err != nil {
		return 0, time.Time{}, fmt.Errorf("match properties to investors: %w", err)
	}

	s.logger.Info("property-investor matching complete",
		"generation", generation,
		"parcels", len(parcels),
		"profiles", len(candidates),
		"matches", matched)

	return generation, now, nil
}

// matchesProfile applies the profile acceptance predicates to one parcel
// fact. Attribute pointers are non-nil by query construction.
func (s *PropertyInvestorStage) matchesProfile(parcel bronze.ParcelPropertySale, cand profileCandidate) bool {
	p := cand.profile
	if *parcel.Bedrooms != p.MinBedrooms {
		return false
	}
	if int(math.Floor(*parcel.Bathrooms)) != p.MinBathrooms {
		return false
	}
	if abs(*parcel.SquareFootage-p.MinSquareFootage) > s.cfg.SquareFootageTolerance {
		return false
	}
	if *parcel.YearBuilt < p.MinYearBuilt {
		return false
	}
	return cand.zips.Contains(*parcel.Zip)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
