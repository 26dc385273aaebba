package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/rehouzd/estate-pipeline/pkg/bronze"
	"github.com/rehouzd/estate-pipeline/pkg/scd"
	"github.com/rehouzd/estate-pipeline/pkg/watermark"
)

// StageConfig controls the ingest window.
type StageConfig struct {
	// EventHistoryMonths is how far back event history is requested
	// (default 6).
	EventHistoryMonths int
}

// DefaultStageConfig returns the default ingest configuration.
func DefaultStageConfig() StageConfig {
	return StageConfig{EventHistoryMonths: 6}
}

// ParcelIngestStage resolves queued addresses through the external API
// and lands the selected sale and rental events as parcel facts.
type ParcelIngestStage struct {
	db         *gorm.DB
	watermarks *watermark.Store
	client     *Client
	cfg        StageConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewParcelIngestStage creates the stage.
func NewParcelIngestStage(db *gorm.DB, watermarks *watermark.Store, client *Client, cfg StageConfig, logger *slog.Logger) *ParcelIngestStage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventHistoryMonths <= 0 {
		cfg.EventHistoryMonths = 6
	}
	return &ParcelIngestStage{
		db:         db,
		watermarks: watermarks,
		client:     client,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one ingest batch: resolve every watermark-bounded queued
// address, fetch each resolved property's event history, select the
// sale and rental events, and land the facts in a single transaction
// before advancing the parcel watermark. A non-success event-history
// response skips that property and the batch continues; transport
// failures abort the run. Returns the generation stamped on the batch
// and its recorded timestamp.
func (s *ParcelIngestStage) Run(ctx context.Context) (int64, time.Time, error) {
	mark, err := s.watermarks.Get(ctx, bronze.AddressDetailTable)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ingest parcel detail: %w", err)
	}

	query := s.db.WithContext(ctx).Order("brnz_goog_prop_address_dtl_sk")
	if !mark.IsZero() {
		query = query.Where("etl_nr = ? AND etl_recorded_gmts <= ?", mark.Generation, mark.LastLoadedAt)
	}
	var addresses []bronze.AddressDetail
	if err := query.Find(&addresses).Error; err != nil {
		return 0, time.Time{}, fmt.Errorf("select queued addresses: %w", err)
	}

	now := s.now().UTC()
	loadDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startDate := subtractMonths(loadDate, s.cfg.EventHistoryMonths)

	// API calls happen before the write transaction opens; a skipped
	// property leaves no partial rows behind.
	var pending []bronze.ParcelPropertySale
	var skipped int
	for _, addr := range addresses {
		results, err := s.client.SearchAddress(ctx, AddressQuery{
			Address:           addr.AddressLine,
			City:              addr.City,
			StateAbbreviation: addr.State,
			ZipCode:           addr.Zip,
		})
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("ingest parcel detail: %w", err)
		}

		for _, res := range results {
			events, err := s.client.EventHistory(ctx, res.ParclPropertyID, startDate)
			if err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					s.logger.Error("event history unavailable, skipping property",
						"parcl_property_id", res.ParclPropertyID,
						"status", apiErr.StatusCode)
					skipped++
					continue
				}
				return 0, time.Time{}, fmt.Errorf("ingest parcel detail: %w", err)
			}

			if ev := SelectEvent(events, EventTypeSale, EventNameSold, EventTypeListing, EventNamePendingSale); ev != nil {
				row, err := buildParcelRow(res, ev, loadDate)
				if err != nil {
					return 0, time.Time{}, fmt.Errorf("ingest parcel detail: %w", err)
				}
				pending = append(pending, row)
			}
			if ev := SelectEvent(events, EventTypeRental, EventNameDelistedForRent, "", ""); ev != nil {
				row, err := buildParcelRow(res, ev, loadDate)
				if err != nil {
					return 0, time.Time{}, fmt.Errorf("ingest parcel detail: %w", err)
				}
				pending = append(pending, row)
			}
		}
	}

	var generation int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxKey, maxGen, err := scd.NextKeys(tx, bronze.ParcelPropertySale{}.TableName(), "brnz_prcl_prop_sales_dtl_sk")
		if err != nil {
			return err
		}
		generation = maxGen + 1
		seq := scd.NewKeySequence(maxKey)

		for i := range pending {
			pending[i].SK = seq.Next()
			pending[i].Generation = generation
			pending[i].RecordedAt = now
			pending[i].InsertedAt = time.Now().UTC()
			if err := tx.Create(&pending[i]).Error; err != nil {
				return fmt.Errorf("insert parcel fact: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ingest parcel detail: %w", err)
	}

	if err := s.watermarks.Advance(ctx, bronze.ParcelPropertySaleTable, now, generation); err != nil {
		return 0, time.Time{}, fmt.Errorf("ingest parcel detail: %w", err)
	}

	s.logger.Info("parcel ingest complete",
		"generation", generation,
		"addresses", len(addresses),
		"facts", len(pending),
		"skipped_properties", skipped)

	return generation, now, nil
}

// buildParcelRow shapes one selected event into a parcel fact. Surrogate
// key and etl columns are stamped at insert time.
func buildParcelRow(res PropertyResult, ev *Event, loadDate time.Time) (bronze.ParcelPropertySale, error) {
	saleDate, err := time.Parse("2006-01-02", ev.EventDate)
	if err != nil {
		return bronze.ParcelPropertySale{}, fmt.Errorf("parse event date %q: %w", ev.EventDate, err)
	}

	var bathrooms *float64
	if res.Bathrooms != nil {
		// The feed carries half baths; the raw layer stores whole ones.
		v := math.Ceil(*res.Bathrooms)
		bathrooms = &v
	}
	price := ev.Price
	zip := res.ZipCode
	status := ev.EventType
	subStatus := ev.EventName

	return bronze.ParcelPropertySale{
		LoadDate:          loadDate,
		InvestorCompany:   ev.EntityOwnerName,
		SaleDate:          &saleDate,
		SaleAmount:        &price,
		Bedrooms:          res.Bedrooms,
		Bathrooms:         bathrooms,
		SquareFootage:     res.SquareFootage,
		YearBuilt:         res.YearBuilt,
		AddressLine:       res.Address,
		City:              res.City,
		State:             res.StateAbbreviation,
		County:            res.County,
		Zip:               &zip,
		ActivityStatus:    &status,
		ActivitySubStatus: &subStatus,
		Latitude:          res.Latitude,
		Longitude:         res.Longitude,
	}, nil
}
