package pipeline

import (
	"os"
	"strconv"

	"github.com/rehouzd/estate-pipeline/pkg/enrich"
)

// Config carries every tunable the stages read. It is threaded
// explicitly into stage constructors; nothing reads it ambiently.
type Config struct {
	// TrailingPurchaseMonths bounds the investor aggregation window.
	TrailingPurchaseMonths int
	// EventHistoryMonths bounds the external event-history requests.
	EventHistoryMonths int
	// SquareFootageTolerance is the matching band half-width in sqft.
	SquareFootageTolerance int
	// YearBuiltTolerance is the comparables band half-width in years.
	YearBuiltTolerance int
	// BucketWidth is the profile floor-division bucket width.
	BucketWidth int
	// Parcl configures the external property API client.
	Parcl enrich.ClientConfig
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		TrailingPurchaseMonths: 12,
		EventHistoryMonths:     6,
		SquareFootageTolerance: 200,
		YearBuiltTolerance:     20,
		BucketWidth:            10,
		Parcl:                  enrich.DefaultClientConfig(),
	}
}

// ConfigFromEnv loads the pipeline configuration from environment
// variables, falling back to defaults.
// PIPELINE_TRAILING_PURCHASE_MONTHS, PIPELINE_EVENT_HISTORY_MONTHS,
// PIPELINE_SQFT_TOLERANCE, PIPELINE_YEAR_BUILT_TOLERANCE,
// PIPELINE_BUCKET_WIDTH, plus the PARCL_* client variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Parcl = enrich.ClientConfigFromEnv()

	if n, ok := envInt("PIPELINE_TRAILING_PURCHASE_MONTHS"); ok {
		cfg.TrailingPurchaseMonths = n
	}
	if n, ok := envInt("PIPELINE_EVENT_HISTORY_MONTHS"); ok {
		cfg.EventHistoryMonths = n
	}
	if n, ok := envInt("PIPELINE_SQFT_TOLERANCE"); ok {
		cfg.SquareFootageTolerance = n
	}
	if n, ok := envInt("PIPELINE_YEAR_BUILT_TOLERANCE"); ok {
		cfg.YearBuiltTolerance = n
	}
	if n, ok := envInt("PIPELINE_BUCKET_WIDTH"); ok {
		cfg.BucketWidth = n
	}
	return cfg
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
