// Package pipeline wires the ETL stages behind a single dispatch
// surface: a typed process key selects the stage, an HTTP trigger
// exposes it, and background stages are tracked as pipeline runs.
package pipeline

import (
	"context"
	"time"
)

// ProcessKey selects a pipeline stage. The wire spellings are
// historical and load-bearing: existing schedulers trigger stages by
// these exact strings.
type ProcessKey string

const (
	// KeyAggregateInvestorProfile folds propstream sale facts into
	// investor profile snapshots.
	KeyAggregateInvestorProfile ProcessKey = "process_silver_int_inv_dtl"
	// KeyIngestParcelDetail resolves queued addresses through the
	// external API into parcel facts.
	KeyIngestParcelDetail ProcessKey = "process_bnz_prcl_dtl"
	// KeyMatchPropertyToInvestor correlates parcel facts with active
	// investor profiles.
	KeyMatchPropertyToInvestor ProcessKey = "process_slv_int_prp"
	// KeyBuildPropertyComparables joins parcel facts against matched
	// properties.
	KeyBuildPropertyComparables ProcessKey = "process_slv_pr_cmps"
	// KeyBuildSaleHistory composes the sale-detail table in the
	// background; the trigger reports the allocated generation.
	KeyBuildSaleHistory ProcessKey = "call_slvr_int_prp_dtl"
	// KeyAdvanceRawWatermark records an out-of-band load of the
	// propstream feed. Params: etl_recorded_gmts, etl_nr.
	KeyAdvanceRawWatermark ProcessKey = "bnz_prps_upd"
)

// SaleHistoryStageName names the background stage in run tracking.
const SaleHistoryStageName = "build-property-sale-history"

// stageRunner is the synchronous stage contract the foreground keys
// dispatch to.
type stageRunner interface {
	Run(ctx context.Context) (int64, time.Time, error)
}
