package silver

import (
	"encoding/json"
	"fmt"
	"math"
)

// Quality levels tallied per condition category. The spellings are the
// upstream feed's values and double as JSON keys in the stored profile.
const (
	LevelGood      = "Good"
	LevelAverage   = "Average"
	LevelDisrepair = "Disrepair"
	LevelExcellent = "Excellent"
	LevelPoor      = "Poor"
)

// QualityLevels lists every tallied level in stable order.
var QualityLevels = []string{LevelGood, LevelAverage, LevelDisrepair, LevelExcellent, LevelPoor}

// ConditionTally counts properties per quality level for one condition
// category. Counts are never negative.
type ConditionTally map[string]int

// NewConditionTally returns a tally with every quality level at zero,
// so serialized profiles always carry all five keys.
func NewConditionTally() ConditionTally {
	t := make(ConditionTally, len(QualityLevels))
	for _, level := range QualityLevels {
		t[level] = 0
	}
	return t
}

// Add counts one observation. Unknown levels are ignored rather than
// polluting the document with feed typos.
func (t ConditionTally) Add(level *string) {
	if level == nil {
		return
	}
	if _, ok := t[*level]; ok {
		t[*level]++
	}
}

// InvestorProfile is the structured document stored with each investor
// detail snapshot. Numeric thresholds come from min/max aggregates over
// the investor's purchases; year and square footage are bucketed by
// floor division.
type InvestorProfile struct {
	MinBedrooms       int      `json:"min_prop_attr_br_cnt"`
	MinBathrooms      int      `json:"min_prop_attr_bth_cnt"`
	MaxPurchaseAmount float64  `json:"mx_props_amnt"`
	MinPurchaseAmount float64  `json:"min_props_amnt"`
	MinYearBuilt      int      `json:"min_year"`
	MinSquareFootage  int      `json:"min_sqft"`
	Zips              []string `json:"list_zips"`

	OverallCondition  ConditionTally `json:"prop_tlt_cnd_nm"`
	InteriorCondition ConditionTally `json:"prop_int_cnd_nm"`
	ExteriorCondition ConditionTally `json:"prop_ext_cnd_nm"`
	BathroomCondition ConditionTally `json:"prop_bth_cnd_nm"`
	KitchenCondition  ConditionTally `json:"prop_kth_cnd_nm"`
}

// Marshal serializes the profile for the investor_profile text column.
func (p *InvestorProfile) Marshal() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal investor profile: %w", err)
	}
	return string(data), nil
}

// ParseInvestorProfile deserializes a stored profile document.
func ParseInvestorProfile(doc string) (*InvestorProfile, error) {
	var p InvestorProfile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("parse investor profile: %w", err)
	}
	return &p, nil
}

// Bucket floors a value to a multiple of width. Zero and negative
// boundaries are valid and preserved.
func Bucket(value float64, width int) int {
	if width <= 0 {
		width = 1
	}
	return int(math.Floor(value/float64(width))) * width
}
