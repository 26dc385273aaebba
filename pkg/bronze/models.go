// Package bronze holds the raw-layer models: minimally transformed
// fact rows as ingested from the upstream feeds. Bronze tables are
// append-only; every row carries the batch generation (etl_nr) and the
// recorded timestamp the watermark registry bounds windows with.
// Nullable attributes use pointers to distinguish NULL from zero.
package bronze

import (
	"time"
)

// Logical table names used as watermark registry keys.
const (
	// PropertySaleTrackerName is the registry key for the propstream
	// feed; the upstream loader advances it out of band.
	PropertySaleTrackerName = "pl_brnz_prps_prop_sales_dtl"

	ParcelPropertySaleTable = "brnz_prcl_prop_sales_dtl"
	AddressDetailTable      = "brnz_goog_prop_add_dtl"
)

// PropertySale is a raw property sale/listing fact from the propstream
// feed, including the five condition category names the investor
// profile aggregation tallies.
type PropertySale struct {
	SK         int64      `gorm:"primaryKey;autoIncrement:false;column:brnz_prps_prop_sales_dtl_sk"`
	LoadDate   time.Time  `gorm:"column:load_date_dt;not null"`
	Generation int64      `gorm:"column:etl_nr;index:idx_prps_etl_nr;not null"`
	RecordedAt time.Time  `gorm:"column:etl_recorded_gmts;not null"`
	InsertedAt time.Time  `gorm:"column:record_inserted_ts;not null"`

	InvestorCompany *string    `gorm:"column:investor_company_nm_txt;index:idx_prps_investor"`
	LastSaleDate    *time.Time `gorm:"column:prop_last_sale_dt"`
	LastSaleAmount  *float64   `gorm:"column:prop_last_sale_amt"`
	Bedrooms        *int       `gorm:"column:prop_attr_br_cnt"`
	Bathrooms       *float64   `gorm:"column:prop_attr_bth_cnt"`
	SquareFootage   *int       `gorm:"column:prop_attr_sqft_nr"`
	YearBuilt       *int       `gorm:"column:prop_yr_blt_nr"`
	AddressLine     string     `gorm:"column:prop_address_line_txt"`
	City            string     `gorm:"column:prop_city_nm"`
	State           string     `gorm:"column:prop_state_nm"`
	County          string     `gorm:"column:prop_cnty_nm"`
	Zip             *string    `gorm:"column:prop_zip_cd"`
	ListPrice       *float64   `gorm:"column:prop_list_price_amt"`

	ConditionOverall  *string `gorm:"column:prop_tlt_cnd_nm"`
	ConditionInterior *string `gorm:"column:prop_int_cnd_nm"`
	ConditionExterior *string `gorm:"column:prop_ext_cnd_nm"`
	ConditionBathroom *string `gorm:"column:prop_bth_cnd_nm"`
	ConditionKitchen  *string `gorm:"column:prop_kth_cnd_nm"`
}

// TableName returns the GORM table name.
func (PropertySale) TableName() string { return "brnz_prps_prop_sales_dtl" }

// ParcelPropertySale is a raw sale/listing/rental event resolved
// through the external parcel API by the enrichment stage. Condition
// names are never populated by the API and stay NULL.
type ParcelPropertySale struct {
	SK         int64     `gorm:"primaryKey;autoIncrement:false;column:brnz_prcl_prop_sales_dtl_sk"`
	LoadDate   time.Time `gorm:"column:load_date_dt;not null"`
	Generation int64     `gorm:"column:etl_nr;index:idx_prcl_etl_nr;not null"`
	RecordedAt time.Time `gorm:"column:etl_recorded_gmts;not null"`
	InsertedAt time.Time `gorm:"column:record_inserted_ts;not null"`

	InvestorCompany       *string    `gorm:"column:investor_company_nm_txt"`
	SaleDate              *time.Time `gorm:"column:prop_sale_dt"`
	SaleAmount            *float64   `gorm:"column:prop_sale_amt"`
	Bedrooms              *int       `gorm:"column:prop_attr_br_cnt"`
	Bathrooms             *float64   `gorm:"column:prop_attr_bth_cnt"`
	SquareFootage         *int       `gorm:"column:prop_attr_sqft_nr"`
	YearBuilt             *int       `gorm:"column:prop_yr_blt_nr"`
	AddressLine           string     `gorm:"column:prop_address_line_txt"`
	City                  string     `gorm:"column:prop_city_nm"`
	State                 string     `gorm:"column:prop_state_nm"`
	County                string     `gorm:"column:prop_cnty_nm"`
	Zip                   *string    `gorm:"column:prop_zip_cd"`
	ListPrice             *float64   `gorm:"column:prop_list_price_amt"`
	ActivityStatus        *string    `gorm:"column:prop_acty_status_cd"`
	ActivityStatusDesc    *string    `gorm:"column:prop_acty_status_dc"`
	ActivitySubStatus     *string    `gorm:"column:prop_acty_sub_status_cd"`
	ActivitySubStatusDesc *string    `gorm:"column:prop_acty_sub_status_dc"`
	Latitude              *float64   `gorm:"column:prop_latitude_val"`
	Longitude             *float64   `gorm:"column:prop_longitude_val"`
}

// TableName returns the GORM table name.
func (ParcelPropertySale) TableName() string { return "brnz_prcl_prop_sales_dtl" }

// AddressDetail is an unresolved property address queued for external
// enrichment.
type AddressDetail struct {
	SK         int64     `gorm:"primaryKey;autoIncrement:false;column:brnz_goog_prop_address_dtl_sk"`
	LoadDate   time.Time `gorm:"column:load_date_dt;not null"`
	Generation int64     `gorm:"column:etl_nr;index:idx_goog_etl_nr;not null"`
	RecordedAt time.Time `gorm:"column:etl_recorded_gmts;not null"`

	AddressLine string `gorm:"column:prop_address_line_txt;not null"`
	City        string `gorm:"column:prop_city_nm;not null"`
	State       string `gorm:"column:prop_state_nm;not null"`
	Zip         string `gorm:"column:prop_zip_cd;not null"`
}

// TableName returns the GORM table name.
func (AddressDetail) TableName() string { return "brnz_goog_prop_add_dtl" }
