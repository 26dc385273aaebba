// Package silver holds the derived-layer models: aggregated and joined
// rows built from bronze data. Silver rows are versioned, never
// overwritten: each pipeline run stamps a new generation and the SCD
// upsert retires the superseded versions.
package silver

import (
	"time"
)

// Logical table names used as watermark registry keys.
const (
	// InvestorDetailTrackerName is the registry key for the investor
	// detail table. The spelling differs from the physical table name
	// for historical reasons and is load-bearing for existing trackers.
	InvestorDetailTrackerName = "silver_int_inv_dtl"

	PropertyTable           = "slvr_int_prop"
	PropertyCompTable       = "slvr_int_prop_comps"
	PropertySaleDetailTable = "slvr_int_prop_sales_dlt"
)

// InvestorDetail is one versioned snapshot of an investor profile,
// keyed naturally by the investor company name. At most one row per
// company has ActiveRecord true once an upsert completes.
type InvestorDetail struct {
	SK         int64     `gorm:"primaryKey;autoIncrement:false;column:slvr_int_inv_dtl_sk"`
	LoadDate   time.Time `gorm:"column:load_date_dt;not null"`
	Generation int64     `gorm:"column:etl_nr;index:idx_inv_etl_nr;not null"`
	// The column misspelling exists in the production schema.
	RecordedAt time.Time `gorm:"column:etl_reorded_gmts;not null"`
	InsertedAt time.Time `gorm:"column:record_inserted_ts;not null"`

	// ActiveFlag marks investors with two or more purchases in the
	// trailing window; it is a profile attribute, not the SCD version
	// discriminator.
	ActiveFlag      bool   `gorm:"column:active_flg;not null"`
	InvestorCompany string `gorm:"column:investor_company_nm_txt;index:idx_inv_company;not null"`
	Profile         string `gorm:"column:investor_profile;type:text;not null"`
	PurchaseCount   int    `gorm:"column:num_prop_purchased_lst_12_mths_nr;not null"`
	ActiveRecord    bool   `gorm:"column:active_rec_ind;index:idx_inv_active_rec;not null"`
}

// TableName returns the GORM table name.
func (InvestorDetail) TableName() string { return "slvr_int_inv_dtl" }

// Property is a candidate association between a parcel fact row and an
// investor profile produced by the matching stage. Fan-out is expected:
// one parcel may match several profiles and vice versa.
type Property struct {
	SK               int64     `gorm:"primaryKey;autoIncrement:false;column:slvr_int_prop_sk"`
	InvestorDetailFK int64     `gorm:"column:slvr_int_inv_dtl_fk;not null"`
	ParcelSaleFK     int64     `gorm:"column:brnz_prcl_prop_sales_dtl_fk;not null"`
	LoadDate         time.Time `gorm:"column:load_date_dt;not null"`
	Generation       int64     `gorm:"column:etl_nr;index:idx_prop_etl_nr;not null"`
	RecordedAt       time.Time `gorm:"column:etl_recorded_gmts;not null"`
	InsertedAt       time.Time `gorm:"column:record_inserted_ts;not null"`

	SourceSystemCode string `gorm:"column:src_system_cd;not null"`
	SourceSystemDesc string `gorm:"column:src_system_dc;not null"`

	Bedrooms      *int     `gorm:"column:prop_attr_br_cnt"`
	Bathrooms     *float64 `gorm:"column:prop_attr_bth_cnt"`
	SquareFootage *int     `gorm:"column:prop_attr_sqft_nr"`
	YearBuilt     *int     `gorm:"column:prop_yr_blt_nr"`
	AddressLine   string   `gorm:"column:prop_address_line_txt"`
	City          string   `gorm:"column:prop_city_nm"`
	State         string   `gorm:"column:prop_state_nm"`
	County        string   `gorm:"column:prop_cnty_nm"`
	Zip           *string  `gorm:"column:prop_zip_cd"`
}

// TableName returns the GORM table name.
func (Property) TableName() string { return "slvr_int_prop" }

// PropertyComp is a comparable-sale association between a parcel fact
// row and a matched silver property.
type PropertyComp struct {
	SK           int64      `gorm:"primaryKey;autoIncrement:false;column:slvr_int_prop_comps_sk"`
	PropertyFK   int64      `gorm:"column:slvr_int_prop_fk;not null"`
	ParcelSaleFK int64      `gorm:"column:brnz_prcl_prop_sales_dtl_fk;not null"`
	LoadDate     time.Time  `gorm:"column:load_date_dt;not null"`
	Generation   int64      `gorm:"column:etl_nr;index:idx_comps_etl_nr;not null"`
	RecordedAt   time.Time  `gorm:"column:etl_recorded_gmts;not null"`
	InsertedAt   time.Time  `gorm:"column:record_inserted_ts;not null"`
	UpdatedAt    *time.Time `gorm:"column:record_update_ts"`

	Bedrooms        *int     `gorm:"column:prop_attr_br_cnt"`
	Bathrooms       *float64 `gorm:"column:prop_attr_bth_cnt"`
	SquareFootage   *int     `gorm:"column:prop_attr_sqft_nr"`
	YearBuilt       *int     `gorm:"column:prop_yr_blt_nr"`
	AddressLine     string   `gorm:"column:prop_address_line_txt"`
	City            string   `gorm:"column:prop_city_nm"`
	State           string   `gorm:"column:prop_state_nm"`
	County          string   `gorm:"column:prop_cnty_nm"`
	Zip             *string  `gorm:"column:prop_zip_cd"`
	Latitude        *float64 `gorm:"column:prop_latitude_val"`
	Longitude       *float64 `gorm:"column:prop_longitude_val"`
	LatestRentalAmt *float64 `gorm:"column:prop_latest_rental_amt"`
	LatestSalesAmt  *float64 `gorm:"column:prop_latest_sales_amt"`
}

// TableName returns the GORM table name.
func (PropertyComp) TableName() string { return "slvr_int_prop_comps" }

// PropertySaleDetail is one sale/listing event in a property's history.
// Rows sourced from the propstream feed carry the natural address key
// (AddressKey) and participate in latest-record maintenance: within an
// address key at most one row has LatestRecord true.
type PropertySaleDetail struct {
	SK         int64     `gorm:"primaryKey;autoIncrement:false;column:slvr_int_prop_dtl_sk"`
	PropertyFK *int64    `gorm:"column:slvr_int_prop_fk"`
	LoadDate   time.Time `gorm:"column:load_date_dt;not null"`
	Generation int64     `gorm:"column:etl_nr;index:idx_dlt_etl_nr;not null"`
	RecordedAt time.Time `gorm:"column:etl_recorded_gmts;not null"`
	InsertedAt time.Time `gorm:"column:record_inserted_ts;not null"`

	SaleDate   *time.Time `gorm:"column:prop_sale_dt"`
	SaleAmount *float64   `gorm:"column:prop_sale_amt"`

	ConditionOverall  *string `gorm:"column:prop_tlt_cnd_nm"`
	ConditionInterior *string `gorm:"column:prop_int_cnd_nm"`
	ConditionExterior *string `gorm:"column:prop_ext_cnd_nm"`
	ConditionBathroom *string `gorm:"column:prop_bth_cnd_nm"`
	ConditionKitchen  *string `gorm:"column:prop_kth_cnd_nm"`

	ListPrice    *float64 `gorm:"column:prop_list_price_amt"`
	LatestRecord bool     `gorm:"column:latest_record_ind;index:idx_dlt_latest;not null"`
	AddressKey   *string  `gorm:"column:usraddr;index:idx_dlt_usraddr"`
}

// TableName returns the GORM table name.
func (PropertySaleDetail) TableName() string { return "slvr_int_prop_sales_dlt" }
