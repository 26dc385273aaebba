package match

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rehouzd/estate-pipeline/pkg/bronze"
	"github.com/rehouzd/estate-pipeline/pkg/silver"
	"github.com/rehouzd/estate-pipeline/pkg/watermark"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&watermark.LoadTracker{},
		&bronze.ParcelPropertySale{},
		&silver.InvestorDetail{},
		&silver.Property{},
		&silver.PropertyComp{},
	))
	return db
}

func insertProfile(t *testing.T, db *gorm.DB, sk int64, company string, profile silver.InvestorProfile, activeRec bool) {
	t.Helper()
	doc, err := profile.Marshal()
	require.NoError(t, err)
	now := time.Now().UTC()
	row := silver.InvestorDetail{
		SK:              sk,
		LoadDate:        now,
		Generation:      1,
		RecordedAt:      now,
		InsertedAt:      now,
		ActiveFlag:      true,
		InvestorCompany: company,
		Profile:         doc,
		PurchaseCount:   2,
		ActiveRecord:    activeRec,
	}
	require.NoError(t, db.Create(&row).Error)
}

type parcelFact struct {
	sk        int64
	bedrooms  int
	bathrooms float64
	sqft      int
	yearBuilt int
	zip       string
	status    string
	subStatus string
	amount    float64
	gen       int64
	recorded  time.Time
}

func insertParcel(t *testing.T, db *gorm.DB, f parcelFact) {
	t.Helper()
	saleDate := f.recorded
	row := bronze.ParcelPropertySale{
		SK:                f.sk,
		LoadDate:          f.recorded,
		Generation:        f.gen,
		RecordedAt:        f.recorded,
		InsertedAt:        f.recorded,
		SaleDate:          &saleDate,
		SaleAmount:        &f.amount,
		Bedrooms:          &f.bedrooms,
		Bathrooms:         &f.bathrooms,
		SquareFootage:     &f.sqft,
		YearBuilt:         &f.yearBuilt,
		Zip:               &f.zip,
		ActivityStatus:    &f.status,
		ActivitySubStatus: &f.subStatus,
	}
	require.NoError(t, db.Create(&row).Error)
}

func acmeProfile() silver.InvestorProfile {
	return silver.InvestorProfile{
		MinBedrooms:       3,
		MinBathrooms:      2,
		MinPurchaseAmount: 310000,
		MaxPurchaseAmount: 425000,
		MinYearBuilt:      1980,
		MinSquareFootage:  1240,
		Zips:              []string{"30301", "30318"},
	}
}

func TestPropertyInvestorStageMatches(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	insertProfile(t, db, 1, "Acme LLC", acmeProfile(), true)
	insertParcel(t, db, parcelFact{sk: 10, bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
		zip: "30301", status: StatusSale, subStatus: "SOLD", amount: 350000, gen: 1, recorded: now})

	stage := NewPropertyInvestorStage(db, watermark.NewStore(db), DefaultConfig(), nil)
	stage.now = func() time.Time { return now }

	gen, _, err := stage.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	var rows []silver.Property
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].InvestorDetailFK)
	assert.Equal(t, int64(10), rows[0].ParcelSaleFK)
	assert.Equal(t, SourcePAR, rows[0].SourceSystemCode)
	assert.Equal(t, int64(1), rows[0].Generation)

	mark, err := watermark.NewStore(db).Get(ctx, silver.PropertyTable)
	require.NoError(t, err)
	assert.Equal(t, gen, mark.Generation)
}

func TestPropertyInvestorStagePredicates(t *testing.T) {
	cases := []struct {
		name  string
		fact  parcelFact
		match bool
	}{
		{"exact fit", parcelFact{bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
			zip: "30301", status: StatusSale, subStatus: "SOLD"}, true},
		{"half bath floors to profile value", parcelFact{bedrooms: 3, bathrooms: 2.5, sqft: 1300,
			yearBuilt: 1990, zip: "30301", status: StatusSale, subStatus: "SOLD"}, true},
		{"bedroom mismatch", parcelFact{bedrooms: 4, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
			zip: "30301", status: StatusSale, subStatus: "SOLD"}, false},
		{"sqft outside tolerance", parcelFact{bedrooms: 3, bathrooms: 2, sqft: 1441, yearBuilt: 1990,
			zip: "30301", status: StatusSale, subStatus: "SOLD"}, false},
		{"sqft at tolerance edge", parcelFact{bedrooms: 3, bathrooms: 2, sqft: 1440, yearBuilt: 1990,
			zip: "30301", status: StatusSale, subStatus: "SOLD"}, true},
		{"built before threshold", parcelFact{bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1979,
			zip: "30301", status: StatusSale, subStatus: "SOLD"}, false},
		{"zip outside profile", parcelFact{bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
			zip: "30399", status: StatusSale, subStatus: "SOLD"}, false},
		{"event not whitelisted", parcelFact{bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
			zip: "30301", status: StatusSale, subStatus: "FORECLOSURE"}, false},
		{"pending sale listing allowed", parcelFact{bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
			zip: "30301", status: StatusListing, subStatus: "PENDING_SALE"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := setupTestDB(t)
			now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

			insertProfile(t, db, 1, "Acme LLC", acmeProfile(), true)
			fact := tc.fact
			fact.sk = 10
			fact.gen = 1
			fact.recorded = now
			insertParcel(t, db, fact)

			stage := NewPropertyInvestorStage(db, watermark.NewStore(db), DefaultConfig(), nil)
			stage.now = func() time.Time { return now }
			_, _, err := stage.Run(context.Background())
			require.NoError(t, err)

			var count int64
			require.NoError(t, db.Model(&silver.Property{}).Count(&count).Error)
			if tc.match {
				assert.Equal(t, int64(1), count)
			} else {
				assert.Equal(t, int64(0), count)
			}
		})
	}
}

func TestPropertyInvestorStageIgnoresRetiredProfiles(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	insertProfile(t, db, 1, "Acme LLC", acmeProfile(), false)
	insertParcel(t, db, parcelFact{sk: 10, bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
		zip: "30301", status: StatusSale, subStatus: "SOLD", gen: 1, recorded: now})

	stage := NewPropertyInvestorStage(db, watermark.NewStore(db), DefaultConfig(), nil)
	stage.now = func() time.Time { return now }
	_, _, err := stage.Run(context.Background())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&silver.Property{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestPropertyInvestorStageFanOut(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	insertProfile(t, db, 1, "Acme LLC", acmeProfile(), true)
	insertProfile(t, db, 2, "Blue Door Capital", acmeProfile(), true)
	insertParcel(t, db, parcelFact{sk: 10, bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
		zip: "30301", status: StatusSale, subStatus: "SOLD", gen: 1, recorded: now})

	stage := NewPropertyInvestorStage(db, watermark.NewStore(db), DefaultConfig(), nil)
	stage.now = func() time.Time { return now }
	_, _, err := stage.Run(context.Background())
	require.NoError(t, err)

	var rows []silver.Property
	require.NoError(t, db.Order("slvr_int_prop_sk").Find(&rows).Error)
	require.Len(t, rows, 2, "one parcel matching two profiles emits two associations")
	assert.Equal(t, int64(1), rows[0].InvestorDetailFK)
	assert.Equal(t, int64(2), rows[1].InvestorDetailFK)
}

func TestPropertyInvestorStageHonorsParcelWatermark(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	wm := watermark.NewStore(db)

	insertProfile(t, db, 1, "Acme LLC", acmeProfile(), true)
	committed := now.AddDate(0, -1, 0)
	insertParcel(t, db, parcelFact{sk: 10, bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
		zip: "30301", status: StatusSale, subStatus: "SOLD", gen: 2, recorded: committed})
	insertParcel(t, db, parcelFact{sk: 11, bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
		zip: "30318", status: StatusSale, subStatus: "SOLD", gen: 1, recorded: committed})

	require.NoError(t, wm.Advance(ctx, bronze.ParcelPropertySaleTable, committed, 2))

	stage := NewPropertyInvestorStage(db, wm, DefaultConfig(), nil)
	stage.now = func() time.Time { return now }
	_, _, err := stage.Run(ctx)
	require.NoError(t, err)

	var rows []silver.Property
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(10), rows[0].ParcelSaleFK)
}

func insertProperty(t *testing.T, db *gorm.DB, sk, parcelFK int64, bedrooms int, bathrooms float64, sqft, yearBuilt int, gen int64, recorded time.Time) {
	t.Helper()
	row := silver.Property{
		SK:               sk,
		InvestorDetailFK: 1,
		ParcelSaleFK:     parcelFK,
		LoadDate:         recorded,
		Generation:       gen,
		RecordedAt:       recorded,
		InsertedAt:       recorded,
		SourceSystemCode: SourcePAR,
		SourceSystemDesc: SourcePARDesc,
		Bedrooms:         &bedrooms,
		Bathrooms:        &bathrooms,
		SquareFootage:    &sqft,
		YearBuilt:        &yearBuilt,
	}
	require.NoError(t, db.Create(&row).Error)
}

func TestComparablesStageJoins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	insertProperty(t, db, 100, 10, 3, 2, 1300, 1990, 1, now)
	// Comparable: same beds/baths, sqft and year inside tolerance.
	insertParcel(t, db, parcelFact{sk: 20, bedrooms: 3, bathrooms: 2, sqft: 1450, yearBuilt: 2005,
		zip: "30301", status: StatusSale, subStatus: "SOLD", amount: 360000, gen: 1, recorded: now})
	// Too old to be comparable.
	insertParcel(t, db, parcelFact{sk: 21, bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1965,
		zip: "30301", status: StatusSale, subStatus: "SOLD", amount: 200000, gen: 1, recorded: now})
	// The parcel fact the property itself came from.
	insertParcel(t, db, parcelFact{sk: 10, bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
		zip: "30301", status: StatusSale, subStatus: "SOLD", amount: 350000, gen: 1, recorded: now})

	stage := NewComparablesStage(db, watermark.NewStore(db), DefaultConfig(), nil)
	stage.now = func() time.Time { return now }
	gen, _, err := stage.Run(ctx)
	require.NoError(t, err)

	var rows []silver.PropertyComp
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(100), rows[0].PropertyFK)
	assert.Equal(t, int64(20), rows[0].ParcelSaleFK)
	require.NotNil(t, rows[0].LatestSalesAmt)
	assert.Equal(t, 360000.0, *rows[0].LatestSalesAmt)
	assert.Nil(t, rows[0].LatestRentalAmt)

	mark, err := watermark.NewStore(db).Get(ctx, silver.PropertyCompTable)
	require.NoError(t, err)
	assert.Equal(t, gen, mark.Generation)
}

func TestComparablesStageRentalAmount(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	insertProperty(t, db, 100, 10, 3, 2, 1300, 1990, 1, now)
	insertParcel(t, db, parcelFact{sk: 20, bedrooms: 3, bathrooms: 2, sqft: 1300, yearBuilt: 1990,
		zip: "30301", status: StatusRental, subStatus: "LISTED_FOR_RENT", amount: 2100, gen: 1, recorded: now})

	stage := NewComparablesStage(db, watermark.NewStore(db), DefaultConfig(), nil)
	stage.now = func() time.Time { return now }
	_, _, err := stage.Run(context.Background())
	require.NoError(t, err)

	var row silver.PropertyComp
	require.NoError(t, db.First(&row).Error)
	require.NotNil(t, row.LatestRentalAmt)
	assert.Equal(t, 2100.0, *row.LatestRentalAmt)
	assert.Nil(t, row.LatestSalesAmt)
}
