package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rehouzd/estate-pipeline/pkg/bronze"
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
		&bronze.AddressDetail{},
		&bronze.ParcelPropertySale{},
	))
	return db
}

func event(eventType, eventName, date string, price float64) Event {
	owner := "Acme LLC"
	return Event{
		EventType:       eventType,
		EventName:       eventName,
		EventDate:       date,
		EntityOwnerName: &owner,
		Price:           price,
	}
}

func TestSelectEventPrimaryWithPriceWinsImmediately(t *testing.T) {
	events := []Event{
		event(EventTypeSale, EventNameSold, "2025-01-10", 300000),
		event(EventTypeSale, EventNameSold, "2025-03-01", 320000),
	}
	got := SelectEvent(events, EventTypeSale, EventNameSold, EventTypeListing, EventNamePendingSale)
	require.NotNil(t, got)
	assert.Equal(t, "2025-03-01", got.EventDate, "newest priced primary wins")
}

func TestSelectEventZeroPriceSaleFallsBackToListing(t *testing.T) {
	events := []Event{
		event(EventTypeSale, EventNameSold, "2025-03-01", 0),
		event(EventTypeListing, EventNamePendingSale, "2025-02-01", 150000),
	}
	got := SelectEvent(events, EventTypeSale, EventNameSold, EventTypeListing, EventNamePendingSale)
	require.NotNil(t, got)
	assert.Equal(t, EventTypeListing, got.EventType)
	assert.Equal(t, 150000.0, got.Price)
}

func TestSelectEventUnpricedPrimaryBeatsUnpricedFallback(t *testing.T) {
	events := []Event{
		event(EventTypeSale, EventNameSold, "2025-03-01", 0),
		event(EventTypeListing, EventNamePendingSale, "2025-02-01", 0),
	}
	got := SelectEvent(events, EventTypeSale, EventNameSold, EventTypeListing, EventNamePendingSale)
	require.NotNil(t, got)
	assert.Equal(t, EventTypeSale, got.EventType)
}

func TestSelectEventNoMatchReturnsNil(t *testing.T) {
	events := []Event{
		event(EventTypeListing, "LISTED SALE", "2025-02-01", 100000),
	}
	assert.Nil(t, SelectEvent(events, EventTypeRental, EventNameDelistedForRent, "", ""))
}

func TestSubtractMonthsClampsDay(t *testing.T) {
	got := subtractMonths(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), got)

	got = subtractMonths(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got)

	got = subtractMonths(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), 6)
	assert.Equal(t, time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), got)
}

// fakeParclServer serves canned search and event-history responses and
// can fail event history for chosen property ids.
type fakeParclServer struct {
	properties []PropertyResult
	events     map[int64][]Event
	failIDs    map[int64]bool
}

func (f *fakeParclServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/property/search_address", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": f.properties})
	})
	mux.HandleFunc("/v1/property/event_history", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []string `json:"parcl_property_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.IDs, 1)
		var id int64
		fmt.Sscanf(body.IDs[0], "%d", &id)
		if f.failIDs[id] {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":"upstream unavailable"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"items": f.events[id]})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func property(id int64, bathrooms float64) PropertyResult {
	bedrooms := 3
	sqft := 1300
	year := 1990
	lat, lon := 33.75, -84.39
	return PropertyResult{
		ParclPropertyID:   id,
		Bedrooms:          &bedrooms,
		Bathrooms:         &bathrooms,
		SquareFootage:     &sqft,
		YearBuilt:         &year,
		Address:           "12 Oak St",
		City:              "Atlanta",
		StateAbbreviation: "GA",
		County:            "Fulton",
		ZipCode:           "30301",
		Latitude:          &lat,
		Longitude:         &lon,
	}
}

func queueAddress(t *testing.T, db *gorm.DB, sk int64) {
	t.Helper()
	now := time.Now().UTC()
	row := bronze.AddressDetail{
		SK:          sk,
		LoadDate:    now,
		Generation:  1,
		RecordedAt:  now,
		AddressLine: "12 Oak St",
		City:        "Atlanta",
		State:       "GA",
		Zip:         "30301",
	}
	require.NoError(t, db.Create(&row).Error)
}

func newIngestStage(t *testing.T, db *gorm.DB, baseURL string) *ParcelIngestStage {
	t.Helper()
	client := NewClient(ClientConfig{BaseURL: baseURL, APIKey: "test-key"})
	stage := NewParcelIngestStage(db, watermark.NewStore(db), client, DefaultStageConfig(), nil)
	stage.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return stage
}

func TestParcelIngestLandsSaleAndRentalEvents(t *testing.T) {
	db := setupTestDB(t)
	queueAddress(t, db, 1)

	srv := (&fakeParclServer{
		properties: []PropertyResult{property(101, 2.5)},
		events: map[int64][]Event{
			101: {
				event(EventTypeSale, EventNameSold, "2025-04-01", 350000),
				event(EventTypeRental, EventNameDelistedForRent, "2025-02-01", 2100),
			},
		},
	}).start(t)

	gen, _, err := newIngestStage(t, db, srv.URL).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	var rows []bronze.ParcelPropertySale
	require.NoError(t, db.Order("brnz_prcl_prop_sales_dtl_sk").Find(&rows).Error)
	require.Len(t, rows, 2)

	sale := rows[0]
	require.NotNil(t, sale.ActivityStatus)
	assert.Equal(t, EventTypeSale, *sale.ActivityStatus)
	assert.Equal(t, 350000.0, *sale.SaleAmount)
	assert.Equal(t, "Acme LLC", *sale.InvestorCompany)
	assert.Equal(t, 3.0, *sale.Bathrooms, "half baths round up")
	assert.Equal(t, int64(1), sale.Generation)

	rental := rows[1]
	assert.Equal(t, EventTypeRental, *rental.ActivityStatus)
	assert.Equal(t, 2100.0, *rental.SaleAmount)

	mark, err := watermark.NewStore(db).Get(context.Background(), bronze.ParcelPropertySaleTable)
	require.NoError(t, err)
	assert.Equal(t, gen, mark.Generation)
}

func TestParcelIngestZeroPriceSaleUsesPendingListing(t *testing.T) {
	db := setupTestDB(t)
	queueAddress(t, db, 1)

	srv := (&fakeParclServer{
		properties: []PropertyResult{property(101, 2)},
		events: map[int64][]Event{
			101: {
				event(EventTypeSale, EventNameSold, "2025-04-01", 0),
				event(EventTypeListing, EventNamePendingSale, "2025-03-01", 150000),
			},
		},
	}).start(t)

	_, _, err := newIngestStage(t, db, srv.URL).Run(context.Background())
	require.NoError(t, err)

	var rows []bronze.ParcelPropertySale
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, EventTypeListing, *rows[0].ActivityStatus)
	assert.Equal(t, EventNamePendingSale, *rows[0].ActivitySubStatus)
	assert.Equal(t, 150000.0, *rows[0].SaleAmount)
}

func TestParcelIngestSkipsFailingPropertyAndContinues(t *testing.T) {
	db := setupTestDB(t)
	queueAddress(t, db, 1)

	props := []PropertyResult{property(101, 2), property(102, 2), property(103, 2)}
	events := map[int64][]Event{
		101: {event(EventTypeSale, EventNameSold, "2025-04-01", 310000)},
		103: {event(EventTypeSale, EventNameSold, "2025-05-01", 425000)},
	}
	srv := (&fakeParclServer{
		properties: props,
		events:     events,
		failIDs:    map[int64]bool{102: true},
	}).start(t)

	_, _, err := newIngestStage(t, db, srv.URL).Run(context.Background())
	require.NoError(t, err)

	var amounts []float64
	require.NoError(t, db.Model(&bronze.ParcelPropertySale{}).
		Order("brnz_prcl_prop_sales_dtl_sk").Pluck("prop_sale_amt", &amounts).Error)
	assert.Equal(t, []float64{310000, 425000}, amounts, "failing property skipped, others landed")
}

func TestClientSendsAuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"items":[]}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "secret"})
	_, err := client.SearchAddress(context.Background(), AddressQuery{Address: "12 Oak St"})
	require.NoError(t, err)
	assert.Equal(t, "secret", gotAuth)
}

func TestClientReturnsAPIErrorOnNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "no access")
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := client.EventHistory(context.Background(), 101, time.Now())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
