package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifilab/perfdash/api/config"
	"github.com/wifilab/perfdash/api/handlers"
	apitesting "github.com/wifilab/perfdash/api/testing"
)

// seedDUTs inserts two devices under test, each with one test report.
func seedDUTs(t *testing.T) {
	ctx := t.Context()

	_, err := config.DB.Exec(ctx, `
		INSERT INTO dut (id, product_line, project, adb_device, telnet_ip) VALUES
		(1, 'SoC-A', 'Falcon', 'ADB-001', '10.0.0.5'),
		(2, 'SoC-B', 'Eagle', 'ADB-002', '10.0.0.9')
	`)
	require.NoError(t, err)

	_, err = config.DB.Exec(ctx, `
		INSERT INTO test_report (id, dut_id, case_path) VALUES
		(1, 1, '/cases/falcon/rvr'),
		(2, 2, '/cases/eagle/rvr')
	`)
	require.NoError(t, err)
}

type measurementSeed struct {
	reportID  int64
	pathLoss  float64
	tput      float64
	band      string
	bandwidth float64
	standard  string
	direction string
	csvName   string
	createdAt time.Time
}

func insertMeasurements(t *testing.T, seeds []measurementSeed) {
	ctx := t.Context()
	for _, s := range seeds {
		_, err := config.DB.Exec(ctx, `
			INSERT INTO performance
				(test_report_id, path_loss_db, throughput_avg_mbps, band, bandwidth_mhz,
				 standard, direction, center_freq_mhz, test_category, protocol, csv_name, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 5500, 'rvr', 'tcp', $8, $9)
		`, s.reportID, s.pathLoss, s.tput, s.band, s.bandwidth, s.standard, s.direction, s.csvName, s.createdAt)
		require.NoError(t, err)
	}
}

var seedBase = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

// seedMeasurements gives dut 1 two 5G ax runs and dut 2 one 2.4G ac run.
func seedMeasurements(t *testing.T) {
	insertMeasurements(t, []measurementSeed{
		{1, 10, 400, "5G", 80, "802.11ax", "downlink", "run1.csv", seedBase},
		{1, 20, 300, "5G", 80, "802.11ax", "uplink", "run2.csv", seedBase.Add(time.Hour)},
		{2, 15, 150, "2.4G", 40, "802.11ac", "downlink", "run3.csv", seedBase.Add(2 * time.Hour)},
	})
}

func getPerformance(t *testing.T, query string) (*httptest.ResponseRecorder, handlers.PerformanceResponse) {
	req := httptest.NewRequest(http.MethodGet, "/api/performance"+query, nil)
	rr := httptest.NewRecorder()
	handlers.GetPerformance(rr, req)

	var resp handlers.PerformanceResponse
	if rr.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	}
	return rr, resp
}

func csvNames(records []handlers.MeasurementRecord) []string {
	names := make([]string, len(records))
	for i, r := range records {
		if r.CSVName != nil {
			names[i] = *r.CSVName
		}
	}
	return names
}

func TestGetPerformance_Empty(t *testing.T) {
	apitesting.SetupTestPostgres(t, testPgDB)

	rr, resp := getPerformance(t, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, resp.Data)
	assert.Equal(t, 0, resp.Summary.Count)
	assert.Nil(t, resp.Summary.Throughput.Average)
	assert.Nil(t, resp.Summary.PathLoss.Min)
	assert.Nil(t, resp.Summary.LastUpdatedAt)
	assert.False(t, resp.Metadata.Truncated)
	assert.Equal(t, 0, resp.Metadata.TotalReturned)
}

func TestGetPerformance_OrderingAndSummary(t *testing.T) {
	apitesting.SetupTestPostgres(t, testPgDB)
	seedDUTs(t)
	seedMeasurements(t)

	rr, resp := getPerformance(t, "")
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())

	// Ascending path loss: 10, 15, 20
	assert.Equal(t, []string{"run1.csv", "run3.csv", "run2.csv"}, csvNames(resp.Data))

	assert.Equal(t, 3, resp.Summary.Count)
	require.NotNil(t, resp.Summary.Throughput.Average)
	assert.InDelta(t, (400.0+300.0+150.0)/3, *resp.Summary.Throughput.Average, 1e-9)
	assert.Equal(t, 400.0, *resp.Summary.Throughput.Max)
	assert.Equal(t, 150.0, *resp.Summary.Throughput.Min)
	assert.Equal(t, 10.0, *resp.Summary.PathLoss.Min)
	assert.Equal(t, 20.0, *resp.Summary.PathLoss.Max)
	require.NotNil(t, resp.Summary.LastUpdatedAt)
	assert.True(t, resp.Summary.LastUpdatedAt.Equal(seedBase.Add(2*time.Hour)))

	// Joined dut columns come through
	first := resp.Data[0]
	require.NotNil(t, first.ProductLine)
	assert.Equal(t, "SoC-A", *first.ProductLine)
	require.NotNil(t, first.CasePath)
	assert.Equal(t, "/cases/falcon/rvr", *first.CasePath)
}

func TestGetPerformance_BandFilter(t *testing.T) {
	apitesting.SetupTestPostgres(t, testPgDB)
	seedDUTs(t)
	seedMeasurements(t)

	rr, resp := getPerformance(t, "?band=5G")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"run1.csv", "run2.csv"}, csvNames(resp.Data))
	require.NotNil(t, resp.Filters.Band)
	assert.Equal(t, "5G", *resp.Filters.Band)
}

func TestGetPerformance_DeviceFilter(t *testing.T) {
	apitesting.SetupTestPostgres(t, testPgDB)
	seedDUTs(t)
	seedMeasurements(t)

	rr, resp := getPerformance(t, "?deviceType=telnet_ip&deviceValue=10.0.0.5")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"run1.csv", "run2.csv"}, csvNames(resp.Data))
	for _, rec := range resp.Data {
		require.NotNil(t, rec.TelnetIP)
		assert.Equal(t, "10.0.0.5", *rec.TelnetIP)
	}
}

func TestGetPerformance_DateRange(t *testing.T) {
	apitesting.SetupTestPostgres(t, testPgDB)
	seedDUTs(t)
	insertMeasurements(t, []measurementSeed{
		{1, 10, 100, "5G", 80, "802.11ax", "downlink", "last-second.csv", time.Date(2024, 3, 5, 23, 59, 59, 0, time.Local)},
		{1, 20, 200, "5G", 80, "802.11ax", "downlink", "next-day.csv", time.Date(2024, 3, 6, 0, 0, 0, 0, time.Local)},
	})

	// The end filter covers the whole named day
	rr, resp := getPerformance(t, "?end=2024-03-05")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"last-second.csv"}, csvNames(resp.Data))

	rr, resp = getPerformance(t, "?start=2024-03-06")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"next-day.csv"}, csvNames(resp.Data))

	// Bounds combine
	rr, resp = getPerformance(t, "?start=2024-03-05&end=2024-03-05")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"last-second.csv"}, csvNames(resp.Data))
}

func TestGetPerformance_Truncation(t *testing.T) {
	apitesting.SetupTestPostgres(t, testPgDB)
	seedDUTs(t)

	seeds := make([]measurementSeed, 11)
	for i := range seeds {
		seeds[i] = measurementSeed{
			1, float64(i), 100, "5G", 80, "802.11ax", "downlink",
			fmt.Sprintf("run%d.csv", i), seedBase.Add(time.Duration(i) * time.Minute),
		}
	}
	insertMeasurements(t, seeds)

	rr, resp := getPerformance(t, "?limit=10")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, resp.Data, 10)
	assert.True(t, resp.Metadata.Truncated)
	assert.Equal(t, 10, resp.Metadata.RequestedLimit)
	assert.Equal(t, 10, resp.Metadata.AppliedLimit)
	assert.Equal(t, 10, resp.Metadata.TotalReturned)
	// Summary covers only the returned page
	assert.Equal(t, 10, resp.Summary.Count)

	rr, resp = getPerformance(t, "?limit=11")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, resp.Data, 11)
	assert.False(t, resp.Metadata.Truncated)
}

func TestGetPerformance_StableTieBreak(t *testing.T) {
	apitesting.SetupTestPostgres(t, testPgDB)
	seedDUTs(t)

	// Identical path loss and timestamp; insertion order decides via id
	insertMeasurements(t, []measurementSeed{
		{1, 10, 100, "5G", 80, "802.11ax", "downlink", "a.csv", seedBase},
		{1, 10, 200, "5G", 80, "802.11ax", "downlink", "b.csv", seedBase},
		{1, 10, 300, "5G", 80, "802.11ax", "downlink", "c.csv", seedBase},
	})

	for range 3 {
		rr, resp := getPerformance(t, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{"a.csv", "b.csv", "c.csv"}, csvNames(resp.Data))
	}
}

func TestGetPerformance_ClientErrors(t *testing.T) {
	apitesting.SetupTestPostgres(t, testPgDB)

	tests := []struct {
		name  string
		query string
	}{
		{"device value without type", "?deviceValue=10.0.0.5"},
		{"unknown device type", "?deviceType=serial&deviceValue=x"},
		{"bad start date", "?start=yesterday"},
		{"bad end date", "?end=tomorrow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, _ := getPerformance(t, tt.query)
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var resp map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}
