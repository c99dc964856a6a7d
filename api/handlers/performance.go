package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/wifilab/perfdash/api/config"
	"github.com/wifilab/perfdash/api/metrics"
)

// MeasurementRecord is one row of the performance query, joined across the
// measurement, report, and dut tables. Nullable columns stay nullable in JSON.
type MeasurementRecord struct {
	PathLossDb        *float64   `json:"pathLossDb"`
	ThroughputAvgMbps *float64   `json:"throughputAvgMbps"`
	CreatedAt         *time.Time `json:"createdAt"`
	TestReportID      *int64     `json:"testReportId"`
	Band              *string    `json:"band"`
	BandwidthMHz      *float64   `json:"bandwidthMhz"`
	Standard          *string    `json:"standard"`
	Direction         *string    `json:"direction"`
	CenterFreqMHz     *float64   `json:"centerFreqMhz"`
	TestCategory      *string    `json:"testCategory"`
	Protocol          *string    `json:"protocol"`
	CSVName           *string    `json:"csvName"`
	CasePath          *string    `json:"casePath"`
	ProductLine       *string    `json:"productLine"`
	Project           *string    `json:"project"`
	ADBDevice         *string    `json:"adbDevice"`
	TelnetIP          *string    `json:"telnetIp"`
}

// ThroughputSummary aggregates the non-null throughput values of a page.
// All fields are null when the page has no non-null throughput.
type ThroughputSummary struct {
	Average *float64 `json:"average"`
	Max     *float64 `json:"max"`
	Min     *float64 `json:"min"`
}

// PathLossSummary aggregates the non-null path loss values of a page.
type PathLossSummary struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// Summary is a single-pass fold over the returned page. When the page was
// truncated the summary covers only the returned rows, not the full matching
// set.
type Summary struct {
	Count         int               `json:"count"`
	Throughput    ThroughputSummary `json:"throughput"`
	PathLoss      PathLossSummary   `json:"pathLoss"`
	LastUpdatedAt *time.Time        `json:"lastUpdatedAt"`
}

// FilterEcho is the resolved filter selection echoed back to the client.
type FilterEcho struct {
	ProductLine  *string    `json:"productLine"`
	Project      *string    `json:"project"`
	Standard     *string    `json:"standard"`
	Band         *string    `json:"band"`
	BandwidthMHz *float64   `json:"bandwidthMhz"`
	DeviceType   *string    `json:"deviceType"`
	DeviceValue  *string    `json:"deviceValue"`
	Start        *time.Time `json:"start"`
	End          *time.Time `json:"end"`
}

// QueryMetadata reports how the row limit was applied.
type QueryMetadata struct {
	RequestedLimit int  `json:"requestedLimit"`
	AppliedLimit   int  `json:"appliedLimit"`
	TotalReturned  int  `json:"totalReturned"`
	Truncated      bool `json:"truncated"`
}

// PerformanceResponse is the full performance endpoint payload.
type PerformanceResponse struct {
	Data     []MeasurementRecord `json:"data"`
	Summary  Summary             `json:"summary"`
	Filters  FilterEcho          `json:"filters"`
	Metadata QueryMetadata       `json:"metadata"`
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func echoFilters(f FilterSelection) FilterEcho {
	return FilterEcho{
		ProductLine:  nullableString(f.ProductLine),
		Project:      nullableString(f.Project),
		Standard:     nullableString(f.Standard),
		Band:         nullableString(f.Band),
		BandwidthMHz: f.BandwidthMHz,
		DeviceType:   nullableString(string(f.DeviceColumn)),
		DeviceValue:  nullableString(f.DeviceValue),
		Start:        f.StartDate,
		End:          f.EndDate,
	}
}

// summarize folds a page of records into its summary in one pass. Null
// throughput and path loss values are skipped; a page with none of either
// yields null aggregates.
func summarize(records []MeasurementRecord) Summary {
	var (
		throughputSum   float64
		throughputCount int
		throughputMax   float64
		throughputMin   float64
		pathLossMin     *float64
		pathLossMax     *float64
		latest          *time.Time
	)

	for _, rec := range records {
		if rec.ThroughputAvgMbps != nil {
			v := *rec.ThroughputAvgMbps
			throughputSum += v
			if throughputCount == 0 || v > throughputMax {
				throughputMax = v
			}
			if throughputCount == 0 || v < throughputMin {
				throughputMin = v
			}
			throughputCount++
		}

		if rec.PathLossDb != nil {
			v := *rec.PathLossDb
			if pathLossMin == nil || v < *pathLossMin {
				pathLossMin = &v
			}
			if pathLossMax == nil || v > *pathLossMax {
				pathLossMax = &v
			}
		}

		if rec.CreatedAt != nil {
			if latest == nil || rec.CreatedAt.After(*latest) {
				latest = rec.CreatedAt
			}
		}
	}

	summary := Summary{
		Count:         len(records),
		LastUpdatedAt: latest,
		PathLoss:      PathLossSummary{Min: pathLossMin, Max: pathLossMax},
	}
	if throughputCount > 0 {
		average := throughputSum / float64(throughputCount)
		summary.Throughput = ThroughputSummary{Average: &average, Max: &throughputMax, Min: &throughputMin}
	}
	return summary
}

// effectiveLimit resolves the requested limit against the configured default
// and hard maximum.
func effectiveLimit(f FilterSelection) (requested, applied int) {
	requested = config.DefaultLimit()
	if f.Limit != nil {
		requested = *f.Limit
	}
	applied = requested
	if max := config.MaxLimit(); applied > max {
		applied = max
	}
	return requested, applied
}

// validatePerformanceFilters rejects the request before any query runs.
// Returns an empty string when the selection is valid.
func validatePerformanceFilters(f FilterSelection) string {
	if f.DeviceTypeRaw != "" && f.DeviceColumn == "" {
		return "Unsupported deviceType. Allowed values: adb_device or telnet_ip"
	}
	if f.DeviceValue != "" && f.DeviceColumn == "" {
		return "deviceType must be adb_device or telnet_ip and used together with deviceValue"
	}
	if f.StartRaw != "" && f.StartDate == nil {
		return "The start date format is invalid"
	}
	if f.EndRaw != "" && f.EndDate == nil {
		return "The end date format is invalid"
	}
	return ""
}

// GetPerformance returns an ordered page of measurements matching the filter
// selection, a summary over that page, and limit metadata. The fetch asks for
// one row beyond the applied limit so truncation is detectable without a
// count query.
func GetPerformance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filters := NormalizeFilters(r.URL.Query())

	if msg := validatePerformanceFilters(filters); msg != "" {
		writeClientError(w, msg)
		return
	}

	cs := BuildPerformanceConditions(filters, BuildOptions{IncludeBase: true})
	requestedLimit, appliedLimit := effectiveLimit(filters)

	query := `
		SELECT
			p.path_loss_db,
			p.throughput_avg_mbps,
			p.created_at,
			p.test_report_id,
			p.band,
			p.bandwidth_mhz,
			p.standard,
			p.direction,
			p.center_freq_mhz,
			p.test_category,
			p.protocol,
			p.csv_name,
			tr.case_path,
			d.product_line,
			d.project,
			d.adb_device,
			d.telnet_ip
	` + performanceFromClause
	if !cs.Empty() {
		query += " WHERE " + cs.Join()
	}
	query += `
		ORDER BY
			p.path_loss_db ASC,
			p.created_at ASC,
			p.id ASC
	`
	params := cs.Params
	query += fmt.Sprintf(" LIMIT $%d", cs.NextPlaceholder())
	params = append(params, appliedLimit+1)

	start := time.Now()
	rows, err := config.DB.Query(ctx, query, params...)
	metrics.RecordStoreQuery(time.Since(start), err)
	if err != nil {
		writeInternalError(w, "performance query failed", err)
		return
	}
	defer rows.Close()

	records := []MeasurementRecord{}
	for rows.Next() {
		var rec MeasurementRecord
		if err := rows.Scan(
			&rec.PathLossDb,
			&rec.ThroughputAvgMbps,
			&rec.CreatedAt,
			&rec.TestReportID,
			&rec.Band,
			&rec.BandwidthMHz,
			&rec.Standard,
			&rec.Direction,
			&rec.CenterFreqMHz,
			&rec.TestCategory,
			&rec.Protocol,
			&rec.CSVName,
			&rec.CasePath,
			&rec.ProductLine,
			&rec.Project,
			&rec.ADBDevice,
			&rec.TelnetIP,
		); err != nil {
			writeInternalError(w, "performance scan failed", err)
			return
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		writeInternalError(w, "performance rows failed", err)
		return
	}

	truncated := false
	if len(records) > appliedLimit {
		truncated = true
		records = records[:appliedLimit]
	}

	response := PerformanceResponse{
		Data:    records,
		Summary: summarize(records),
		Filters: echoFilters(filters),
		Metadata: QueryMetadata{
			RequestedLimit: requestedLimit,
			AppliedLimit:   appliedLimit,
			TotalReturned:  len(records),
			Truncated:      truncated,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("JSON encoding error: %v", err)
	}
}
