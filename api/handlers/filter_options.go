package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wifilab/perfdash/api/config"
	"github.com/wifilab/perfdash/api/metrics"
)

// FilterOptionsResponse lists the distinct legal values for every filter
// dimension given the current partial selection.
type FilterOptionsResponse struct {
	ProductLines []string            `json:"productLines"`
	Projects     []string            `json:"projects"`
	Devices      map[string][]string `json:"devices"`
	Standards    []string            `json:"standards"`
	Bands        []string            `json:"bands"`
	Bandwidths   []float64           `json:"bandwidths"`
}

// performanceFromClause is the three-table join used by every
// measurement-side query.
const performanceFromClause = `
	FROM performance p
	INNER JOIN test_report tr ON tr.id = p.test_report_id
	INNER JOIN dut d ON d.id = tr.dut_id
`

func queryDistinctStrings(ctx context.Context, query string, params []any) ([]string, error) {
	start := time.Now()
	rows, err := config.DB.Query(ctx, query, params...)
	metrics.RecordStoreQuery(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func queryDistinctFloats(ctx context.Context, query string, params []any) ([]float64, error) {
	start := time.Now()
	rows, err := config.DB.Query(ctx, query, params...)
	metrics.RecordStoreQuery(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []float64{}
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// dutOptionsQuery builds the distinct-values query for a dut column, with the
// given conditions appended after the non-null guard.
func dutOptionsQuery(column string, cs ConditionSet) string {
	query := fmt.Sprintf("SELECT DISTINCT %s FROM dut WHERE %s IS NOT NULL", column, column)
	if !cs.Empty() {
		query += " AND " + cs.Join()
	}
	return query + fmt.Sprintf(" ORDER BY %s", column)
}

// performanceOptionsQuery builds the distinct-values query for a measurement
// column across the performance join.
func performanceOptionsQuery(column string, cs ConditionSet) string {
	query := fmt.Sprintf("SELECT DISTINCT %s %s WHERE %s IS NOT NULL", column, performanceFromClause, column)
	if !cs.Empty() {
		query += " AND " + cs.Join()
	}
	return query + fmt.Sprintf(" ORDER BY %s", column)
}

// GetFilterOptions returns, for each filter dimension, the distinct values
// still matchable under every other active filter. Each dimension excludes
// itself from its own condition set so that selecting a value never narrows
// that dimension's own option list.
func GetFilterOptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filters := NormalizeFilters(r.URL.Query())

	productLineFilter := BuildDUTConditions(filters, BuildOptions{Exclude: []string{"productLine"}})
	productLines, err := queryDistinctStrings(ctx, dutOptionsQuery("product_line", productLineFilter), productLineFilter.Params)
	if err != nil {
		writeInternalError(w, "product line options query failed", err)
		return
	}

	projectFilter := BuildDUTConditions(filters, BuildOptions{Exclude: []string{"project"}})
	projects, err := queryDistinctStrings(ctx, dutOptionsQuery("project", projectFilter), projectFilter.Params)
	if err != nil {
		writeInternalError(w, "project options query failed", err)
		return
	}

	devices := make(map[string][]string, len(AllowedDeviceColumns))
	for _, column := range AllowedDeviceColumns {
		deviceFilter := BuildDUTConditions(filters, BuildOptions{Exclude: []string{"device"}})
		values, err := queryDistinctStrings(ctx, dutOptionsQuery(string(column), deviceFilter), deviceFilter.Params)
		if err != nil {
			writeInternalError(w, "device options query failed", err)
			return
		}
		devices[string(column)] = values
	}

	standardFilter := BuildPerformanceConditions(filters, BuildOptions{Exclude: []string{"standard"}})
	standards, err := queryDistinctStrings(ctx, performanceOptionsQuery("p.standard", standardFilter), standardFilter.Params)
	if err != nil {
		writeInternalError(w, "standard options query failed", err)
		return
	}

	bandFilter := BuildPerformanceConditions(filters, BuildOptions{Exclude: []string{"band"}})
	bands, err := queryDistinctStrings(ctx, performanceOptionsQuery("p.band", bandFilter), bandFilter.Params)
	if err != nil {
		writeInternalError(w, "band options query failed", err)
		return
	}

	bandwidthFilter := BuildPerformanceConditions(filters, BuildOptions{Exclude: []string{"bandwidth"}})
	bandwidths, err := queryDistinctFloats(ctx, performanceOptionsQuery("p.bandwidth_mhz", bandwidthFilter), bandwidthFilter.Params)
	if err != nil {
		writeInternalError(w, "bandwidth options query failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(FilterOptionsResponse{
		ProductLines: productLines,
		Projects:     projects,
		Devices:      devices,
		Standards:    standards,
		Bands:        bands,
		Bandwidths:   bandwidths,
	})
}
