package handlers

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DeviceColumn identifies which dut column a device filter matches against.
// Only the two allow-listed columns are representable after normalization.
type DeviceColumn string

const (
	DeviceColumnADB      DeviceColumn = "adb_device"
	DeviceColumnTelnetIP DeviceColumn = "telnet_ip"
)

// AllowedDeviceColumns lists the selectable device columns in a fixed order.
var AllowedDeviceColumns = []DeviceColumn{DeviceColumnADB, DeviceColumnTelnetIP}

// ParseDeviceColumn matches a raw device type string (case-sensitively) against
// the allow-list. Returns false for anything else, including the empty string.
func ParseDeviceColumn(s string) (DeviceColumn, bool) {
	for _, col := range AllowedDeviceColumns {
		if s == string(col) {
			return col, true
		}
	}
	return "", false
}

// FilterSelection is the normalized form of the filter query parameters.
// String fields use "" for "not selected". The raw device type and raw date
// strings are kept alongside the resolved values so the handler can tell
// "no selection" apart from "invalid selection" when validating.
type FilterSelection struct {
	ProductLine  string
	Project      string
	Standard     string
	Band         string
	BandwidthMHz *float64

	DeviceTypeRaw string
	DeviceColumn  DeviceColumn
	DeviceValue   string

	StartRaw  string
	StartDate *time.Time
	EndRaw    string
	EndDate   *time.Time

	Limit *int
}

// firstParam returns the value of the first query key that is present,
// preferring earlier aliases. Presence wins over non-emptiness: an explicitly
// empty alias shadows later ones.
func firstParam(q url.Values, keys ...string) string {
	for _, key := range keys {
		if q.Has(key) {
			return q.Get(key)
		}
	}
	return ""
}

// trimOrEmpty trims whitespace and collapses blank values to "".
func trimOrEmpty(value string) string {
	return strings.TrimSpace(value)
}

// parseNumber parses a finite float. Blank or malformed input yields nil.
func parseNumber(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// parsePositiveInt parses a number and truncates it to a positive integer.
// Zero, negatives, and malformed input yield nil.
func parsePositiveInt(value string) *int {
	f := parseNumber(value)
	if f == nil {
		return nil
	}
	n := int(*f)
	if n <= 0 {
		return nil
	}
	return &n
}

// dateLayouts are tried in order when parsing start/end filters. Date-only
// values resolve to midnight local time.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339,
}

// parseDate parses a calendar date/time in local time. Unparsable input
// yields nil, never an error.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

// parseEndDate parses a date and moves it to the last instant of that calendar
// day, so an end filter includes the whole named day regardless of the
// time-of-day supplied.
func parseEndDate(value string) *time.Time {
	t := parseDate(value)
	if t == nil {
		return nil
	}
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
	return &end
}

// NormalizeFilters converts raw query parameters into a FilterSelection.
// Normalization never fails: absent or malformed values become their zero
// form and validation is left to the caller.
func NormalizeFilters(q url.Values) FilterSelection {
	deviceTypeRaw := trimOrEmpty(firstParam(q, "deviceType", "device_type"))
	deviceColumn, _ := ParseDeviceColumn(deviceTypeRaw)

	startRaw := trimOrEmpty(firstParam(q, "start", "start_date", "startDate"))
	endRaw := trimOrEmpty(firstParam(q, "end", "end_date", "endDate"))

	return FilterSelection{
		ProductLine:  trimOrEmpty(firstParam(q, "product_line", "productLine")),
		Project:      trimOrEmpty(q.Get("project")),
		Standard:     trimOrEmpty(q.Get("standard")),
		Band:         trimOrEmpty(q.Get("band")),
		BandwidthMHz: parseNumber(firstParam(q, "bandwidth_mhz", "bandwidthMhz")),

		DeviceTypeRaw: deviceTypeRaw,
		DeviceColumn:  deviceColumn,
		DeviceValue:   trimOrEmpty(firstParam(q, "deviceValue", "device_value")),

		StartRaw:  startRaw,
		StartDate: parseDate(startRaw),
		EndRaw:    endRaw,
		EndDate:   parseEndDate(endRaw),

		Limit: parsePositiveInt(firstParam(q, "limit", "max_points", "maxPoints")),
	}
}
