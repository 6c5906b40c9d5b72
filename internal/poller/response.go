package poller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gustycube/uptime-probe/internal/types"
)

// healthBody is the JSON document a healthy endpoint returns.
type healthBody struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Metrics   *struct {
		CPUUsage    *float64 `json:"cpu_usage"`
		DiskUsage   *float64 `json:"disk_usage"`
		MemoryUsage *float64 `json:"memory_usage"`
	} `json:"metrics"`
	Services *struct {
		Database json.RawMessage `json:"database"`
		Redis    json.RawMessage `json:"redis"`
	} `json:"services"`
	Status *string `json:"status"`
}

type decoded struct {
	timestamp time.Time
	metrics   types.Metrics
	services  types.Services
	status    types.Status
}

func decodeBody(body []byte) (decoded, error) {
	var hb healthBody
	if err := json.Unmarshal(body, &hb); err != nil {
		return decoded{}, &ParseError{Err: err}
	}

	var out decoded
	ts, err := parseTimestamp(hb.Timestamp)
	if err != nil {
		return decoded{}, &ParseError{Field: "timestamp", Err: err}
	}
	out.timestamp = ts

	if hb.Metrics == nil {
		return decoded{}, &ParseError{Field: "metrics"}
	}
	switch {
	case hb.Metrics.CPUUsage == nil:
		return decoded{}, &ParseError{Field: "metrics.cpu_usage"}
	case hb.Metrics.DiskUsage == nil:
		return decoded{}, &ParseError{Field: "metrics.disk_usage"}
	case hb.Metrics.MemoryUsage == nil:
		return decoded{}, &ParseError{Field: "metrics.memory_usage"}
	}
	out.metrics = types.Metrics{
		CPUUsage:    hb.Metrics.CPUUsage,
		DiskUsage:   hb.Metrics.DiskUsage,
		MemoryUsage: hb.Metrics.MemoryUsage,
	}

	if hb.Services == nil {
		return decoded{}, &ParseError{Field: "services"}
	}
	if out.services.Database, err = serviceValue(hb.Services.Database); err != nil {
		return decoded{}, &ParseError{Field: "services.database", Err: err}
	}
	if out.services.Redis, err = serviceValue(hb.Services.Redis); err != nil {
		return decoded{}, &ParseError{Field: "services.redis", Err: err}
	}

	if hb.Status == nil {
		return decoded{}, &ParseError{Field: "status"}
	}
	if *hb.Status == "success" {
		out.status = types.Success()
	} else {
		out.status = types.Failure(fmt.Sprintf("reported status %q", *hb.Status))
	}
	return out, nil
}

// serviceValue accepts a string, bool or number and returns its text.
func serviceValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch v.(type) {
	case bool, float64:
		return string(raw), nil
	}
	return "", fmt.Errorf("unsupported value %s", raw)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
}

// parseTimestamp accepts an ISO-8601-like string or Unix seconds. Strings
// without a zone are read in the probe's local zone.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		f, ferr := strconv.ParseFloat(string(raw), 64)
		if ferr != nil {
			return time.Time{}, fmt.Errorf("unsupported timestamp %s", raw)
		}
		return unixSeconds(f), nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return unixSeconds(f), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func unixSeconds(f float64) time.Time {
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9))
}
