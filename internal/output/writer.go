package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gustycube/uptime-probe/internal/types"
)

// Format represents the output format
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// Unavailable marks a figure that could not be computed.
const Unavailable = "unavailable"

// Writer writes endpoint reports in the configured format
type Writer struct {
	format    Format
	w         io.Writer
	csvWriter *csv.Writer
	mu        sync.Mutex
}

// ParseFormat parses a format name
func ParseFormat(format string) (Format, error) {
	switch strings.ToLower(format) {
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "csv", "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// NewWriter creates a new output writer
func NewWriter(format string, w io.Writer) (*Writer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	writer := &Writer{format: f, w: w}
	if f == FormatCSV {
		writer.csvWriter = csv.NewWriter(w)
	}
	return writer, nil
}

// OpenFile opens path for appending, so several runs can share one file
func OpenFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// WriteReport writes one endpoint's section
func (w *Writer) WriteReport(r types.EndpointReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.format {
	case FormatJSON:
		encoder := json.NewEncoder(w.w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)

	case FormatJSONL:
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err = w.w.Write(data); err != nil {
			return err
		}
		_, err = w.w.Write([]byte("\n"))
		return err

	case FormatCSV:
		return w.writeCSV(r)

	default:
		return fmt.Errorf("unsupported format: %s", w.format)
	}
}

var sampleHeader = []string{
	"timestamp", "external_ip", "cpu_usage", "disk_usage", "memory_usage",
	"database", "redis", "status", "latency", "cumulative_uptime",
}

// writeCSV writes a header block, the sample table and a footer block,
// followed by three empty rows separating it from the next endpoint
func (w *Writer) writeCSV(r types.EndpointReport) error {
	cw := w.csvWriter
	endpoint, ip, expiry := r.Run.EndpointURL, Unavailable, Unavailable
	if h := r.Run.HostInfo; h != nil {
		endpoint, ip = h.EndpointPath, h.EndpointIP
	}
	if c := r.Run.Certificate; c != nil {
		expiry = c.NotAfter.UTC().Format(time.RFC3339)
	}
	cw.Write([]string{"endpoint_url", "endpoint_ip", "certificate_expiration"})
	cw.Write([]string{endpoint, ip, expiry})
	cw.Write(nil)

	cw.Write(sampleHeader)
	samples := r.Run.Samples
	var cumulative []time.Duration
	if r.Uptime != nil {
		samples, cumulative = r.Uptime.Samples, r.Uptime.CumulativeUptimes
	}
	for i, s := range samples {
		cum := Unavailable
		if i < len(cumulative) {
			cum = cumulative[i].String()
		}
		cw.Write([]string{
			s.Timestamp.Format(time.RFC3339Nano),
			s.ExternalIP,
			float(s.Metrics.CPUUsage),
			float(s.Metrics.DiskUsage),
			float(s.Metrics.MemoryUsage),
			s.Services.Database,
			s.Services.Redis,
			s.Status.String(),
			s.Latency.String(),
			cum,
		})
	}
	cw.Write(nil)

	total, latency := Unavailable, Unavailable
	if r.Uptime != nil {
		total = r.Uptime.TotalUptime.String()
		if r.Uptime.LatencyAvailable {
			latency = r.Uptime.AverageLatency.String()
		}
	}
	cw.Write([]string{"total_uptime_over_duration", "average_uptime_latency"})
	cw.Write([]string{total, latency})
	for i := 0; i < 3; i++ {
		cw.Write(nil)
	}
	cw.Flush()
	return cw.Error()
}

// float renders an observed metric, or an empty cell when it was not observed
func float(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Flush flushes any buffered data
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.csvWriter != nil {
		w.csvWriter.Flush()
		return w.csvWriter.Error()
	}
	return nil
}
