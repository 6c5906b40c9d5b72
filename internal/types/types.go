package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusKind is the outcome class of a single poll.
type StatusKind int

const (
	StatusFailure StatusKind = iota
	StatusSuccess
)

// Status is the tagged outcome of a poll: Success, or Failure with a reason.
type Status struct {
	Kind   StatusKind
	Reason string
}

// Success returns the successful status.
func Success() Status { return Status{Kind: StatusSuccess} }

// Failure returns a failed status carrying the reason it failed.
func Failure(reason string) Status { return Status{Kind: StatusFailure, Reason: reason} }

// OK reports whether the status is a success.
func (s Status) OK() bool { return s.Kind == StatusSuccess }

// String returns "success" or "failure".
func (s Status) String() string {
	if s.OK() {
		return "success"
	}
	return "failure"
}

// MarshalJSON encodes the status as {"kind": "...", "reason": "..."}.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind   string `json:"kind"`
		Reason string `json:"reason,omitempty"`
	}{s.String(), s.Reason})
}

// UnmarshalJSON accepts the form written by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v struct {
		Kind   string `json:"kind"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.Kind {
	case "success":
		*s = Success()
	case "failure":
		*s = Failure(v.Reason)
	default:
		return fmt.Errorf("unknown status kind %q", v.Kind)
	}
	return nil
}

// Metrics are the resource figures reported by a healthy endpoint.
// Nil fields mean the value was not observed.
type Metrics struct {
	CPUUsage    *float64 `json:"cpu_usage"`
	DiskUsage   *float64 `json:"disk_usage"`
	MemoryUsage *float64 `json:"memory_usage"`
}

// Services are the dependency health indicators reported by an endpoint.
// Empty strings mean the value was not observed.
type Services struct {
	Database string `json:"database,omitempty"`
	Redis    string `json:"redis,omitempty"`
}

// SampleRecord is one observation of an endpoint.
type SampleRecord struct {
	Timestamp  time.Time     `json:"timestamp"`
	ExternalIP string        `json:"external_ip"`
	Metrics    Metrics       `json:"metrics"`
	Services   Services      `json:"services"`
	Status     Status        `json:"status"`
	Latency    time.Duration `json:"latency"`
}

// HostInfo is the resolved identity of an endpoint.
type HostInfo struct {
	Hostname string `json:"hostname"`
	// EndpointPath is the endpoint URL with the scheme removed (host and path).
	EndpointPath string `json:"endpoint"`
	EndpointIP   string `json:"endpoint_ip"`
}

// CertificateInfo is the leaf certificate presented by an endpoint.
type CertificateInfo struct {
	NotBefore time.Time         `json:"not_before"`
	NotAfter  time.Time         `json:"not_after"`
	RawFields map[string]string `json:"raw_fields,omitempty"`
}

// State is the lifecycle of an endpoint poller.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateInProgress    State = "in-progress"
	StateDone          State = "done"
)

// PollerRun is everything one poller produced over its lifetime. Once State
// is StateDone the value is treated as immutable.
type PollerRun struct {
	EndpointURL  string           `json:"endpoint_url"`
	Interval     time.Duration    `json:"interval"`
	Duration     time.Duration    `json:"duration"`
	HostInfo     *HostInfo        `json:"host_info,omitempty"`
	Certificate  *CertificateInfo `json:"certificate,omitempty"`
	CertError    string           `json:"certificate_error,omitempty"`
	Samples      []SampleRecord   `json:"samples"`
	State        State            `json:"state"`
	StartTime    time.Time        `json:"start_time"`
	LastPollTime time.Time        `json:"last_poll_time"`
	EndTime      time.Time        `json:"end_time"`
}

// Elapsed is the wall-clock span between start and end of the run.
func (r PollerRun) Elapsed() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// UptimeReport is derived from a run's samples.
type UptimeReport struct {
	// Samples is the time-ordered series the figures were computed from.
	Samples           []SampleRecord  `json:"samples"`
	CumulativeUptimes []time.Duration `json:"cumulative_uptimes"`
	TotalUptime       time.Duration   `json:"total_uptime"`
	AverageLatency    time.Duration   `json:"average_latency"`
	// LatencyAvailable is false when no sample succeeded.
	LatencyAvailable bool `json:"latency_available"`
}

// EndpointReport pairs a completed run with its aggregation outcome. Uptime
// is nil when aggregation failed; Error then says why.
type EndpointReport struct {
	RunID  string        `json:"run_id"`
	Run    PollerRun     `json:"run"`
	Uptime *UptimeReport `json:"uptime,omitempty"`
	Error  string        `json:"error,omitempty"`
}
