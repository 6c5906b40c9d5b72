package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for a probe run
type Config struct {
	// Targets
	Targets     []string `yaml:"targets" json:"targets" validate:"dive,url"`
	TargetsFile string   `yaml:"targets_file" json:"targets_file"`

	// Scheduling, all in seconds
	Interval       int `yaml:"interval" json:"interval" validate:"gt=0"`
	Duration       int `yaml:"duration" json:"duration" validate:"gte=0"`
	RequestTimeout int `yaml:"request_timeout" json:"request_timeout" validate:"gt=0"`
	TLSTimeout     int `yaml:"tls_timeout" json:"tls_timeout" validate:"gt=0"`

	Run                string `yaml:"run" json:"run"`
	UA                 string `yaml:"ua" json:"ua"`
	ShareTLSInspection bool   `yaml:"share_tls_inspection" json:"share_tls_inspection"`

	// Output
	Outfile      string `yaml:"outfile" json:"outfile"`
	OutputFormat string `yaml:"output_format" json:"output_format" validate:"oneof=csv json jsonl ndjson"`
	Ingest       string `yaml:"ingest" json:"ingest" validate:"omitempty,url"`
	SpoolDir     string `yaml:"spool_dir" json:"spool_dir"`

	// Observability
	MetricsAddr  string `yaml:"metrics_addr" json:"metrics_addr"`
	OTELEndpoint string `yaml:"otel_endpoint" json:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure" json:"otel_insecure"`
	OTELService  string `yaml:"otel_service" json:"otel_service"`

	// Redis target queue
	RedisQueueAddr string `yaml:"redis_queue_addr" json:"redis_queue_addr"`
	RedisQueueKey  string `yaml:"redis_queue_key" json:"redis_queue_key"`
}

var validate = validator.New()

// DefaultOutfile names the report file after the start time, e.g.
// ./261014_093000-healthcheckdata.csv
func DefaultOutfile(now time.Time) string {
	return "./" + now.Format("060102_150405") + "-healthcheckdata.csv"
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.Interval == 0 {
		c.Interval = 60
	}
	if c.Duration == 0 {
		c.Duration = 3600
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15
	}
	if c.TLSTimeout == 0 {
		c.TLSTimeout = 8
	}
	if c.Run == "" {
		c.Run = uuid.NewString()
	}
	if c.UA == "" {
		c.UA = "UptimeProbe/1.0 (+https://github.com/gustycube/uptime-probe)"
	}
	if c.Outfile == "" {
		c.Outfile = DefaultOutfile(time.Now())
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "csv"
	}
	if c.SpoolDir == "" {
		c.SpoolDir = "spool"
	}
	if c.OTELService == "" {
		c.OTELService = "uptime-probe"
	}
	if c.RedisQueueKey == "" {
		c.RedisQueueKey = "uptime:targets"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if len(c.Targets) == 0 && c.TargetsFile == "" && c.RedisQueueAddr == "" {
		return fmt.Errorf("at least one target is required (targets, targets_file or redis_queue_addr)")
	}
	return nil
}

func (c *Config) IntervalDuration() time.Duration { return time.Duration(c.Interval) * time.Second }
func (c *Config) RunDuration() time.Duration      { return time.Duration(c.Duration) * time.Second }
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}
func (c *Config) TLSTimeoutDuration() time.Duration {
	return time.Duration(c.TLSTimeout) * time.Second
}

// LoadFromFile loads configuration from a YAML or JSON file. Defaults are
// applied but validation is left until flags have been merged.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	config.SetDefaults()
	return &config, nil
}

// LoadTargetsFile reads one URL per line. Blank lines and lines starting
// with # are skipped.
func LoadTargetsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open targets file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// FilterTargets splits targets into valid absolute URLs and rejected entries.
func FilterTargets(targets []string) (valid, invalid []string) {
	for _, t := range targets {
		if err := validate.Var(t, "url"); err != nil {
			invalid = append(invalid, t)
			continue
		}
		valid = append(valid, t)
	}
	return valid, invalid
}

// SplitTargets parses a comma separated target list
func SplitTargets(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MergeWithFlags merges command-line flags with file configuration.
// flags should hold only the flags set explicitly; booleans present in it
// always win, so a file's true can be turned off from the command line.
func (c *Config) MergeWithFlags(flags map[string]interface{}) {
	if v, ok := flags["targets"].(string); ok && v != "" {
		c.Targets = SplitTargets(v)
	}
	if v, ok := flags["targets_file"].(string); ok && v != "" {
		c.TargetsFile = v
	}
	if v, ok := flags["interval"].(int); ok && v > 0 {
		c.Interval = v
	}
	if v, ok := flags["duration"].(int); ok && v > 0 {
		c.Duration = v
	}
	if v, ok := flags["request_timeout"].(int); ok && v > 0 {
		c.RequestTimeout = v
	}
	if v, ok := flags["tls_timeout"].(int); ok && v > 0 {
		c.TLSTimeout = v
	}
	if v, ok := flags["run"].(string); ok && v != "" {
		c.Run = v
	}
	if v, ok := flags["ua"].(string); ok && v != "" {
		c.UA = v
	}
	if v, ok := flags["outfile"].(string); ok && v != "" {
		c.Outfile = v
	}
	if v, ok := flags["output_format"].(string); ok && v != "" {
		c.OutputFormat = v
	}
	if v, ok := flags["ingest"].(string); ok && v != "" {
		c.Ingest = v
	}
	if v, ok := flags["spool_dir"].(string); ok && v != "" {
		c.SpoolDir = v
	}
	if v, ok := flags["metrics_addr"].(string); ok && v != "" {
		c.MetricsAddr = v
	}
	if v, ok := flags["otel_endpoint"].(string); ok && v != "" {
		c.OTELEndpoint = v
	}
	if v, ok := flags["otel_insecure"].(bool); ok {
		c.OTELInsecure = v
	}
	if v, ok := flags["otel_service"].(string); ok && v != "" {
		c.OTELService = v
	}
	if v, ok := flags["share_tls_inspection"].(bool); ok {
		c.ShareTLSInspection = v
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("REDIS_QUEUE_ADDR"); v != "" {
		c.RedisQueueAddr = v
	}
	if v := os.Getenv("REDIS_QUEUE_KEY"); v != "" {
		c.RedisQueueKey = v
	}
	if v := os.Getenv("INGEST_URL"); v != "" {
		c.Ingest = v
	}
}
