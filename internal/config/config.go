package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionConfig bounds the memory a measurement session may use.
type SessionConfig struct {
	CapacityPerClass int `yaml:"capacity_per_class"`
	InputBuffer      int `yaml:"input_buffer"`
}

// CaptureConfig describes where observations come from.
type CaptureConfig struct {
	Interface   string `yaml:"interface"`
	VLANID      int    `yaml:"vlan_id"` // 0 matches any VLAN
	Filter      string `yaml:"filter"`  // extra BPF expression, and-ed with the VLAN match
	SnapLen     int32  `yaml:"snaplen"`
	Promiscuous bool   `yaml:"promiscuous"`
	ReadTimeout string `yaml:"read_timeout"`
	PcapFile    string `yaml:"pcap_file"`
	RecordPath  string `yaml:"record_path"` // optional pcap copy of a live capture
	Duration    string `yaml:"duration"`
}

// TransmitConfig describes the optional test-traffic generator.
type TransmitConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Interface   string `yaml:"interface"`
	SrcMAC      string `yaml:"src_mac"`
	DstMAC      string `yaml:"dst_mac"`
	SrcIP       string `yaml:"src_ip"`
	DstIP       string `yaml:"dst_ip"`
	SrcPort     uint16 `yaml:"src_port"`
	DstPort     uint16 `yaml:"dst_port"`
	VLANID      uint16 `yaml:"vlan_id"`
	Priority    uint8  `yaml:"priority"`
	Classes     []int  `yaml:"classes"` // round-robin classes; empty means Priority only
	PayloadSize int    `yaml:"payload_size"`
	PPS         int    `yaml:"pps"`
	Duration    string `yaml:"duration"`
	Waiter      string `yaml:"waiter"` // "busy" or "sleep"
	// StartDelay holds transmission back so the capture handle is open
	// before the first test frame leaves.
	StartDelay string `yaml:"start_delay"`
}

// Analysis modes.
const (
	ModeCBS  = "cbs"
	ModeTAS  = "tas"
	ModeBoth = "both"
)

// AnalysisConfig holds the inference engine parameters.
type AnalysisConfig struct {
	Mode                 string  `yaml:"mode"` // cbs, tas or both
	LinkSpeedBps         float64 `yaml:"link_speed_bps"`
	GapThreshold         string  `yaml:"gap_threshold"`
	MaxBursts            int     `yaml:"max_bursts"`
	CycleOverride        string  `yaml:"cycle_override"`
	CycleBins            int     `yaml:"cycle_bins"`
	WindowBins           int     `yaml:"window_bins"`
	WindowThresholdRatio float64 `yaml:"window_threshold_ratio"`
	MaxWindows           int     `yaml:"max_windows"`
	MaxGCLEntries        int     `yaml:"max_gcl_entries"`
}

// ProbeConfig holds the NATS settings used by distributed capture.
type ProbeConfig struct {
	NATSURL       string `yaml:"nats_url"`
	Subject       string `yaml:"subject"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// GRPCConfig holds the gRPC service settings.
type GRPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// FileWriterConfig holds the settings for report files.
type FileWriterConfig struct {
	RootPath string `yaml:"root_path"`
	Format   string `yaml:"format"` // json, yaml or table
}

// WriterDef defines one report writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	File       FileWriterConfig `yaml:"file"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// LogConfig selects the logger level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Capture  CaptureConfig  `yaml:"capture"`
	Transmit TransmitConfig `yaml:"transmit"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Probe    ProbeConfig    `yaml:"probe"`
	API      APIConfig      `yaml:"api"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Writers  []WriterDef    `yaml:"writers"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns a configuration with every field set to a usable value.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			CapacityPerClass: 1_000_000,
			InputBuffer:      65536,
		},
		Capture: CaptureConfig{
			SnapLen:     128,
			Promiscuous: true,
			ReadTimeout: "100ms",
			Duration:    "10s",
		},
		Transmit: TransmitConfig{
			SrcIP:       "192.168.100.1",
			DstIP:       "192.168.100.2",
			SrcPort:     5000,
			DstPort:     5001,
			PayloadSize: 1000,
			PPS:         1000,
			Duration:    "10s",
			Waiter:      "busy",
			StartDelay:  "100ms",
		},
		Analysis: AnalysisConfig{
			Mode:                 ModeBoth,
			LinkSpeedBps:         1e9,
			GapThreshold:         "500us",
			MaxBursts:            100_000,
			CycleBins:            100,
			WindowBins:           1000,
			WindowThresholdRatio: 0.3,
			MaxWindows:           64,
			MaxGCLEntries:        256,
		},
		Probe: ProbeConfig{
			NATSURL:       "nats://127.0.0.1:4222",
			Subject:       "tsn.observations",
			BatchSize:     512,
			FlushInterval: "50ms",
		},
		API:  APIConfig{ListenAddr: ":8080"},
		GRPC: GRPCConfig{ListenAddr: ":9090"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Session.CapacityPerClass <= 0 {
		return fmt.Errorf("session.capacity_per_class must be positive")
	}
	switch c.Analysis.Mode {
	case ModeCBS, ModeTAS, ModeBoth:
	default:
		return fmt.Errorf("analysis.mode %q must be cbs, tas or both", c.Analysis.Mode)
	}
	if c.Analysis.LinkSpeedBps <= 0 {
		return fmt.Errorf("analysis.link_speed_bps must be positive")
	}
	if c.Analysis.CycleBins <= 0 {
		return fmt.Errorf("analysis.cycle_bins must be positive")
	}
	if c.Analysis.WindowBins <= 0 {
		return fmt.Errorf("analysis.window_bins must be positive")
	}
	if c.Capture.VLANID < 0 || c.Capture.VLANID > 4094 {
		return fmt.Errorf("capture.vlan_id %d out of range", c.Capture.VLANID)
	}
	if c.Transmit.Priority > 7 {
		return fmt.Errorf("transmit.priority %d out of range", c.Transmit.Priority)
	}
	for _, tc := range c.Transmit.Classes {
		if tc < 0 || tc > 7 {
			return fmt.Errorf("transmit.classes: class %d out of range", tc)
		}
	}
	if c.Transmit.Enabled && c.Transmit.PPS <= 0 {
		return fmt.Errorf("transmit.pps must be positive")
	}
	for _, field := range []struct{ name, value string }{
		{"capture.read_timeout", c.Capture.ReadTimeout},
		{"capture.duration", c.Capture.Duration},
		{"transmit.duration", c.Transmit.Duration},
		{"transmit.start_delay", c.Transmit.StartDelay},
		{"analysis.gap_threshold", c.Analysis.GapThreshold},
		{"analysis.cycle_override", c.Analysis.CycleOverride},
		{"probe.flush_interval", c.Probe.FlushInterval},
	} {
		if _, err := ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	return nil
}

// ParseDuration parses a duration string; the empty string means zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// MustDuration parses a duration already checked by Validate.
func MustDuration(s string) time.Duration {
	d, _ := ParseDuration(s)
	return d
}
