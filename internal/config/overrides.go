package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TSN_CAPTURE_INTERFACE.
const EnvPrefix = "TSN"

// NewViper returns a viper instance reading TSN_* environment variables,
// with keys named after the YAML paths ("capture.interface").
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay copies every key explicitly set in v (by a changed flag, the
// environment or Set) onto cfg, then validates the result.
func Overlay(cfg *Config, v *viper.Viper) error {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	integer := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	str("capture.interface", &cfg.Capture.Interface)
	integer("capture.vlan_id", &cfg.Capture.VLANID)
	str("capture.filter", &cfg.Capture.Filter)
	str("capture.pcap_file", &cfg.Capture.PcapFile)
	str("capture.record_path", &cfg.Capture.RecordPath)
	str("capture.duration", &cfg.Capture.Duration)

	if v.IsSet("transmit.enabled") {
		cfg.Transmit.Enabled = v.GetBool("transmit.enabled")
	}
	str("transmit.interface", &cfg.Transmit.Interface)
	str("transmit.dst_mac", &cfg.Transmit.DstMAC)
	integer("transmit.pps", &cfg.Transmit.PPS)
	str("transmit.duration", &cfg.Transmit.Duration)
	str("transmit.waiter", &cfg.Transmit.Waiter)
	str("transmit.start_delay", &cfg.Transmit.StartDelay)
	if v.IsSet("transmit.priority") {
		cfg.Transmit.Priority = uint8(v.GetUint("transmit.priority"))
	}
	if v.IsSet("transmit.classes") {
		cfg.Transmit.Classes = v.GetIntSlice("transmit.classes")
	}

	if v.IsSet("analysis.link_speed_bps") {
		cfg.Analysis.LinkSpeedBps = v.GetFloat64("analysis.link_speed_bps")
	}
	str("analysis.mode", &cfg.Analysis.Mode)
	str("analysis.gap_threshold", &cfg.Analysis.GapThreshold)
	str("analysis.cycle_override", &cfg.Analysis.CycleOverride)

	str("probe.nats_url", &cfg.Probe.NATSURL)
	str("probe.subject", &cfg.Probe.Subject)
	str("api.listen_addr", &cfg.API.ListenAddr)
	str("grpc.listen_addr", &cfg.GRPC.ListenAddr)
	str("log.level", &cfg.Log.Level)
	str("log.format", &cfg.Log.Format)

	return cfg.Validate()
}
