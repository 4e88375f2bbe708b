// Package config holds the engine's enumerated configuration
// (spec §6) and an optional INI-file loader for overriding it,
// grounded on od_parser.go's ParseEDSFromFile/gopkg.in/ini.v1 usage
// for loading CANopen EDS files: the same library, the same
// section/key-with-fallback-default style, applied to this engine's
// flat configuration surface instead of an object dictionary.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds every tunable named in spec §6. A zero-value Config is
// invalid; callers start from Default().
type Config struct {
	PDUBufferBytes int

	IOVStagingMax int

	ARQWindowMax          int
	ARQRetryMax           int
	ARQRetransmitTimeout  time.Duration
	ReassemblyTimeout     time.Duration

	SISMaxPDUSize    int
	SISBroadcastMTU  int
	DTSMaxPDUSize    int
	DTSSegmentSize   int
}

// Default returns the spec §6 defaults, plus this implementation's
// decision on arq_retry_max (SPEC_FULL §9: 5, chosen to match
// sdo_client.go's bounded-retry conventions scaled to a lossy HF
// link).
func Default() *Config {
	return &Config{
		PDUBufferBytes:       2200,
		IOVStagingMax:        32,
		ARQWindowMax:         127,
		ARQRetryMax:          5,
		ARQRetransmitTimeout: 2 * time.Second,
		ReassemblyTimeout:    10 * time.Second,
		SISMaxPDUSize:        8192,
		SISBroadcastMTU:      4096,
		DTSMaxPDUSize:        4096,
		DTSSegmentSize:       800,
	}
}

// Load parses path as an INI file and overlays any keys present in its
// [engine] section onto Default(), the same ini.Load-then-Key-lookup
// pattern od_parser.go uses for EDS sections, scaled down to this
// engine's single flat section.
func Load(path string) (*Config, error) {
	cfg := Default()
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	section := file.Section("engine")

	if k := section.Key("pdu_buffer_bytes"); k.String() != "" {
		v, err := k.Int()
		if err != nil {
			return nil, fmt.Errorf("config: pdu_buffer_bytes: %w", err)
		}
		cfg.PDUBufferBytes = v
	}
	if k := section.Key("iov_staging_max"); k.String() != "" {
		v, err := k.Int()
		if err != nil {
			return nil, fmt.Errorf("config: iov_staging_max: %w", err)
		}
		if v > 32 {
			v = 32
		}
		cfg.IOVStagingMax = v
	}
	if k := section.Key("arq_retry_max"); k.String() != "" {
		v, err := k.Int()
		if err != nil {
			return nil, fmt.Errorf("config: arq_retry_max: %w", err)
		}
		cfg.ARQRetryMax = v
	}
	if k := section.Key("arq_retransmit_timeout_ms"); k.String() != "" {
		v, err := k.Int()
		if err != nil {
			return nil, fmt.Errorf("config: arq_retransmit_timeout_ms: %w", err)
		}
		cfg.ARQRetransmitTimeout = time.Duration(v) * time.Millisecond
	}
	if k := section.Key("reassembly_timeout_ms"); k.String() != "" {
		v, err := k.Int()
		if err != nil {
			return nil, fmt.Errorf("config: reassembly_timeout_ms: %w", err)
		}
		cfg.ReassemblyTimeout = time.Duration(v) * time.Millisecond
	}
	return cfg, nil
}
