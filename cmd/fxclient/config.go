package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/fxchange/internal/client"
)

// fxclient config.toml key mapping to client runtime settings.
type fileConfig struct {
	Addr               string `toml:"addr"`
	Dir                string `toml:"dir"`
	ObfuscationKey     string `toml:"obfuscation_key"`
	ChunkSize          int    `toml:"chunk_size"`
	MaxFrameBytes      uint32 `toml:"max_frame_bytes"`
	ConnectTimeout     string `toml:"connect_timeout"`
	ReadTimeout        string `toml:"read_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

func loadClientConfig(path string) (client.Config, error) {
	cfg := client.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return client.Config{}, fmt.Errorf("load fxclient config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("dir") {
		cfg.Dir = strings.TrimSpace(raw.Dir)
	}
	if meta.IsDefined("obfuscation_key") {
		cfg.Session.ObfuscationKey = raw.ObfuscationKey
	}
	if meta.IsDefined("chunk_size") {
		if raw.ChunkSize <= 0 {
			return client.Config{}, fmt.Errorf("load fxclient config: chunk_size must be positive, got %d", raw.ChunkSize)
		}
		cfg.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.Session.Limits.MaxPayloadBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil || v <= 0 {
			return client.Config{}, fmt.Errorf("load fxclient config: %s must be a positive duration, got %q", d.key, d.raw)
		}
		*d.dst = v
	}

	if cfg.Address == "" {
		return client.Config{}, fmt.Errorf("load fxclient config: %w", client.ErrAddressRequired)
	}
	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}
