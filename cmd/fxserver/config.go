package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/fxchange/internal/auth"
	"github.com/danmuck/fxchange/internal/config"
	"github.com/danmuck/fxchange/internal/server"
)

// fxserver config.toml key mapping to server runtime settings.
type fileConfig struct {
	Addr            string             `toml:"addr"`
	Root            string             `toml:"root"`
	ObfuscationKey  string             `toml:"obfuscation_key"`
	ChunkSize       int                `toml:"chunk_size"`
	MaxFrameBytes   uint32             `toml:"max_frame_bytes"`
	MaxConnections  int                `toml:"max_connections"`
	IdleTimeout     string             `toml:"idle_timeout"`
	ReadTimeout     string             `toml:"read_timeout"`
	WriteTimeout    string             `toml:"write_timeout"`
	CredentialsFile string             `toml:"credentials_file"`
	AdminListenAddr string             `toml:"admin_listen_addr"`
	CorsOrigins     []string           `toml:"cors_origins"`
	Users           []config.UserEntry `toml:"users"`
}

type runtimeConfig struct {
	Service     server.ServiceConfig
	Root        string
	Credentials []auth.Credential
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Service: server.DefaultServiceConfig(),
		Root:    "server_files",
	}
}

// defaultCredentials is the table used when no users are configured.
func defaultCredentials() []auth.Credential {
	return []auth.Credential{
		{User: "user", Password: "pass123"},
		{User: "admin", Password: "adminpass"},
	}
}

// fxserver loader for TOML config with default overlay.
func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load fxserver config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Service.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("root") {
		cfg.Root = strings.TrimSpace(raw.Root)
	}
	if meta.IsDefined("obfuscation_key") {
		cfg.Service.Session.ObfuscationKey = raw.ObfuscationKey
	}
	if meta.IsDefined("chunk_size") {
		cfg.Service.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.Service.Session.Limits.MaxPayloadBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("max_connections") {
		cfg.Service.MaxConnections = raw.MaxConnections
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.Service.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.Service.CorsOrigins = raw.CorsOrigins
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"idle_timeout", raw.IdleTimeout, &cfg.Service.Session.IdleTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Service.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Service.Session.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil || v <= 0 {
			return runtimeConfig{}, fmt.Errorf("load fxserver config: %s must be a positive duration, got %q", d.key, d.raw)
		}
		*d.dst = v
	}

	if credPath := strings.TrimSpace(raw.CredentialsFile); credPath != "" {
		if !filepath.IsAbs(credPath) {
			credPath = filepath.Join(filepath.Dir(path), credPath)
		}
		creds, err := config.LoadCredentials(credPath)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("load fxserver config: %w", err)
		}
		cfg.Credentials = append(cfg.Credentials, creds...)
	}
	if len(raw.Users) > 0 {
		inline := config.CredentialsFile{Users: raw.Users}
		if err := config.ValidateCredentials(inline); err != nil {
			return runtimeConfig{}, fmt.Errorf("load fxserver config: %w", err)
		}
		cfg.Credentials = append(cfg.Credentials, inline.Credentials()...)
	}

	if strings.TrimSpace(cfg.Root) == "" {
		return runtimeConfig{}, fmt.Errorf("load fxserver config: root must not be empty")
	}
	cfg.Service.Session = cfg.Service.Session.WithDefaults()
	if err := cfg.Service.Validate(); err != nil {
		return runtimeConfig{}, fmt.Errorf("load fxserver config: %w", err)
	}
	return cfg, nil
}
