package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors llbot.toml. Every field is optional.
type fileConfig struct {
	Debug       *bool   `toml:"debug"`
	LogLevel    string  `toml:"log_level"`
	StatusAddr  string  `toml:"status_addr"`
	StatusToken string  `toml:"status_token"`
	Ports       *ports  `toml:"ports"`
	Registry    *remote `toml:"registry"`
	Login       *login  `toml:"login"`

	DownloadTimeout duration `toml:"download_timeout"`
	APITimeout      duration `toml:"api_timeout"`
}

type ports struct {
	Start int `toml:"start"`
	End   int `toml:"end"`
}

type remote struct {
	Primary string   `toml:"primary"`
	Mirrors []string `toml:"mirrors"`
	Timeout duration `toml:"timeout"`
	Retries *int     `toml:"retries"`
}

type login struct {
	SettleDelay    duration `toml:"settle_delay"`
	RefreshWindow  duration `toml:"refresh_window"`
	ReconnectDelay duration `toml:"reconnect_delay"`
	StreamTimeout  duration `toml:"stream_timeout"`
}

// duration accepts "15s"-style strings.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.Debug != nil {
		c.Debug = *fc.Debug
	}
	if fc.LogLevel != "" {
		c.LogLevel = strings.ToLower(fc.LogLevel)
	}
	if fc.StatusAddr != "" {
		c.StatusAddr = fc.StatusAddr
	}
	if fc.StatusToken != "" {
		c.StatusToken = fc.StatusToken
	}
	if fc.Ports != nil {
		if fc.Ports.Start != 0 {
			c.PortStart = fc.Ports.Start
		}
		if fc.Ports.End != 0 {
			c.PortEnd = fc.Ports.End
		}
	}
	if r := fc.Registry; r != nil {
		if r.Primary != "" {
			c.Registry.Primary = strings.TrimRight(r.Primary, "/")
		}
		if r.Mirrors != nil {
			c.Registry.Mirrors = splitList(strings.Join(r.Mirrors, ","))
		}
		setDuration(&c.Registry.Timeout, r.Timeout)
		if r.Retries != nil {
			c.Registry.RetryMax = *r.Retries
		}
	}
	if l := fc.Login; l != nil {
		setDuration(&c.SettleDelay, l.SettleDelay)
		setDuration(&c.RefreshWindow, l.RefreshWindow)
		setDuration(&c.ReconnectDelay, l.ReconnectDelay)
		setDuration(&c.StreamTimeout, l.StreamTimeout)
	}
	setDuration(&c.DownloadTimeout, fc.DownloadTimeout)
	setDuration(&c.APITimeout, fc.APITimeout)
	return nil
}

func setDuration(dst *time.Duration, d duration) {
	if d.Duration > 0 {
		*dst = d.Duration
	}
}
