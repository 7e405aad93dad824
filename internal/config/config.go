package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trivia-room-service/internal/app"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		Dir      string   `yaml:"dir"`
		Subjects []string `yaml:"subjects"`
		TTL      string   `yaml:"ttl"`
		Refresh  string   `yaml:"refresh"`
	} `yaml:"questions"`
	Match Match `yaml:"match"`
}

// Match holds the per-room game constants. Zero values fall back to app.DefaultRules.
type Match struct {
	Deadline      string  `yaml:"deadline"`
	Reveal        string  `yaml:"reveal"`
	MaxPoints     int     `yaml:"maxPoints"`
	MinPoints     *int    `yaml:"minPoints"`
	WinScore      int     `yaml:"winScore"`
	StartHealth   int     `yaml:"startHealth"`
	FullDamage    int     `yaml:"fullDamage"`
	ChipDamage    int     `yaml:"chipDamage"`
	MaxCapacity   int     `yaml:"maxCapacity"`
	RoomCodeWidth int     `yaml:"roomCodeWidth"`
	InboundRate   float64 `yaml:"inboundRate"`
	InboundBurst  int     `yaml:"inboundBurst"`
}

const (
	defaultInboundRate  = 10
	defaultInboundBurst = 20
)

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Rules converts the match section into room rules, keeping defaults for anything unset.
func (m Match) Rules() app.Rules {
	rules := app.DefaultRules()
	rules.Deadline = TTLDuration(m.Deadline, rules.Deadline)
	rules.Reveal = TTLDuration(m.Reveal, rules.Reveal)
	if m.MaxPoints > 0 {
		rules.MaxPoints = m.MaxPoints
	}
	// minPoints: 0 is a legitimate "no floor".
	if m.MinPoints != nil && *m.MinPoints >= 0 {
		rules.MinPoints = *m.MinPoints
	}
	if m.WinScore > 0 {
		rules.WinScore = m.WinScore
	}
	if m.StartHealth > 0 {
		rules.StartHealth = m.StartHealth
	}
	if m.FullDamage > 0 {
		rules.FullDamage = m.FullDamage
	}
	if m.ChipDamage > 0 {
		rules.ChipDamage = m.ChipDamage
	}
	if m.MaxCapacity >= 2 {
		rules.MaxCapacity = m.MaxCapacity
	}
	if m.RoomCodeWidth > 0 {
		rules.RoomCodeWidth = m.RoomCodeWidth
	}
	return rules
}

// Inbound returns the per-connection message rate and burst.
func (m Match) Inbound() (float64, int) {
	rate, burst := m.InboundRate, m.InboundBurst
	if rate <= 0 {
		rate = defaultInboundRate
	}
	if burst <= 0 {
		burst = defaultInboundBurst
	}
	return rate, burst
}
