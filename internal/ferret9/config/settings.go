package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the optional YAML file that tunes bot behaviour. Missing keys
// keep their defaults.
type Settings struct {
	BotName string          `yaml:"bot_name" validate:"required"`
	Persona string          `yaml:"persona"`
	History HistorySettings `yaml:"history"`
	Roles   RoleSettings    `yaml:"roles"`
	Chunk   ChunkSettings   `yaml:"chunk"`
	LLM     LLMSettings     `yaml:"llm"`
	Report  ReportSettings  `yaml:"report"`
}

type HistorySettings struct {
	// ExemptChannels never keep history; each message is answered alone.
	ExemptChannels []string `yaml:"exempt_channels"`
	MaxTurns       int      `yaml:"max_turns" validate:"gte=2"`
	MaxAge         Duration `yaml:"max_age" validate:"gt=0"`
	SweepInterval  Duration `yaml:"sweep_interval" validate:"gt=0"`
}

type RoleSettings struct {
	Working string `yaml:"working"`
	OnBreak string `yaml:"on_break"`
}

type ChunkSettings struct {
	MaxLength int `yaml:"max_length" validate:"gte=1,lte=2000"`
}

type LLMSettings struct {
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=1"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
}

type ReportSettings struct {
	TimezoneOffsetHours int `yaml:"timezone_offset_hours" validate:"gte=-12,lte=14"`
	// DefaultYear applies to dates typed without a year. Zero means the
	// current year.
	DefaultYear int `yaml:"default_year" validate:"gte=0"`
}

// Duration reads "30m" style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultSettings returns the built-in behaviour.
func DefaultSettings() *Settings {
	return &Settings{
		BotName: "Ferret9",
		History: HistorySettings{
			MaxTurns:      10,
			MaxAge:        Duration(30 * time.Minute),
			SweepInterval: Duration(10 * time.Minute),
		},
		Chunk:  ChunkSettings{MaxLength: 1950},
		LLM:    LLMSettings{MaxTokens: 500, Temperature: 0.7},
		Report: ReportSettings{TimezoneOffsetHours: 8},
	}
}

// LoadSettings reads path over the defaults. An empty path returns the
// defaults. Unknown keys are rejected.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read settings: %w", err)
	}
	if err := s.decode(raw); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return s, nil
}

// ParseSettings is LoadSettings for an in-memory document.
func ParseSettings(raw []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := s.decode(raw); err != nil {
		return nil, fmt.Errorf("config: settings: %w", err)
	}
	return s, nil
}

func (s *Settings) decode(raw []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return s.Validate()
}

// Validate checks ranges.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	return nil
}

// Exempt reports whether channelID skips history.
func (s *Settings) Exempt(channelID string) bool {
	for _, c := range s.History.ExemptChannels {
		if c == channelID {
			return true
		}
	}
	return false
}
