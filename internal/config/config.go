// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package config loads the predictor's TOML configuration. Values missing
// from the file keep their defaults; unknown keys are rejected.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/Query-farm/predictor/predictor"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Server    Server    `toml:"server"`
	Predictor Predictor `toml:"predictor"`
	Model     Model     `toml:"model"`
	Ops       Ops       `toml:"ops"`
	Telemetry Telemetry `toml:"telemetry"`
	Log       Log       `toml:"log"`
}

// Server configures the evaluator-facing TCP listener.
type Server struct {
	Listen string `toml:"listen" validate:"required,hostname_port"`
	// BufferSize is the frame read chunk size.
	BufferSize int `toml:"buffer_size" validate:"gte=512"`
	// MaxFrameBytes of 0 leaves frames unbounded.
	MaxFrameBytes uint32        `toml:"max_frame_bytes"`
	ReadTimeout   time.Duration `toml:"read_timeout" validate:"gte=0"`
}

type Predictor struct {
	Species           string `toml:"species" validate:"required"`
	RequiredLength    int    `toml:"required_length" validate:"gt=0"`
	HelpPath          string `toml:"help_path" validate:"required"`
	CategoryIndexPath string `toml:"category_index_path" validate:"required"`
}

// Model locates the scoring worker: either a command to spawn or a socket
// to dial. With neither set the built-in hash scorer is used.
type Model struct {
	Command     string        `toml:"worker_command" validate:"excluded_with=Address"`
	Args        []string      `toml:"worker_args"`
	Network     string        `toml:"worker_network" validate:"omitempty,oneof=tcp unix"`
	Address     string        `toml:"worker_address" validate:"required_with=Network"`
	CallTimeout time.Duration `toml:"call_timeout" validate:"gte=0"`
}

// Ops configures the HTTP server for health, metrics and the HTTP
// transport. An empty Listen disables it.
type Ops struct {
	Listen      string `toml:"listen" validate:"omitempty,hostname_port"`
	HTTPPrefix  string `toml:"http_prefix" validate:"omitempty,startswith=/"`
	Compression bool   `toml:"compression"`
}

type Telemetry struct {
	ServiceName    string `toml:"service_name" validate:"required"`
	TraceExporter  string `toml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `toml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `toml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
}

type Log struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Listen:     "0.0.0.0:5000",
			BufferSize: predictor.DefaultBufferSize,
		},
		Predictor: Predictor{
			Species:           predictor.DefaultSpecies,
			RequiredLength:    predictor.DefaultRequiredLength,
			HelpPath:          "predictor_help_message.json",
			CategoryIndexPath: "cell_types.tsv",
		},
		Model: Model{
			CallTimeout: 5 * time.Minute,
		},
		Ops: Ops{
			HTTPPrefix:  "/v1",
			Compression: true,
		},
		Telemetry: Telemetry{
			ServiceName:    "predictor",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load decodes path over the defaults and validates the result. An empty
// path validates the defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
		if err := rejectUndecoded(md); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults.
func Parse(text string) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := rejectUndecoded(md); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func rejectUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	sort.Strings(keys)
	return fmt.Errorf("unknown keys %s", strings.Join(keys, ", "))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
