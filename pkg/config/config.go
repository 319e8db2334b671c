// Package config loads and validates the typed configuration for both
// binaries: ReceiverConfig and SenderConfig are decoded from YAML/TOML
// with viper, overlaid with BACKUPD_* environment variables, and
// checked against go-playground/validator struct tags. There is no
// default-generation or `init` command here — an operator is expected
// to provide a complete file, and a missing or invalid one is always a
// hard error.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LoggingConfig controls the logger package's runtime behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the optional Prometheus HTTP endpoint. An
// empty Addr disables it — this is the only HTTP surface either binary
// exposes.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// TLSConfig names the three PEM files an mTLS side needs.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file" validate:"required" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" validate:"required" yaml:"key_file"`
	CAFile   string `mapstructure:"ca_file" validate:"required" yaml:"ca_file"`
}

// Limits bounds what the receiver will accept from any one connection
// or peer.
type Limits struct {
	MaximumPayloadBytes   uint64         `mapstructure:"maximum_payload_bytes" validate:"required,gt=0" yaml:"maximum_payload_bytes"`
	MaximumBackupsPerHour int            `mapstructure:"maximum_backups_per_hour" validate:"required,gt=0" yaml:"maximum_backups_per_hour"`
	MaximumFiles          map[string]int `mapstructure:"maximum_files" validate:"required,dive,gt=0" yaml:"maximum_files"`
	TimeoutSeconds        int            `mapstructure:"timeout_seconds" validate:"required,gt=0" yaml:"timeout_seconds"`
}

// ReceiverConfig is the top-level configuration for receiverd.
type ReceiverConfig struct {
	SocketAddress   string        `mapstructure:"socket_address" validate:"required" yaml:"socket_address"`
	ExpectedCadence string        `mapstructure:"expected_cadence" yaml:"expected_cadence"`
	BackupsRoot     string        `mapstructure:"backups_root" validate:"required" yaml:"backups_root"`
	TLS             TLSConfig     `mapstructure:"tls" validate:"required" yaml:"tls"`
	Limits          Limits        `mapstructure:"limits" validate:"required" yaml:"limits"`
	Logging         LoggingConfig `mapstructure:"logging" validate:"required" yaml:"logging"`
	Metrics         MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// EndpointConfig names the receiver the sender uploads to.
type EndpointConfig struct {
	ReceiverAddress string    `mapstructure:"receiver_address" validate:"required" yaml:"receiver_address"`
	ReceiverPort    int       `mapstructure:"receiver_port" validate:"required,min=1,max=65535" yaml:"receiver_port"`
	TLS             TLSConfig `mapstructure:"tls" validate:"required" yaml:"tls"`
}

// SourceConfig declares one backup source. Kind is a closed set; "file"
// is the only kind this repository ships an implementation for.
type SourceConfig struct {
	Kind          string   `mapstructure:"kind" validate:"required,oneof=file" yaml:"kind"`
	ServiceName   string   `mapstructure:"service_name" validate:"required" yaml:"service_name"`
	FileExtension string   `mapstructure:"file_extension" validate:"required" yaml:"file_extension"`
	Cadences      []string `mapstructure:"cadences" validate:"required,min=1,dive,oneof=hourly daily weekly monthly" yaml:"cadences"`
	Directory     string   `mapstructure:"directory" validate:"required" yaml:"directory"`
}

// SenderConfig is the top-level configuration for senderd.
type SenderConfig struct {
	Endpoint    EndpointConfig `mapstructure:"endpoint" validate:"required" yaml:"endpoint"`
	Sources     []SourceConfig `mapstructure:"sources" validate:"required,min=1,dive" yaml:"sources"`
	HistoryPath string         `mapstructure:"history_path" validate:"required" yaml:"history_path"`
	Logging     LoggingConfig  `mapstructure:"logging" validate:"required" yaml:"logging"`
	Metrics     MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

var validate = validator.New()

// LoadReceiver reads, overlays, and validates receiverd's configuration
// from path.
func LoadReceiver(path string) (*ReceiverConfig, error) {
	var cfg ReceiverConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSender reads, overlays, and validates senderd's configuration
// from path.
func LoadSender(path string) (*SenderConfig, error) {
	var cfg SenderConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(path string, dst any) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("BACKUPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := v.Unmarshal(dst); err != nil {
		return fmt.Errorf("decoding config file %s: %w", path, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validating config file %s: %w", path, err)
	}
	return nil
}
