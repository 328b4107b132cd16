package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/clpe-bridge/internal/clpe"
)

// DefaultConfigPath is the path to the canonical bridge defaults file.
const DefaultConfigPath = "config/clpe.defaults.yaml"

// BridgeConfig is the startup configuration of clpe-bridge. Every field is
// optional: omitted fields fall back to the defaults in the Get* accessors,
// so partial files are safe.
type BridgeConfig struct {
	// Stream
	FrameRate *int  `yaml:"frame_rate,omitempty"`
	Cameras   []int `yaml:"cameras,omitempty"`

	// SDK password is read from this environment variable, never from the file.
	CredentialEnv *string `yaml:"credential_env,omitempty"`
	FrameIDPrefix *string `yaml:"frame_id_prefix,omitempty"`

	// Debug server and history store
	Listen *string `yaml:"listen,omitempty"`
	DBPath *string `yaml:"db_path,omitempty"`

	AuditInterval *string `yaml:"audit_interval,omitempty"` // duration string like "5m"
	StatsInterval *string `yaml:"stats_interval,omitempty"` // duration string like "30s"

	LogLevel  *string `yaml:"log_level,omitempty"`
	LogFormat *string `yaml:"log_format,omitempty"`
}

// LoadConfig reads a BridgeConfig from a YAML file and validates it.
func LoadConfig(path string) (*BridgeConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 256 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML config bytes. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func ParseConfig(data []byte) (*BridgeConfig, error) {
	cfg := &BridgeConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *BridgeConfig) Validate() error {
	if c.FrameRate != nil {
		if *c.FrameRate < clpe.MIN_FRAME_RATE || *c.FrameRate > clpe.MAX_FRAME_RATE {
			return fmt.Errorf("frame_rate must be between %d and %d, got %d", clpe.MIN_FRAME_RATE, clpe.MAX_FRAME_RATE, *c.FrameRate)
		}
	}

	seen := make(map[int]bool, len(c.Cameras))
	for _, id := range c.Cameras {
		if id < 0 || id >= clpe.MAX_CAMERAS {
			return fmt.Errorf("camera id %d out of range [0, %d)", id, clpe.MAX_CAMERAS)
		}
		if seen[id] {
			return fmt.Errorf("camera id %d listed twice", id)
		}
		seen[id] = true
	}

	if c.CredentialEnv != nil && *c.CredentialEnv == "" {
		return fmt.Errorf("credential_env must not be empty")
	}

	for name, v := range map[string]*string{
		"audit_interval": c.AuditInterval,
		"stats_interval": c.StatsInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.LogFormat != nil {
		switch *c.LogFormat {
		case "", "text", "color", "json":
		default:
			return fmt.Errorf("log_format must be text, color or json, got %q", *c.LogFormat)
		}
	}
	return nil
}

// GetFrameRate returns frame_rate or the default of 30 fps.
func (c *BridgeConfig) GetFrameRate() int {
	if c.FrameRate == nil {
		return clpe.MAX_FRAME_RATE
	}
	return *c.FrameRate
}

// GetCameras returns the enabled camera ids, all four when unset.
func (c *BridgeConfig) GetCameras() []int {
	if len(c.Cameras) == 0 {
		return []int{0, 1, 2, 3}
	}
	out := make([]int, len(c.Cameras))
	copy(out, c.Cameras)
	return out
}

func (c *BridgeConfig) GetCredentialEnv() string {
	if c.CredentialEnv == nil {
		return "CLPE_PASSWORD"
	}
	return *c.CredentialEnv
}

// Credential reads the SDK password from the configured environment variable.
func (c *BridgeConfig) Credential() (string, error) {
	name := c.GetCredentialEnv()
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return v, nil
}

func (c *BridgeConfig) GetFrameIDPrefix() string {
	if c.FrameIDPrefix == nil {
		return ""
	}
	return *c.FrameIDPrefix
}

// FrameID returns the frame id stamped on camera id's frames: "base_link"
// when no prefix is set, otherwise "<prefix><id>".
func (c *BridgeConfig) FrameID(id int) string {
	p := c.GetFrameIDPrefix()
	if p == "" {
		return "base_link"
	}
	return fmt.Sprintf("%s%d", p, id)
}

func (c *BridgeConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return "localhost:8090"
	}
	return *c.Listen
}

func (c *BridgeConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "clpe_bridge.db"
	}
	return *c.DBPath
}

// GetAuditInterval returns audit_interval, 5m by default. Zero disables the
// periodic audit; the startup read still happens.
func (c *BridgeConfig) GetAuditInterval() time.Duration {
	return parseDurationOr(c.AuditInterval, 5*time.Minute)
}

// GetStatsInterval returns stats_interval, 30s by default.
func (c *BridgeConfig) GetStatsInterval() time.Duration {
	return parseDurationOr(c.StatsInterval, 30*time.Second)
}

func (c *BridgeConfig) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return "info"
	}
	return *c.LogLevel
}

func (c *BridgeConfig) GetLogFormat() string {
	if c.LogFormat == nil || *c.LogFormat == "" {
		return "text"
	}
	return *c.LogFormat
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
