package detect

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the detection layer configuration.
type Config struct {
	// Mode is the enforcement posture.
	// Default: monitor
	Mode Mode `json:"mode" yaml:"mode"`

	// Engine selects the detection mechanism.
	// Default: fingerprint
	Engine Engine `json:"engine" yaml:"engine"`

	// FailClosed determines how analyzer errors are handled. If true,
	// input the analyzers refuse to parse is treated as a detection.
	// Default: true
	FailClosed bool `json:"fail_closed" yaml:"fail_closed"`

	// LogDetections determines whether to log detection events.
	// Default: true
	LogDetections bool `json:"log_detections" yaml:"log_detections"`

	// AuditTrailEnabled determines whether to write detections to the
	// audit trail.
	// Default: true
	AuditTrailEnabled bool `json:"audit_trail_enabled" yaml:"audit_trail_enabled"`

	// MaxContentLength is the maximum content length to scan (bytes).
	// Content exceeding this limit is truncated for scanning.
	// Default: 1MB (1048576)
	MaxContentLength int `json:"max_content_length" yaml:"max_content_length"`

	// ScanTypeOverrides allows per-scan-type configuration overrides.
	// Key is the scan type ("query", "body", "header", "param").
	ScanTypeOverrides map[ScanType]ScanTypeConfig `json:"scan_type_overrides,omitempty" yaml:"scan_type_overrides,omitempty"`

	// CustomPatterns are operator-supplied patterns added on top of
	// the built-in set. Only the heuristic engine consults them. Each
	// expression must pass the pattern safety gate.
	CustomPatterns []CustomPatternSpec `json:"custom_patterns,omitempty" yaml:"custom_patterns,omitempty"`
}

// ScanTypeConfig holds per-scan-type configuration.
type ScanTypeConfig struct {
	// Mode overrides the default enforcement mode for this scan type.
	Mode Mode `json:"mode" yaml:"mode"`

	// Enabled allows disabling scanning for specific scan types.
	// Default: true
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the default configuration. Scanning starts in
// monitor mode (detect and log, don't block); switch to enforce after
// validating the detection rate in your environment. Analyzer errors
// fail closed.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeMonitor,
		Engine:            EngineFingerprint,
		FailClosed:        true,
		LogDetections:     true,
		AuditTrailEnabled: true,
		MaxContentLength:  1048576, // 1MB
		ScanTypeOverrides: make(map[ScanType]ScanTypeConfig),
	}
}

// Environment variable names for detection configuration.
const (
	// EnvDetectMode sets the enforcement posture.
	// Valid values: "off", "monitor", "enforce"
	// Default: "monitor"
	EnvDetectMode = "DETECT_MODE"

	// EnvDetectEngine sets the detection engine.
	// Valid values: "fingerprint", "heuristic", "noop"
	// Default: "fingerprint"
	EnvDetectEngine = "DETECT_ENGINE"

	// EnvDetectFailClosed sets the analyzer-error policy.
	// Valid values: booleans accepted by strconv.ParseBool
	// Default: "true"
	EnvDetectFailClosed = "DETECT_FAIL_CLOSED"
)

// ConfigFromEnv creates a configuration from environment variables.
// This allows runtime configuration without code changes.
//
// Environment variables:
//   - DETECT_MODE: off, monitor, enforce (default: monitor)
//   - DETECT_ENGINE: fingerprint, heuristic, noop (default: fingerprint)
//   - DETECT_FAIL_CLOSED: true, false (default: true)
//
// Invalid values are logged and fall back to defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	// Parse DETECT_MODE
	if modeStr := os.Getenv(EnvDetectMode); modeStr != "" {
		mode, err := ParseMode(strings.ToLower(modeStr))
		if err != nil {
			log.Printf("[detect] WARNING: Invalid %s=%q, using default 'monitor'. Valid values: off, monitor, enforce",
				EnvDetectMode, modeStr)
		} else {
			cfg.Mode = mode
			log.Printf("[detect] Enforcement mode set to %q from environment", mode)
		}
	}

	// Parse DETECT_ENGINE
	if engineStr := os.Getenv(EnvDetectEngine); engineStr != "" {
		engine, err := ParseEngine(strings.ToLower(engineStr))
		if err != nil {
			log.Printf("[detect] WARNING: Invalid %s=%q, using default 'fingerprint'. Valid values: fingerprint, heuristic, noop",
				EnvDetectEngine, engineStr)
		} else {
			cfg.Engine = engine
			log.Printf("[detect] Detection engine set to %q from environment", engine)
		}
	}

	// Parse DETECT_FAIL_CLOSED
	if fcStr := os.Getenv(EnvDetectFailClosed); fcStr != "" {
		fc, err := strconv.ParseBool(fcStr)
		if err != nil {
			log.Printf("[detect] WARNING: Invalid %s=%q, using default 'true'",
				EnvDetectFailClosed, fcStr)
		} else {
			cfg.FailClosed = fc
			if !fc {
				log.Printf("[detect] Fail-open ENABLED - analyzer errors will not be treated as detections")
			}
		}
	}

	return cfg
}

// LoadConfigFile reads a YAML configuration file. Fields absent from
// the file keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read detection config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse detection config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs []string

	if !c.Mode.IsValid() {
		errs = append(errs, fmt.Sprintf("invalid mode: %q", c.Mode))
	}

	if !c.Engine.IsValid() {
		errs = append(errs, fmt.Sprintf("invalid engine: %q", c.Engine))
	}

	if c.MaxContentLength <= 0 {
		errs = append(errs, "max_content_length must be positive")
	}

	for scanType, override := range c.ScanTypeOverrides {
		if !override.Mode.IsValid() && override.Mode != "" {
			errs = append(errs, fmt.Sprintf("invalid mode for scan type %q: %q", scanType, override.Mode))
		}
	}

	for _, spec := range c.CustomPatterns {
		if strings.TrimSpace(spec.Name) == "" {
			errs = append(errs, "custom pattern with empty name")
			continue
		}
		if err := validateExpr(spec.Expr); err != nil {
			errs = append(errs, fmt.Sprintf("custom pattern %q: %v", spec.Name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetModeForScanType returns the enforcement mode for a specific scan
// type. Uses the override if configured, otherwise the default.
func (c *Config) GetModeForScanType(scanType ScanType) Mode {
	if override, ok := c.ScanTypeOverrides[scanType]; ok {
		if override.Mode != "" {
			return override.Mode
		}
	}
	return c.Mode
}

// IsScanTypeEnabled returns whether scanning is enabled for a specific
// scan type.
func (c *Config) IsScanTypeEnabled(scanType ScanType) bool {
	if override, ok := c.ScanTypeOverrides[scanType]; ok {
		return override.Enabled
	}
	return true // Enabled by default
}

// WithMode returns a copy of the config with the enforcement mode set.
func (c Config) WithMode(mode Mode) Config {
	c.Mode = mode
	return c
}

// WithEngine returns a copy of the config with the engine set.
func (c Config) WithEngine(engine Engine) Config {
	c.Engine = engine
	return c
}

// WithFailClosed returns a copy of the config with the analyzer-error
// policy set.
func (c Config) WithFailClosed(failClosed bool) Config {
	c.FailClosed = failClosed
	return c
}

// WithScanTypeOverride returns a copy of the config with a scan-type
// override added.
func (c Config) WithScanTypeOverride(scanType ScanType, override ScanTypeConfig) Config {
	// Deep copy the map to avoid modifying the original
	newOverrides := make(map[ScanType]ScanTypeConfig)
	for k, v := range c.ScanTypeOverrides {
		newOverrides[k] = v
	}
	newOverrides[scanType] = override
	c.ScanTypeOverrides = newOverrides
	return c
}

// WithCustomPattern returns a copy of the config with a custom
// pattern appended.
func (c Config) WithCustomPattern(spec CustomPatternSpec) Config {
	patterns := make([]CustomPatternSpec, len(c.CustomPatterns), len(c.CustomPatterns)+1)
	copy(patterns, c.CustomPatterns)
	c.CustomPatterns = append(patterns, spec)
	return c
}
