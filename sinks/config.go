// Copyright 2025 InjectGuard
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sinks

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFile represents the root structure of a sink configuration file
type ConfigFile struct {
	Version string                    `yaml:"version"`
	Sinks   map[string]SinkFileConfig `yaml:"sinks,omitempty"`
}

// SinkFileConfig represents one sink entry in the config file
type SinkFileConfig struct {
	Type        string                 `yaml:"type"`
	Enabled     bool                   `yaml:"enabled"`
	DisplayName string                 `yaml:"display_name,omitempty"`
	URL         string                 `yaml:"url,omitempty"`
	SecretRef   string                 `yaml:"secret_ref,omitempty"`
	Credentials map[string]string      `yaml:"credentials,omitempty"`
	Options     map[string]interface{} `yaml:"options,omitempty"`
	TimeoutMs   int                    `yaml:"timeout_ms,omitempty"`
	MaxRetries  int                    `yaml:"max_retries,omitempty"`
}

// ConfigLoader loads sink configurations from a YAML file.
// Environment variables in the file are expanded before parsing, and
// secret_ref entries are resolved through an optional SecretsManager.
type ConfigLoader struct {
	filePath string
	secrets  SecretsManager
	config   *ConfigFile
}

// NewConfigLoader creates a loader and parses the file once.
// secrets may be nil when no entry uses secret_ref.
func NewConfigLoader(filePath string, secrets SecretsManager) (*ConfigLoader, error) {
	loader := &ConfigLoader{
		filePath: filePath,
		secrets:  secrets,
	}

	if err := loader.reload(); err != nil {
		return nil, err
	}

	return loader, nil
}

// reload reads and parses the configuration file
func (l *ConfigLoader) reload() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.filePath, err)
	}

	expanded := expandEnvVars(string(data))

	var config ConfigFile
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := ValidateConfigFile(&config); err != nil {
		return err
	}

	l.config = &config
	return nil
}

// Reload re-reads the configuration file
func (l *ConfigLoader) Reload() error {
	return l.reload()
}

// Sinks returns configs for all enabled sinks, with secret references
// resolved into credentials. Resolved values fill in missing keys only;
// values written in the file win.
func (l *ConfigLoader) Sinks(ctx context.Context) ([]*Config, error) {
	if l.config == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	var configs []*Config

	for name, fileConfig := range l.config.Sinks {
		if !fileConfig.Enabled {
			continue
		}

		timeout := time.Duration(fileConfig.TimeoutMs) * time.Millisecond
		if timeout == 0 {
			timeout = 5 * time.Second
		}

		maxRetries := fileConfig.MaxRetries
		if maxRetries == 0 {
			maxRetries = 3
		}

		options := fileConfig.Options
		if options == nil {
			options = make(map[string]interface{})
		}

		credentials := make(map[string]string, len(fileConfig.Credentials))
		for k, v := range fileConfig.Credentials {
			credentials[k] = v
		}

		if fileConfig.SecretRef != "" {
			if l.secrets == nil {
				return nil, fmt.Errorf("sink %q uses secret_ref but no secrets manager is configured", name)
			}
			resolved, err := l.secrets.GetSecret(ctx, fileConfig.SecretRef)
			if err != nil {
				return nil, fmt.Errorf("sink %q: failed to resolve secret_ref: %w", name, err)
			}
			for k, v := range resolved {
				if _, exists := credentials[k]; !exists {
					credentials[k] = v
				}
			}
		}

		configs = append(configs, &Config{
			Name:        name,
			Type:        fileConfig.Type,
			URL:         fileConfig.URL,
			Credentials: credentials,
			Options:     options,
			Timeout:     timeout,
			MaxRetries:  maxRetries,
		})
	}

	return configs, nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, $VAR_NAME and ${VAR_NAME:-default} syntax.
// Undefined variables expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		// Handle default values: ${VAR_NAME:-default}
		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultVal
	})
}

// validSinkTypes lists the types the default factory can build
var validSinkTypes = map[string]bool{
	"postgres":   true,
	"postgresql": true,
	"mysql":      true,
	"cassandra":  true,
	"scylla":     true,
	"mongodb":    true,
	"mongo":      true,
	"s3":         true,
	"azureblob":  true,
	"azure":      true,
	"gcs":        true,
	"file":       true,
}

// ValidateConfigFile validates the structure of a config file
func ValidateConfigFile(config *ConfigFile) error {
	if config.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}

	for name, sink := range config.Sinks {
		if sink.Type == "" {
			return fmt.Errorf("sink '%s' must specify a type", name)
		}
		if !validSinkTypes[strings.ToLower(sink.Type)] {
			return fmt.Errorf("sink '%s' has invalid type '%s'", name, sink.Type)
		}
	}

	return nil
}

// GenerateExampleConfigFile generates an example configuration file
func GenerateExampleConfigFile() string {
	return `# InjectGuard sink configuration
# Detection events are delivered to every enabled sink.
# Environment variables can be referenced using ${VAR_NAME} or ${VAR_NAME:-default} syntax.

version: "1.0"

sinks:
  # PostgreSQL audit store
  audit_postgres:
    type: postgres
    enabled: true
    display_name: "Audit Database"
    url: ${AUDIT_DATABASE_URL}
    options:
      table: detection_events
      create_table: true
      max_open_conns: 10
    timeout_ms: 5000
    max_retries: 3

  # S3 archive (works with MinIO via the endpoint option)
  archive_s3:
    type: s3
    enabled: false
    display_name: "S3 Archive"
    secret_ref: ${AUDIT_S3_SECRET_ARN}
    options:
      bucket: ${AUDIT_S3_BUCKET:-injectguard-events}
      prefix: detections
      region: ${AWS_REGION:-us-east-1}
    timeout_ms: 10000

  # Local fallback, always on
  fallback_file:
    type: file
    enabled: true
    options:
      path: ${AUDIT_FALLBACK_PATH:-/var/log/injectguard/events.jsonl}
`
}
