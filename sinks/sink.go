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
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Sink defines the interface every detection-event backend must implement.
type Sink interface {
	// Lifecycle Management
	Connect(ctx context.Context, config *Config) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)
	Close(ctx context.Context) error

	// Write persists a batch of events. Implementations must be safe
	// for concurrent calls once Connect has returned.
	Write(ctx context.Context, events []Event) error

	// Metadata
	Name() string // Unique sink instance name
	Type() string // Sink type (postgres, cassandra, s3, file)
}

// Config holds the configuration for a sink instance
type Config struct {
	Name        string                 `json:"name"`        // Unique name for this sink
	Type        string                 `json:"type"`        // Type: postgres, mysql, cassandra, mongodb, s3, azureblob, gcs, file
	URL         string                 `json:"url"`         // Connection string (DSN)
	Credentials map[string]string      `json:"credentials"` // Username, password, access keys
	Options     map[string]interface{} `json:"options"`     // Sink-specific options
	Timeout     time.Duration          `json:"timeout"`     // Operation timeout (default: 5s)
	MaxRetries  int                    `json:"max_retries"` // Retry count for transient failures
}

// Event is one detection outcome on its way to durable storage.
// The excerpt is pre-masked by the caller; sinks never see raw payloads.
type Event struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	TenantID    string                 `json:"tenant_id,omitempty"`
	ClientID    string                 `json:"client_id,omitempty"`
	Verdict     string                 `json:"verdict"`
	Fingerprint string                 `json:"fingerprint,omitempty"`
	Category    string                 `json:"category,omitempty"`
	Severity    string                 `json:"severity"`
	Excerpt     string                 `json:"excerpt,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthStatus represents the health of a sink
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`   // Overall health status
	Latency   time.Duration     `json:"latency"`   // Backend round-trip latency
	Details   map[string]string `json:"details"`   // Additional diagnostic info
	Timestamp time.Time         `json:"timestamp"` // When health check was performed
	Error     string            `json:"error"`     // Error message if unhealthy
}

// SinkError represents errors specific to sink operations
type SinkError struct {
	SinkName  string
	Operation string
	Message   string
	Cause     error
}

func (e *SinkError) Error() string {
	if e.Cause != nil {
		return e.SinkName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.SinkName + "." + e.Operation + ": " + e.Message
}

func (e *SinkError) Unwrap() error {
	return e.Cause
}

// NewSinkError creates a new SinkError
func NewSinkError(sinkName, operation, message string, cause error) *SinkError {
	return &SinkError{
		SinkName:  sinkName,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// Factory creates an unconnected sink instance for a type
type Factory func(sinkType string) (Sink, error)

// NewSink is the default factory. It returns an unconnected sink for
// the given type; the caller is responsible for calling Connect.
func NewSink(sinkType string) (Sink, error) {
	switch strings.ToLower(sinkType) {
	case "postgres", "postgresql", "mysql":
		return NewSQLSink(), nil
	case "cassandra", "scylla":
		return NewCassandraSink(), nil
	case "mongodb", "mongo":
		return NewMongoSink(), nil
	case "s3":
		return NewS3Sink(), nil
	case "azureblob", "azure":
		return NewAzureBlobSink(), nil
	case "gcs":
		return NewGCSSink(), nil
	case "file":
		return NewFileSink(), nil
	default:
		return nil, fmt.Errorf("unknown sink type: %s", sinkType)
	}
}

// Registry manages connected sink instances.
// Thread-safe for concurrent access.
type Registry struct {
	sinks   map[string]Sink
	configs map[string]*Config
	factory Factory
	mu      sync.RWMutex
	logger  *log.Logger
}

// NewRegistry creates a sink registry backed by the default factory
func NewRegistry() *Registry {
	return &Registry{
		sinks:   make(map[string]Sink),
		configs: make(map[string]*Config),
		factory: NewSink,
		logger:  log.New(os.Stdout, "[SINK_REGISTRY] ", log.LstdFlags),
	}
}

// SetFactory overrides the sink factory (used by tests to inject fakes)
func (r *Registry) SetFactory(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = factory
}

// Open builds a sink for config.Type, connects it, and registers it
// under config.Name. An existing sink with the same name is closed and
// replaced.
func (r *Registry) Open(ctx context.Context, config *Config) (Sink, error) {
	if config == nil {
		return nil, fmt.Errorf("nil sink config")
	}
	if config.Name == "" {
		return nil, fmt.Errorf("sink config missing name")
	}

	r.mu.RLock()
	factory := r.factory
	old := r.sinks[config.Name]
	r.mu.RUnlock()

	sink, err := factory(config.Type)
	if err != nil {
		return nil, err
	}

	if err := sink.Connect(ctx, config); err != nil {
		return nil, err
	}

	if old != nil {
		if cerr := old.Close(ctx); cerr != nil {
			r.logger.Printf("Warning: error closing replaced sink %s: %v", config.Name, cerr)
		}
	}

	r.mu.Lock()
	r.sinks[config.Name] = sink
	r.configs[config.Name] = config
	r.mu.Unlock()

	r.logger.Printf("Registered sink: %s (type: %s)", config.Name, config.Type)
	return sink, nil
}

// Get returns a registered sink by name
func (r *Registry) Get(name string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[name]
	return sink, ok
}

// List returns the names of all registered sinks
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	return names
}

// WriteAll fans a batch out to every registered sink. It keeps going
// after individual failures and returns the first error encountered so
// the caller can count the batch as failed.
func (r *Registry) WriteAll(ctx context.Context, events []Event) error {
	r.mu.RLock()
	targets := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, s := range targets {
		if err := s.Write(ctx, events); err != nil {
			r.logger.Printf("Sink %s write failed: %v", s.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// HealthCheck runs health checks on all registered sinks
func (r *Registry) HealthCheck(ctx context.Context) map[string]*HealthStatus {
	r.mu.RLock()
	targets := make(map[string]Sink, len(r.sinks))
	for name, s := range r.sinks {
		targets[name] = s
	}
	r.mu.RUnlock()

	results := make(map[string]*HealthStatus, len(targets))
	for name, s := range targets {
		status, err := s.HealthCheck(ctx)
		if err != nil {
			status = &HealthStatus{
				Healthy:   false,
				Error:     err.Error(),
				Timestamp: time.Now(),
			}
		}
		results[name] = status
	}
	return results
}

// CloseAll closes every registered sink and empties the registry
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	targets := r.sinks
	r.sinks = make(map[string]Sink)
	r.configs = make(map[string]*Config)
	r.mu.Unlock()

	var firstErr error
	for name, s := range targets {
		if err := s.Close(ctx); err != nil {
			r.logger.Printf("Error closing sink %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// GetOption reads a string option with a default
func (c *Config) GetOption(key, defaultValue string) string {
	if c.Options == nil {
		return defaultValue
	}
	if v, ok := c.Options[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

// GetIntOption reads an integer option with a default
func (c *Config) GetIntOption(key string, defaultValue int) int {
	if c.Options == nil {
		return defaultValue
	}
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultValue
}

// GetBoolOption reads a boolean option with a default
func (c *Config) GetBoolOption(key string, defaultValue bool) bool {
	if c.Options == nil {
		return defaultValue
	}
	if v, ok := c.Options[key].(bool); ok {
		return v
	}
	return defaultValue
}

// GetCredential reads a credential value, empty string when absent
func (c *Config) GetCredential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// timeoutOrDefault returns the configured timeout or 5s
func (c *Config) timeoutOrDefault() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 5 * time.Second
}
