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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves a secret reference into credential key-value
// pairs that are merged into a sink Config.
type SecretsManager interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS_MANAGER] ", log.LstdFlags)
	}

	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret retrieves a secret from AWS Secrets Manager.
// The secret value is expected to be a JSON object with string values;
// a bare string is returned under the "value" key.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[ref]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskSecretRef(ref))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskSecretRef(ref), err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskSecretRef(ref))
	}

	var credentials map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &credentials); err != nil {
		// Single-value secret (e.g. just an API key)
		credentials = map[string]string{
			"value": *result.SecretString,
		}
	}

	s.mu.Lock()
	s.cache[ref] = &secretCacheEntry{
		value:     credentials,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return credentials, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(ref string) {
	s.mu.Lock()
	delete(s.cache, ref)
	s.mu.Unlock()
}

// InvalidateAll clears the entire secret cache
func (s *AWSSecretsManager) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string]*secretCacheEntry)
	s.mu.Unlock()
}

// maskSecretRef masks the secret reference for logging (shows only last 8 characters)
func maskSecretRef(ref string) string {
	if len(ref) <= 12 {
		return "***"
	}
	return "..." + ref[len(ref)-8:]
}

// EnvSecretsManager implements SecretsManager using environment variables.
// The ref is used as an environment variable name prefix.
type EnvSecretsManager struct {
	logger *log.Logger
}

// NewEnvSecretsManager creates a secrets manager that reads from environment variables
func NewEnvSecretsManager(logger *log.Logger) *EnvSecretsManager {
	if logger == nil {
		logger = log.New(os.Stdout, "[ENV_SECRETS] ", log.LstdFlags)
	}
	return &EnvSecretsManager{logger: logger}
}

// GetSecret retrieves credentials from environment variables.
// The ref is an env var prefix: "AUDIT_PG" looks for AUDIT_PG_USERNAME,
// AUDIT_PG_PASSWORD and so on.
func (s *EnvSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	fields := []string{
		"USERNAME", "PASSWORD", "ACCESS_KEY_ID", "SECRET_ACCESS_KEY",
		"SESSION_TOKEN", "ACCOUNT_KEY", "CONNECTION_STRING",
		"CREDENTIALS_FILE", "CREDENTIALS_JSON", "TOKEN",
	}

	credentials := make(map[string]string)
	for _, field := range fields {
		if value := os.Getenv(ref + "_" + field); value != "" {
			credentials[envFieldToKey(field)] = value
		}
	}

	if len(credentials) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", ref)
	}

	s.logger.Printf("Loaded %d credentials from environment for %s", len(credentials), ref)
	return credentials, nil
}

// envFieldToKey converts an environment variable field name to a credential key
func envFieldToKey(field string) string {
	switch field {
	case "USERNAME":
		return "username"
	case "PASSWORD":
		return "password"
	case "ACCESS_KEY_ID":
		return "access_key_id"
	case "SECRET_ACCESS_KEY":
		return "secret_access_key"
	case "SESSION_TOKEN":
		return "session_token"
	case "ACCOUNT_KEY":
		return "account_key"
	case "CONNECTION_STRING":
		return "connection_string"
	case "CREDENTIALS_FILE":
		return "credentials_file"
	case "CREDENTIALS_JSON":
		return "credentials_json"
	case "TOKEN":
		return "token"
	default:
		return field
	}
}

// LocalSecretsManager implements SecretsManager with an in-memory map.
// Useful for tests and development without AWS Secrets Manager.
type LocalSecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
}

// NewLocalSecretsManager creates a local secrets manager for development
func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{
		secrets: make(map[string]map[string]string),
	}
}

// GetSecret retrieves a secret from local storage
func (s *LocalSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if secret, exists := s.secrets[ref]; exists {
		return secret, nil
	}

	return nil, fmt.Errorf("secret %s not found in local secrets manager", ref)
}

// SetSecret stores a secret locally (for testing/development)
func (s *LocalSecretsManager) SetSecret(ref string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = value
}

// NewSecretsManagerFromEnv picks a SecretsManager implementation from
// the SINK_SECRETS_PROVIDER environment variable: "aws", "env" or
// "local". Defaults to env.
func NewSecretsManagerFromEnv(ctx context.Context) (SecretsManager, error) {
	switch os.Getenv("SINK_SECRETS_PROVIDER") {
	case "aws":
		return NewAWSSecretsManager(ctx, AWSSecretsManagerOptions{
			Region: os.Getenv("AWS_REGION"),
		})
	case "local":
		return NewLocalSecretsManager(), nil
	default:
		return NewEnvSecretsManager(nil), nil
	}
}
