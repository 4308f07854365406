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
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSSink writes detection events to Google Cloud Storage as JSONL
// batch objects with date-partitioned names.
type GCSSink struct {
	config *Config
	client *storage.Client
	bucket string
	prefix string
	logger *log.Logger
}

// NewGCSSink creates a new GCS sink instance
func NewGCSSink() *GCSSink {
	return &GCSSink{
		logger: log.New(os.Stdout, "[SINK_GCS] ", log.LstdFlags),
	}
}

// Connect builds the GCS client and verifies bucket access
func (s *GCSSink) Connect(ctx context.Context, config *Config) error {
	s.config = config

	s.bucket = config.GetOption("bucket", "")
	if s.bucket == "" {
		return NewSinkError(config.Name, "Connect", "bucket option is required", nil)
	}
	s.prefix = config.GetOption("prefix", "detections")

	var opts []option.ClientOption

	// Explicit credentials, otherwise Application Default Credentials
	if credFile := config.GetCredential("credentials_file"); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	} else if credJSON := config.GetCredential("credentials_json"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	// Custom endpoint (useful for the emulator)
	if endpoint := config.GetOption("endpoint", ""); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return NewSinkError(config.Name, "Connect", "failed to create GCS client", err)
	}
	s.client = client

	checkCtx, cancel := context.WithTimeout(ctx, config.timeoutOrDefault())
	defer cancel()

	if _, err := s.client.Bucket(s.bucket).Attrs(checkCtx); err != nil {
		client.Close()
		s.client = nil
		return NewSinkError(config.Name, "Connect", "failed to verify bucket access", err)
	}

	s.logger.Printf("Connected to GCS (bucket: %s, prefix: %s)", s.bucket, s.prefix)

	return nil
}

// Write uploads the batch as one JSONL object
func (s *GCSSink) Write(ctx context.Context, events []Event) error {
	if s.client == nil {
		return NewSinkError(s.Name(), "Write", "GCS client not initialized", nil)
	}
	if len(events) == 0 {
		return nil
	}

	body, err := encodeJSONL(events)
	if err != nil {
		return NewSinkError(s.Name(), "Write", "failed to encode batch", err)
	}

	key := batchObjectKey(s.prefix, time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, s.config.timeoutOrDefault())
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"

	if _, err := w.Write(body); err != nil {
		w.Close()
		return NewSinkError(s.Name(), "Write", fmt.Sprintf("failed to write object: %s", key), err)
	}
	if err := w.Close(); err != nil {
		return NewSinkError(s.Name(), "Write", fmt.Sprintf("failed to finalize object: %s", key), err)
	}

	return nil
}

// HealthCheck verifies bucket access
func (s *GCSSink) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if s.client == nil {
		return &HealthStatus{
			Healthy:   false,
			Error:     "GCS client not initialized",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	latency := time.Since(start)

	if err != nil {
		return &HealthStatus{
			Healthy:   false,
			Error:     err.Error(),
			Latency:   latency,
			Timestamp: time.Now(),
		}, nil
	}

	return &HealthStatus{
		Healthy: true,
		Latency: latency,
		Details: map[string]string{
			"bucket": s.bucket,
			"prefix": s.prefix,
		},
		Timestamp: time.Now(),
	}, nil
}

// Close shuts down the GCS client
func (s *GCSSink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		return NewSinkError(s.Name(), "Close", "failed to close GCS client", err)
	}
	return nil
}

// Name returns the sink instance name
func (s *GCSSink) Name() string {
	if s.config != nil && s.config.Name != "" {
		return s.config.Name
	}
	return "gcs"
}

// Type returns the sink type
func (s *GCSSink) Type() string {
	return "gcs"
}

// Verify GCSSink implements Sink
var _ Sink = (*GCSSink)(nil)
