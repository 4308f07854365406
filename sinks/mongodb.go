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
	"net/url"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoConnectTimeout = 10 * time.Second

// MongoSink writes detection events to a MongoDB collection
type MongoSink struct {
	config     *Config
	client     *mongo.Client
	collection *mongo.Collection
	logger     *log.Logger
}

// NewMongoSink creates a new MongoDB sink instance
func NewMongoSink() *MongoSink {
	return &MongoSink{
		logger: log.New(os.Stdout, "[SINK_MONGODB] ", log.LstdFlags),
	}
}

// Connect establishes a pooled connection to MongoDB
func (s *MongoSink) Connect(ctx context.Context, config *Config) error {
	s.config = config

	uri, database, err := mongoURI(config)
	if err != nil {
		return NewSinkError(config.Name, "Connect", "failed to build URI", err)
	}

	clientOpts := options.Client().ApplyURI(uri)
	clientOpts.SetMaxPoolSize(uint64(config.GetIntOption("max_pool_size", 10)))
	clientOpts.SetConnectTimeout(mongoConnectTimeout)
	clientOpts.SetAppName("InjectGuard-Audit-Sink")

	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return NewSinkError(config.Name, "Connect", "failed to connect to MongoDB", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return NewSinkError(config.Name, "Connect", "failed to ping MongoDB", err)
	}

	collection := config.GetOption("collection", defaultEventTable)

	s.client = client
	s.collection = client.Database(database).Collection(collection)
	s.logger.Printf("Connected to MongoDB: %s (database=%s, collection=%s)", config.Name, database, collection)

	return nil
}

// Write inserts the batch with a single InsertMany
func (s *MongoSink) Write(ctx context.Context, events []Event) error {
	if s.client == nil {
		return NewSinkError(s.Name(), "Write", "client not connected", nil)
	}
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.timeoutOrDefault())
	defer cancel()

	docs := make([]interface{}, 0, len(events))
	for i := range events {
		e := &events[i]
		docs = append(docs, bson.M{
			"_id":         e.ID,
			"occurred_at": e.Timestamp.UTC(),
			"tenant_id":   e.TenantID,
			"client_id":   e.ClientID,
			"verdict":     e.Verdict,
			"fingerprint": e.Fingerprint,
			"category":    e.Category,
			"severity":    e.Severity,
			"excerpt":     e.Excerpt,
			"metadata":    e.Metadata,
		})
	}

	// Unordered so one duplicate key does not sink the whole batch
	opts := options.InsertMany().SetOrdered(false)
	if _, err := s.collection.InsertMany(ctx, docs, opts); err != nil {
		return NewSinkError(s.Name(), "Write", fmt.Sprintf("failed to insert %d events", len(docs)), err)
	}

	return nil
}

// HealthCheck verifies the MongoDB connection is healthy
func (s *MongoSink) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if s.client == nil {
		return &HealthStatus{
			Healthy:   false,
			Error:     "client not connected",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	err := s.client.Ping(ctx, nil)
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
			"database":   s.collection.Database().Name(),
			"collection": s.collection.Name(),
		},
		Timestamp: time.Now(),
	}, nil
}

// Close disconnects from MongoDB
func (s *MongoSink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	s.collection = nil
	if err != nil {
		return NewSinkError(s.Name(), "Close", "failed to disconnect", err)
	}
	s.logger.Printf("Disconnected from MongoDB: %s", s.Name())
	return nil
}

// Name returns the sink instance name
func (s *MongoSink) Name() string {
	if s.config != nil && s.config.Name != "" {
		return s.config.Name
	}
	return "mongodb"
}

// Type returns the sink type
func (s *MongoSink) Type() string {
	return "mongodb"
}

// mongoURI resolves the connection URI and database name. The database
// comes from the URI path, overridable by the "database" option.
func mongoURI(config *Config) (string, string, error) {
	if config.URL == "" {
		return "", "", fmt.Errorf("connection URL is required")
	}

	u, err := url.Parse(config.URL)
	if err != nil {
		return "", "", fmt.Errorf("invalid MongoDB URL: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return "", "", fmt.Errorf("URL must start with mongodb:// or mongodb+srv://")
	}

	database := config.GetOption("database", strings.TrimPrefix(u.Path, "/"))
	if database == "" {
		return "", "", fmt.Errorf("database name is required (URL path or database option)")
	}

	// Inject credentials when the URL carries none
	if u.User == nil {
		if username := config.GetCredential("username"); username != "" {
			u.User = url.UserPassword(username, config.GetCredential("password"))
		}
	}

	return u.String(), database, nil
}

// Verify MongoSink implements Sink
var _ Sink = (*MongoSink)(nil)
