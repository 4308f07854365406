// Copyright 2025 InjectGuard
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
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
	"strings"
	"time"

	"github.com/gocql/gocql" // Cassandra/Scylla driver
)

// CassandraSink writes detection events to Apache Cassandra / ScyllaDB
type CassandraSink struct {
	config  *Config
	cluster *gocql.ClusterConfig
	session *gocql.Session
	table   string
	insert  string
	logger  *log.Logger
}

// NewCassandraSink creates a new Cassandra sink instance
func NewCassandraSink() *CassandraSink {
	return &CassandraSink{
		logger: log.New(os.Stdout, "[SINK_CASSANDRA] ", log.LstdFlags),
	}
}

// Connect establishes a session with the Cassandra cluster
func (s *CassandraSink) Connect(ctx context.Context, config *Config) error {
	s.config = config

	// Parse connection URL (format: cassandra://host1,host2:port/keyspace)
	hosts, keyspace, err := parseCassandraURL(config.URL)
	if err != nil {
		return NewSinkError(config.Name, "Connect", "invalid connection URL", err)
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace

	consistency := config.GetOption("consistency", "QUORUM")
	cluster.Consistency = parseConsistency(consistency)

	if config.Timeout > 0 {
		cluster.Timeout = config.Timeout
	} else {
		cluster.Timeout = 5 * time.Second
	}

	// Set credentials if provided
	if username := config.GetCredential("username"); username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: username,
			Password: config.GetCredential("password"),
		}
	}

	cluster.NumConns = config.GetIntOption("num_conns", 2)

	session, err := cluster.CreateSession()
	if err != nil {
		return NewSinkError(config.Name, "Connect", "failed to create session", err)
	}

	s.cluster = cluster
	s.session = session
	s.table = config.GetOption("table", defaultEventTable)
	s.insert = fmt.Sprintf(
		"INSERT INTO %s (id, occurred_at, tenant_id, client_id, verdict, fingerprint, category, severity, excerpt, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table,
	)

	s.logger.Printf("Connected to Cassandra: %s (keyspace=%s, consistency=%s)", config.Name, keyspace, consistency)

	return nil
}

// Write inserts each event of the batch. Metadata is stored as a JSON
// text column so the table needs no UDT.
func (s *CassandraSink) Write(ctx context.Context, events []Event) error {
	if s.session == nil {
		return NewSinkError(s.Name(), "Write", "session not connected", nil)
	}

	for i := range events {
		e := &events[i]
		metadata, merr := json.Marshal(e.Metadata)
		if merr != nil {
			metadata = []byte("{}")
		}
		err := s.session.Query(s.insert,
			e.ID, e.Timestamp.UTC(), e.TenantID, e.ClientID,
			e.Verdict, e.Fingerprint, e.Category, e.Severity,
			e.Excerpt, string(metadata),
		).WithContext(ctx).Exec()
		if err != nil {
			return NewSinkError(s.Name(), "Write", fmt.Sprintf("failed to insert event %s", e.ID), err)
		}
	}

	return nil
}

// HealthCheck verifies the Cassandra session is healthy
func (s *CassandraSink) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if s.session == nil {
		return &HealthStatus{
			Healthy:   false,
			Error:     "session not connected",
			Timestamp: time.Now(),
		}, nil
	}

	// Execute simple query to test connection
	start := time.Now()
	var releaseVersion string
	err := s.session.Query("SELECT release_version FROM system.local").WithContext(ctx).Scan(&releaseVersion)
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
			"release_version": releaseVersion,
			"keyspace":        s.cluster.Keyspace,
			"table":           s.table,
		},
		Timestamp: time.Now(),
	}, nil
}

// Close shuts down the Cassandra session
func (s *CassandraSink) Close(ctx context.Context) error {
	if s.session == nil {
		return nil
	}
	s.session.Close()
	s.session = nil
	s.logger.Printf("Disconnected from Cassandra: %s", s.Name())
	return nil
}

// Name returns the sink instance name
func (s *CassandraSink) Name() string {
	if s.config != nil && s.config.Name != "" {
		return s.config.Name
	}
	return "cassandra"
}

// Type returns the sink type
func (s *CassandraSink) Type() string {
	return "cassandra"
}

// parseCassandraURL extracts hosts and keyspace from a connection URL
// of the form cassandra://host1,host2:9042/keyspace
func parseCassandraURL(rawURL string) ([]string, string, error) {
	if rawURL == "" {
		return nil, "", fmt.Errorf("connection URL is required")
	}

	trimmed := strings.TrimPrefix(rawURL, "cassandra://")
	if trimmed == rawURL {
		return nil, "", fmt.Errorf("URL must start with cassandra://")
	}

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, "", fmt.Errorf("URL must include a keyspace: cassandra://host:port/keyspace")
	}

	hosts := strings.Split(parts[0], ",")
	if len(hosts) == 0 || hosts[0] == "" {
		return nil, "", fmt.Errorf("URL must include at least one host")
	}

	return hosts, parts[1], nil
}

// parseConsistency maps a consistency level name to the gocql constant
func parseConsistency(level string) gocql.Consistency {
	switch strings.ToUpper(level) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.Quorum
	}
}

// Verify CassandraSink implements Sink
var _ Sink = (*CassandraSink)(nil)
