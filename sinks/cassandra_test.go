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
	"reflect"
	"testing"

	"github.com/gocql/gocql"
)

func TestParseCassandraURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		wantHosts    []string
		wantKeyspace string
		wantErr      bool
	}{
		{
			name:         "single host with port",
			url:          "cassandra://cassandra-1:9042/injectguard",
			wantHosts:    []string{"cassandra-1:9042"},
			wantKeyspace: "injectguard",
		},
		{
			name:         "multiple hosts",
			url:          "cassandra://node1,node2,node3:9042/audit",
			wantHosts:    []string{"node1", "node2", "node3:9042"},
			wantKeyspace: "audit",
		},
		{
			name:    "missing keyspace",
			url:     "cassandra://host:9042",
			wantErr: true,
		},
		{
			name:    "empty keyspace",
			url:     "cassandra://host:9042/",
			wantErr: true,
		},
		{
			name:    "wrong scheme",
			url:     "postgres://host/db",
			wantErr: true,
		},
		{
			name:    "empty URL",
			url:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hosts, keyspace, err := parseCassandraURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseCassandraURL(%q) expected error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCassandraURL(%q) error: %v", tt.url, err)
			}
			if !reflect.DeepEqual(hosts, tt.wantHosts) {
				t.Errorf("hosts = %v, want %v", hosts, tt.wantHosts)
			}
			if keyspace != tt.wantKeyspace {
				t.Errorf("keyspace = %q, want %q", keyspace, tt.wantKeyspace)
			}
		})
	}
}

func TestParseConsistency(t *testing.T) {
	tests := []struct {
		level string
		want  gocql.Consistency
	}{
		{"ANY", gocql.Any},
		{"ONE", gocql.One},
		{"TWO", gocql.Two},
		{"THREE", gocql.Three},
		{"QUORUM", gocql.Quorum},
		{"quorum", gocql.Quorum},
		{"ALL", gocql.All},
		{"LOCAL_QUORUM", gocql.LocalQuorum},
		{"EACH_QUORUM", gocql.EachQuorum},
		{"LOCAL_ONE", gocql.LocalOne},
		{"bogus", gocql.Quorum},
		{"", gocql.Quorum},
	}

	for _, tt := range tests {
		if got := parseConsistency(tt.level); got != tt.want {
			t.Errorf("parseConsistency(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestCassandraSink_WriteNotConnected(t *testing.T) {
	sink := NewCassandraSink()
	if err := sink.Write(context.Background(), []Event{{ID: "x"}}); err == nil {
		t.Fatal("Write() before Connect should fail")
	}
}

func TestCassandraSink_HealthCheckNotConnected(t *testing.T) {
	sink := NewCassandraSink()
	status, err := sink.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}
	if status.Healthy {
		t.Error("unconnected sink must report unhealthy")
	}
}

func TestCassandraSink_NameAndType(t *testing.T) {
	sink := NewCassandraSink()
	if got := sink.Name(); got != "cassandra" {
		t.Errorf("Name() without config = %q", got)
	}
	if got := sink.Type(); got != "cassandra" {
		t.Errorf("Type() = %q", got)
	}

	sink.config = &Config{Name: "audit_scylla"}
	if got := sink.Name(); got != "audit_scylla" {
		t.Errorf("Name() with config = %q", got)
	}
}

func TestCassandraSink_CloseIdempotent(t *testing.T) {
	sink := NewCassandraSink()
	if err := sink.Close(context.Background()); err != nil {
		t.Errorf("Close() on unconnected sink should be nil, got %v", err)
	}
}
