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
	"errors"
	"testing"
	"time"
)

func TestSinkError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SinkError
		want string
	}{
		{
			name: "without cause",
			err:  NewSinkError("audit_pg", "Write", "database not connected", nil),
			want: "audit_pg.Write: database not connected",
		},
		{
			name: "with cause",
			err:  NewSinkError("audit_pg", "Connect", "failed to ping database", errors.New("connection refused")),
			want: "audit_pg.Connect: failed to ping database (cause: connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSinkError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewSinkError("s", "Write", "failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var sinkErr *SinkError
	if !errors.As(error(err), &sinkErr) {
		t.Error("errors.As should match *SinkError")
	}
}

func TestNewSink(t *testing.T) {
	tests := []struct {
		sinkType string
		wantType string
		wantErr  bool
	}{
		{sinkType: "postgres", wantType: "sql"},
		{sinkType: "postgresql", wantType: "sql"},
		{sinkType: "mysql", wantType: "sql"},
		{sinkType: "cassandra", wantType: "cassandra"},
		{sinkType: "scylla", wantType: "cassandra"},
		{sinkType: "mongodb", wantType: "mongodb"},
		{sinkType: "MONGO", wantType: "mongodb"},
		{sinkType: "s3", wantType: "s3"},
		{sinkType: "azureblob", wantType: "azureblob"},
		{sinkType: "gcs", wantType: "gcs"},
		{sinkType: "file", wantType: "file"},
		{sinkType: "kafka", wantErr: true},
		{sinkType: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.sinkType, func(t *testing.T) {
			sink, err := NewSink(tt.sinkType)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewSink(%q) expected error, got %T", tt.sinkType, sink)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSink(%q) unexpected error: %v", tt.sinkType, err)
			}
			if got := sink.Type(); got != tt.wantType {
				t.Errorf("Type() = %q, want %q", got, tt.wantType)
			}
		})
	}
}

// fakeSink records calls for registry tests
type fakeSink struct {
	name       string
	writes     int
	closed     bool
	writeErr   error
	connectErr error
}

func (f *fakeSink) Connect(ctx context.Context, config *Config) error {
	f.name = config.Name
	return f.connectErr
}

func (f *fakeSink) Write(ctx context.Context, events []Event) error {
	f.writes++
	return f.writeErr
}

func (f *fakeSink) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: !f.closed, Timestamp: time.Now()}, nil
}

func (f *fakeSink) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeSink) Name() string { return f.name }
func (f *fakeSink) Type() string { return "fake" }

func TestRegistry_OpenAndGet(t *testing.T) {
	reg := NewRegistry()
	fake := &fakeSink{}
	reg.SetFactory(func(sinkType string) (Sink, error) {
		return fake, nil
	})

	sink, err := reg.Open(context.Background(), &Config{Name: "primary", Type: "fake"})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if sink != Sink(fake) {
		t.Error("Open() should return the factory-built sink")
	}

	got, ok := reg.Get("primary")
	if !ok {
		t.Fatal("Get() should find the registered sink")
	}
	if got.Name() != "primary" {
		t.Errorf("Name() = %q, want %q", got.Name(), "primary")
	}

	if names := reg.List(); len(names) != 1 || names[0] != "primary" {
		t.Errorf("List() = %v, want [primary]", names)
	}
}

func TestRegistry_OpenValidation(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Open(context.Background(), nil); err == nil {
		t.Error("Open(nil) should fail")
	}
	if _, err := reg.Open(context.Background(), &Config{Type: "file"}); err == nil {
		t.Error("Open() without a name should fail")
	}
	if _, err := reg.Open(context.Background(), &Config{Name: "x", Type: "nope"}); err == nil {
		t.Error("Open() with unknown type should fail")
	}
}

func TestRegistry_OpenConnectFailure(t *testing.T) {
	reg := NewRegistry()
	reg.SetFactory(func(sinkType string) (Sink, error) {
		return &fakeSink{connectErr: errors.New("refused")}, nil
	})

	if _, err := reg.Open(context.Background(), &Config{Name: "bad", Type: "fake"}); err == nil {
		t.Fatal("Open() should surface Connect errors")
	}
	if _, ok := reg.Get("bad"); ok {
		t.Error("failed sink must not be registered")
	}
}

func TestRegistry_OpenReplacesExisting(t *testing.T) {
	reg := NewRegistry()
	first := &fakeSink{}
	second := &fakeSink{}
	sinks := []*fakeSink{first, second}
	i := 0
	reg.SetFactory(func(sinkType string) (Sink, error) {
		s := sinks[i]
		i++
		return s, nil
	})

	cfg := &Config{Name: "audit", Type: "fake"}
	if _, err := reg.Open(context.Background(), cfg); err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	if _, err := reg.Open(context.Background(), cfg); err != nil {
		t.Fatalf("second Open() error: %v", err)
	}

	if !first.closed {
		t.Error("replaced sink should be closed")
	}
	got, _ := reg.Get("audit")
	if got != Sink(second) {
		t.Error("registry should hold the replacement sink")
	}
}

func TestRegistry_WriteAll(t *testing.T) {
	reg := NewRegistry()
	ok1 := &fakeSink{}
	failing := &fakeSink{writeErr: errors.New("disk full")}
	ok2 := &fakeSink{}
	all := []*fakeSink{ok1, failing, ok2}
	i := 0
	reg.SetFactory(func(sinkType string) (Sink, error) {
		s := all[i]
		i++
		return s, nil
	})

	for _, name := range []string{"a", "b", "c"} {
		if _, err := reg.Open(context.Background(), &Config{Name: name, Type: "fake"}); err != nil {
			t.Fatalf("Open(%s) error: %v", name, err)
		}
	}

	events := []Event{{ID: "evt-1", Verdict: "match"}}
	err := reg.WriteAll(context.Background(), events)
	if err == nil {
		t.Fatal("WriteAll() should report the failing sink")
	}

	// All sinks get the batch even when one fails
	for _, s := range all {
		if s.writes != 1 {
			t.Errorf("sink %q writes = %d, want 1", s.name, s.writes)
		}
	}
}

func TestRegistry_HealthCheckAndCloseAll(t *testing.T) {
	reg := NewRegistry()
	fakes := []*fakeSink{{}, {}}
	i := 0
	reg.SetFactory(func(sinkType string) (Sink, error) {
		s := fakes[i]
		i++
		return s, nil
	})

	for _, name := range []string{"one", "two"} {
		if _, err := reg.Open(context.Background(), &Config{Name: name, Type: "fake"}); err != nil {
			t.Fatalf("Open(%s) error: %v", name, err)
		}
	}

	health := reg.HealthCheck(context.Background())
	if len(health) != 2 {
		t.Fatalf("HealthCheck() returned %d entries, want 2", len(health))
	}
	for name, status := range health {
		if !status.Healthy {
			t.Errorf("sink %q should be healthy", name)
		}
	}

	if err := reg.CloseAll(context.Background()); err != nil {
		t.Fatalf("CloseAll() error: %v", err)
	}
	for _, f := range fakes {
		if !f.closed {
			t.Error("CloseAll() should close every sink")
		}
	}
	if names := reg.List(); len(names) != 0 {
		t.Errorf("List() after CloseAll = %v, want empty", names)
	}
}

func TestConfig_OptionGetters(t *testing.T) {
	cfg := &Config{
		Options: map[string]interface{}{
			"table":       "events",
			"max_open":    10,
			"max_idle":    int64(5),
			"sample_rate": 2.0,
			"create":      true,
		},
		Credentials: map[string]string{"username": "audit"},
	}

	if got := cfg.GetOption("table", "x"); got != "events" {
		t.Errorf("GetOption(table) = %q", got)
	}
	if got := cfg.GetOption("missing", "fallback"); got != "fallback" {
		t.Errorf("GetOption(missing) = %q", got)
	}
	if got := cfg.GetIntOption("max_open", 0); got != 10 {
		t.Errorf("GetIntOption(int) = %d", got)
	}
	if got := cfg.GetIntOption("max_idle", 0); got != 5 {
		t.Errorf("GetIntOption(int64) = %d", got)
	}
	if got := cfg.GetIntOption("sample_rate", 0); got != 2 {
		t.Errorf("GetIntOption(float64) = %d", got)
	}
	if got := cfg.GetIntOption("table", 7); got != 7 {
		t.Errorf("GetIntOption(wrong type) = %d, want default", got)
	}
	if !cfg.GetBoolOption("create", false) {
		t.Error("GetBoolOption(create) = false")
	}
	if cfg.GetBoolOption("missing", false) {
		t.Error("GetBoolOption(missing) should use default")
	}
	if got := cfg.GetCredential("username"); got != "audit" {
		t.Errorf("GetCredential(username) = %q", got)
	}
	if got := cfg.GetCredential("password"); got != "" {
		t.Errorf("GetCredential(password) = %q, want empty", got)
	}

	empty := &Config{}
	if got := empty.GetOption("k", "d"); got != "d" {
		t.Errorf("nil Options GetOption = %q", got)
	}
	if got := empty.GetCredential("k"); got != "" {
		t.Errorf("nil Credentials GetCredential = %q", got)
	}
}

func TestConfig_TimeoutOrDefault(t *testing.T) {
	if got := (&Config{}).timeoutOrDefault(); got != 5*time.Second {
		t.Errorf("default timeout = %v", got)
	}
	if got := (&Config{Timeout: time.Second}).timeoutOrDefault(); got != time.Second {
		t.Errorf("explicit timeout = %v", got)
	}
}
