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
	"sync"
	"time"
)

// FileSink appends detection events to a local JSONL file. It is the
// default fallback target when no remote sink is reachable.
type FileSink struct {
	config *Config
	path   string
	file   *os.File
	mu     sync.Mutex
	logger *log.Logger
}

// NewFileSink creates a new file sink instance
func NewFileSink() *FileSink {
	return &FileSink{
		logger: log.New(os.Stdout, "[SINK_FILE] ", log.LstdFlags),
	}
}

// Connect opens (or creates) the target file in append mode.
// The path comes from the URL (file:///var/log/events.jsonl or a plain
// path) or the "path" option.
func (s *FileSink) Connect(ctx context.Context, config *Config) error {
	s.config = config

	path := config.GetOption("path", "")
	if path == "" {
		path = strings.TrimPrefix(config.URL, "file://")
	}
	if path == "" {
		return NewSinkError(config.Name, "Connect", "path option or file:// URL is required", nil)
	}

	// 0600: event excerpts may still carry attacker-controlled text
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return NewSinkError(config.Name, "Connect", fmt.Sprintf("failed to open %s", path), err)
	}

	s.path = path
	s.file = file
	s.logger.Printf("Opened event file: %s", path)

	return nil
}

// Write appends each event as one JSON line
func (s *FileSink) Write(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return NewSinkError(s.Name(), "Write", "file not open", nil)
	}

	for i := range events {
		data, err := json.Marshal(&events[i])
		if err != nil {
			return NewSinkError(s.Name(), "Write", fmt.Sprintf("failed to marshal event %s", events[i].ID), err)
		}
		if _, err := s.file.Write(append(data, '\n')); err != nil {
			return NewSinkError(s.Name(), "Write", "failed to append event", err)
		}
	}

	return nil
}

// HealthCheck verifies the file is still writable
func (s *FileSink) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return &HealthStatus{
			Healthy:   false,
			Error:     "file not open",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	info, err := s.file.Stat()
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
			"path":       s.path,
			"size_bytes": fmt.Sprintf("%d", info.Size()),
		},
		Timestamp: time.Now(),
	}, nil
}

// Close flushes and closes the file
func (s *FileSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return NewSinkError(s.Name(), "Close", "failed to close file", err)
	}
	return nil
}

// Name returns the sink instance name
func (s *FileSink) Name() string {
	if s.config != nil && s.config.Name != "" {
		return s.config.Name
	}
	return "file"
}

// Type returns the sink type
func (s *FileSink) Type() string {
	return "file"
}

// Verify FileSink implements Sink
var _ Sink = (*FileSink)(nil)
