// Copyright 2025 InjectGuard
// SPDX-License-Identifier: BUSL-1.1

package usage

import "database/sql"

// Recorder persists usage events to the database.
// In Community builds, all methods are no-ops.
// In Enterprise builds, events are written to the usage_events table.
type Recorder struct {
	db *sql.DB
}

// APICallEvent represents one HTTP request to be recorded
type APICallEvent struct {
	TenantID       string
	ClientID       string // Optional: extracted from the license key
	InstanceID     string // Which agent instance processed this
	HTTPMethod     string
	HTTPPath       string
	HTTPStatusCode int
	LatencyMs      int64
}

// ScanEvent represents one payload scan to be recorded for
// volume-based billing
type ScanEvent struct {
	TenantID       string
	ClientID       string
	InstanceID     string
	LicenseTier    string // "PRO", "PLUS", "ENT", "Community"
	ScanType       string // "query", "body", "header", "param"
	Engine         string // "fingerprint", "heuristic"
	Verdict        string // "match", "no_match", "error"
	Blocked        bool
	InputBytes     int
	LatencyMs      int64
	HTTPStatusCode int
}
