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

//go:build enterprise

package usage

import (
	"database/sql"
	"log"
)

// NewRecorder creates a usage recorder with a database connection
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// RecordAPICall records an HTTP request event to the database.
// Errors are logged but callers should not block responses on them.
func (r *Recorder) RecordAPICall(event APICallEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO usage_events (
			tenant_id, client_id, event_type, instance_id,
			http_method, http_path, http_status_code, latency_ms
		) VALUES ($1, $2, 'api_call', $3, $4, $5, $6, $7)
	`, event.TenantID, nullString(event.ClientID), event.InstanceID,
		event.HTTPMethod, event.HTTPPath, event.HTTPStatusCode,
		event.LatencyMs)

	if err != nil {
		log.Printf("[USAGE] Failed to record API call: %v", err)
	}

	return err
}

// RecordScan records one payload scan with its per-scan cost.
// Errors are logged but callers should not block responses on them.
func (r *Recorder) RecordScan(event ScanEvent) error {
	costMillicents := CalculateScanCost(event.LicenseTier, 1)

	_, err := r.db.Exec(`
		INSERT INTO usage_events (
			tenant_id, client_id, event_type, instance_id, license_tier,
			scan_type, engine, verdict, blocked, input_bytes,
			estimated_cost_millicents, latency_ms, http_status_code
		) VALUES ($1, $2, 'scan', $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, event.TenantID, nullString(event.ClientID), event.InstanceID,
		event.LicenseTier, event.ScanType, event.Engine, event.Verdict,
		event.Blocked, event.InputBytes, costMillicents, event.LatencyMs,
		event.HTTPStatusCode)

	if err != nil {
		log.Printf("[USAGE] Failed to record scan: %v", err)
	}

	return err
}

// nullString converts an empty string to NULL for database insertion
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
