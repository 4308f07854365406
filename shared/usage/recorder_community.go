// Copyright 2025 InjectGuard
// SPDX-License-Identifier: BUSL-1.1

//go:build !enterprise

// This is the Community Edition stub - usage metering is an Enterprise
// feature. Upgrade at https://injectguard.dev/enterprise for:
//   - API call usage tracking and analytics
//   - Scan volume and cost tracking
//   - Usage-based billing support
//   - Usage dashboards and reporting

package usage

import "database/sql"

// NewRecorder creates a usage recorder.
// Community Edition: returns a no-op recorder.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{}
}

// RecordAPICall records an HTTP request event to the database.
// Community Edition: no-op implementation.
func (r *Recorder) RecordAPICall(event APICallEvent) error {
	return nil
}

// RecordScan records one payload scan with its per-scan cost.
// Community Edition: no-op implementation.
func (r *Recorder) RecordScan(event ScanEvent) error {
	return nil
}
