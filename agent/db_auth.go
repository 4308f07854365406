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

package agent

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lib/pq"

	"injectguard/platform/agent/license"
)

// ============================================================
// Database-Backed Authentication
// ============================================================
//
// When DATABASE_URL is configured, clients are registered in the
// registered_clients table instead of the in-memory whitelist. Keys are
// looked up by SHA-256 hash so the index never exposes plaintext keys.

// RegisteredClient represents a client row from the database
type RegisteredClient struct {
	ClientID    string
	Name        string
	LicenseKey  string
	TenantID    string
	Permissions []string
	RateLimit   int
	Enabled     bool
	RevokedAt   *time.Time
	LastUsedAt  *time.Time
}

// validateClientLicenseDB validates a client using database lookup.
// Same contract as validateClientLicense, different backing store.
func validateClientLicenseDB(ctx context.Context, db *sql.DB, clientID, licenseKey string) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID required")
	}

	if licenseKey == "" {
		return nil, fmt.Errorf("license key required")
	}

	// Hash the license key for lookup
	hash := sha256.Sum256([]byte(licenseKey))
	licenseKeyHash := hex.EncodeToString(hash[:])

	query := `
		SELECT
			client_id,
			name,
			license_key,
			tenant_id,
			permissions,
			rate_limit,
			enabled,
			revoked_at
		FROM registered_clients
		WHERE license_key_hash = $1
		AND client_id = $2
	`

	var reg RegisteredClient
	var revokedAt sql.NullTime

	err := db.QueryRowContext(ctx, query, licenseKeyHash, clientID).Scan(
		&reg.ClientID,
		&reg.Name,
		&reg.LicenseKey,
		&reg.TenantID,
		pq.Array(&reg.Permissions),
		&reg.RateLimit,
		&reg.Enabled,
		&revokedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invalid license key or client not found")
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	// The hash index narrowed the row; confirm against the stored plaintext
	// to rule out a hash collision ever authenticating the wrong key.
	if reg.LicenseKey != licenseKey {
		return nil, fmt.Errorf("license key mismatch")
	}

	if !reg.Enabled {
		return nil, fmt.Errorf("client '%s' is disabled", clientID)
	}

	if revokedAt.Valid {
		return nil, fmt.Errorf("license key has been revoked")
	}

	validationResult, err := license.ValidateLicense(ctx, licenseKey)
	if err != nil {
		return nil, fmt.Errorf("license validation failed: %w", err)
	}

	if !validationResult.Valid {
		return nil, fmt.Errorf("license invalid or expired: %s", validationResult.Error)
	}

	if err := checkRateLimitRedis(ctx, clientID, reg.RateLimit); err != nil {
		return nil, err
	}

	// Update last_used_at asynchronously (fire and forget)
	go updateClientLastUsed(context.Background(), db, reg.ClientID)

	return &Client{
		ID:            reg.ClientID,
		Name:          reg.Name,
		OrgID:         validationResult.OrgID,
		TenantID:      reg.TenantID,
		Permissions:   reg.Permissions,
		RateLimit:     reg.RateLimit,
		Enabled:       true,
		LicenseTier:   string(validationResult.Tier),
		LicenseExpiry: validationResult.ExpiresAt,
	}, nil
}

// updateClientLastUsed updates the last_used_at timestamp for a client
func updateClientLastUsed(ctx context.Context, db *sql.DB, clientID string) {
	query := `
		UPDATE registered_clients
		SET last_used_at = NOW(),
		    total_requests = total_requests + 1
		WHERE client_id = $1
	`

	if _, err := db.ExecContext(ctx, query, clientID); err != nil {
		// Log-and-continue: usage bookkeeping must never fail a scan
		fmt.Printf("Warning: Failed to update last_used_at for client %s: %v\n", clientID, err)
	}
}

// registerClientDB inserts a new client registration, generating a signed
// license key for it. Returns the plaintext key exactly once; only the
// hash plus the stored copy live in the table afterwards.
func registerClientDB(ctx context.Context, db *sql.DB, clientID, name, tenantID string, permissions []string, rateLimit int, tier license.Tier, expiryDays int) (string, error) {
	if clientID == "" || tenantID == "" {
		return "", fmt.Errorf("client_id and tenant_id are required")
	}
	if rateLimit <= 0 {
		rateLimit = 100
	}

	licenseKey, err := license.GenerateServiceLicenseKey(tier, tenantID, clientID, "client-application", permissions, expiryDays)
	if err != nil {
		return "", fmt.Errorf("failed to generate license key: %w", err)
	}

	hash := sha256.Sum256([]byte(licenseKey))
	licenseKeyHash := hex.EncodeToString(hash[:])

	query := `
		INSERT INTO registered_clients (
			client_id,
			name,
			license_key,
			license_key_hash,
			tenant_id,
			permissions,
			rate_limit,
			enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, true)
	`

	if _, err := db.ExecContext(ctx, query,
		clientID, name, licenseKey, licenseKeyHash, tenantID,
		pq.Array(permissions), rateLimit,
	); err != nil {
		return "", fmt.Errorf("failed to register client: %w", err)
	}

	return licenseKey, nil
}

// revokeClientDB revokes a client registration
func revokeClientDB(ctx context.Context, db *sql.DB, clientID, reason string) error {
	query := `
		UPDATE registered_clients
		SET enabled = false,
		    revoked_at = NOW(),
		    revoke_reason = $2
		WHERE client_id = $1
	`

	result, err := db.ExecContext(ctx, query, clientID, reason)
	if err != nil {
		return fmt.Errorf("failed to revoke client: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revocation: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("client not found")
	}

	return nil
}

// listClientsDB returns all registered clients with their keys masked.
func listClientsDB(ctx context.Context, db *sql.DB) ([]Client, error) {
	query := `
		SELECT client_id, name, tenant_id, permissions, rate_limit, enabled
		FROM registered_clients
		ORDER BY client_id
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.TenantID, pq.Array(&c.Permissions), &c.RateLimit, &c.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		clients = append(clients, c)
	}

	return clients, rows.Err()
}
