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

// Package license provides license key validation for the InjectGuard Agent.
// V2 keys carry a signed JSON payload with the tenant, the service identity
// and the granted permissions. Keys that do not parse as V2 fall back to a
// Community result so self-hosted deployments work without any key at all.
package license

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Tier represents the license tier
type Tier string

const (
	TierProfessional   Tier = "PRO"
	TierEnterprise     Tier = "ENT"
	TierEnterprisePlus Tier = "PLUS"
	TierCommunity      Tier = "Community" // Community tier - unlimited usage
)

// defaultHMACSecret signs demo and test keys. Production deployments must
// override it via INJECTGUARD_LICENSE_SECRET.
const defaultHMACSecret = "injectguard-license-secret-2026-change-in-production"

// keyPrefix is the marker every V2 license key starts with.
const keyPrefix = "IGRD-V2-"

// signatureLen is the number of hex characters kept from the HMAC digest.
const signatureLen = 8

// ValidationResult contains the result of license validation
type ValidationResult struct {
	Valid           bool
	Tier            Tier
	OrgID           string
	ExpiresAt       time.Time
	DaysUntilExpiry int
	Error           string
	Message         string

	// Service identity fields (only for service licenses)
	ServiceName string   `json:"service_name,omitempty"`
	ServiceType string   `json:"service_type,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// ServiceLicensePayload represents the JSON payload in a V2 service license
type ServiceLicensePayload struct {
	Tier        string   `json:"tier"`
	TenantID    string   `json:"tenant_id"`
	ServiceName string   `json:"service_name,omitempty"`
	ServiceType string   `json:"service_type,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	ExpiresAt   string   `json:"expires_at"` // Format: YYYYMMDD
}

// signingSecret returns the HMAC secret, preferring the environment override.
func signingSecret() []byte {
	if s := os.Getenv("INJECTGUARD_LICENSE_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte(defaultHMACSecret)
}

// ValidateHMACSecretAtStartup warns when the default signing secret is still
// in use. Deployments that only validate keys (never generate them) can run
// with the default, so this is not fatal.
func ValidateHMACSecretAtStartup() error {
	if os.Getenv("INJECTGUARD_LICENSE_SECRET") == "" {
		return fmt.Errorf("INJECTGUARD_LICENSE_SECRET not set, using built-in default secret")
	}
	return nil
}

// ValidateLicense validates an InjectGuard license key.
// V2 keys are parsed and signature-checked; anything else (including keys
// whose signature does not verify) yields a Community result. Detection
// itself never requires a license - the tier only gates rate limits and
// tenant isolation in the hosted product.
func ValidateLicense(ctx context.Context, licenseKey string) (*ValidationResult, error) {
	if strings.HasPrefix(licenseKey, keyPrefix) {
		result, err := parseV2License(licenseKey)
		if err == nil && result != nil {
			return result, nil
		}
		// Unparseable V2 keys fall through to the Community result
	}

	return &ValidationResult{
		Valid:           true,
		Tier:            TierCommunity,
		OrgID:           "community",
		ExpiresAt:       time.Now().AddDate(100, 0, 0),
		DaysUntilExpiry: 36500,
		Message:         "Community mode - no license required",
	}, nil
}

// parseV2License parses a V2 license key and extracts its metadata.
// Format: IGRD-V2-{BASE64URL_JSON}-{SIGNATURE}. The base64url alphabet
// includes '-', so the payload is everything between the prefix and the
// final dash-separated signature.
func parseV2License(licenseKey string) (*ValidationResult, error) {
	body := strings.TrimPrefix(licenseKey, keyPrefix)
	sep := strings.LastIndex(body, "-")
	if sep <= 0 || sep == len(body)-1 {
		return nil, nil // Not a valid V2 format
	}

	payloadBase64 := body[:sep]
	signature := body[sep+1:]

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadBase64)
	if err != nil {
		return nil, err
	}

	var payload ServiceLicensePayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, err
	}

	tier := Tier(payload.Tier)
	if tier != TierProfessional && tier != TierEnterprise && tier != TierEnterprisePlus {
		tier = TierCommunity // Default to Community for unknown tiers
	}

	// Parse expiry date (format: YYYYMMDD)
	expiry, err := time.Parse("20060102", payload.ExpiresAt)
	if err != nil {
		expiry = time.Now().AddDate(100, 0, 0)
	}

	if !verifyV2Signature(payloadBase64, signature) {
		return nil, nil // Invalid signature, caller falls back to Community
	}

	now := time.Now()
	daysUntilExpiry := int(expiry.Sub(now).Hours() / 24)

	valid := true
	message := "V2 license valid"
	errMsg := ""
	if now.After(expiry) {
		valid = false
		message = "V2 license expired"
		errMsg = fmt.Sprintf("license expired on %s", expiry.Format("2006-01-02"))
	}

	return &ValidationResult{
		Valid:           valid,
		Tier:            tier,
		OrgID:           payload.TenantID,
		ExpiresAt:       expiry,
		DaysUntilExpiry: daysUntilExpiry,
		Error:           errMsg,
		Message:         message,
		ServiceName:     payload.ServiceName,
		ServiceType:     payload.ServiceType,
		Permissions:     payload.Permissions,
	}, nil
}

// verifyV2Signature verifies the HMAC-SHA256 signature of a V2 license payload
func verifyV2Signature(payloadBase64, providedSignature string) bool {
	h := hmac.New(sha256.New, signingSecret())
	h.Write([]byte(payloadBase64))
	calculatedHash := hex.EncodeToString(h.Sum(nil))
	calculatedSignature := calculatedHash[:signatureLen]
	return hmac.Equal([]byte(calculatedSignature), []byte(providedSignature))
}

// ValidateWithRetry validates a license with automatic retry on transient
// failures. Validation is local (no network), so the only retryable case is
// a context already cancelled by the caller.
func ValidateWithRetry(ctx context.Context, licenseKey string, maxAttempts int) (*ValidationResult, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := ValidateLicense(ctx, licenseKey)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// GenerateServiceLicenseKey builds a signed V2 service license key. Used by
// the key issuance tooling and by tests that need real keys.
func GenerateServiceLicenseKey(tier Tier, tenantID, serviceName, serviceType string, permissions []string, expiryDays int) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenant_id is required")
	}
	if expiryDays <= 0 {
		return "", fmt.Errorf("expiry_days must be positive")
	}

	payload := ServiceLicensePayload{
		Tier:        string(tier),
		TenantID:    tenantID,
		ServiceName: serviceName,
		ServiceType: serviceType,
		Permissions: permissions,
		ExpiresAt:   time.Now().AddDate(0, 0, expiryDays).Format("20060102"),
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal license payload: %w", err)
	}

	payloadBase64 := base64.RawURLEncoding.EncodeToString(payloadJSON)

	h := hmac.New(sha256.New, signingSecret())
	h.Write([]byte(payloadBase64))
	signature := hex.EncodeToString(h.Sum(nil))[:signatureLen]

	return keyPrefix + payloadBase64 + "-" + signature, nil
}
