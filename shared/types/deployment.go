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

// Package types provides shared type definitions used across InjectGuard
// components. This file defines deployment mode configuration for hosted
// vs self-hosted deployments.
package types

import "os"

// DeploymentMode represents the deployment type
type DeploymentMode string

const (
	// DeploymentModeHosted is for central agents that validate client
	// license keys during request processing
	DeploymentModeHosted DeploymentMode = "hosted"
	// DeploymentModeSelfHosted is for single-tenant Community
	// deployments with no license validation
	DeploymentModeSelfHosted DeploymentMode = "selfhosted"
)

// String returns the string representation of the DeploymentMode
func (m DeploymentMode) String() string {
	return string(m)
}

// IsValid returns true if the DeploymentMode is a valid known value
func (m DeploymentMode) IsValid() bool {
	switch m {
	case DeploymentModeHosted, DeploymentModeSelfHosted:
		return true
	default:
		return false
	}
}

// IsHosted returns true for central agent deployments
func (m DeploymentMode) IsHosted() bool {
	return m == DeploymentModeHosted
}

// IsSelfHosted returns true for Community deployments
func (m DeploymentMode) IsSelfHosted() bool {
	return m == DeploymentModeSelfHosted
}

// ModeFromEnv resolves the deployment mode from SELF_HOSTED_MODE.
// Hosted is the default: a central agent validates client license keys
// on every scan request.
func ModeFromEnv() DeploymentMode {
	if os.Getenv("SELF_HOSTED_MODE") == "true" {
		return DeploymentModeSelfHosted
	}
	return DeploymentModeHosted
}

// DeploymentConfig contains deployment-specific settings that control
// authentication and data isolation behavior based on deployment type.
//
// Hosted deployments enforce strict tenant isolation and require a
// license key on every scan call. Self-hosted deployments run single
// tenant with no license checks.
type DeploymentConfig struct {
	// Mode is the deployment type (hosted or selfhosted)
	Mode DeploymentMode `json:"mode"`

	// TenantIsolation scopes verdict cache keys and user tokens to the
	// client's tenant
	TenantIsolation bool `json:"tenant_isolation"`

	// RequireLicenseKey makes the X-License-Key header mandatory on
	// scan and fingerprint calls
	RequireLicenseKey bool `json:"require_license_key"`

	// SharedRateLimits tracks rate limit windows in Redis so limits
	// hold across agent instances
	SharedRateLimits bool `json:"shared_rate_limits"`
}

// DefaultHostedConfig returns the default configuration for central
// agent deployments. Hosted mode enforces tenant isolation and requires
// client license keys.
func DefaultHostedConfig() DeploymentConfig {
	return DeploymentConfig{
		Mode:              DeploymentModeHosted,
		TenantIsolation:   true,
		RequireLicenseKey: true,
		SharedRateLimits:  true,
	}
}

// DefaultSelfHostedConfig returns the default configuration for
// Community deployments. Self-hosted mode runs single tenant with
// in-memory rate limiting.
func DefaultSelfHostedConfig() DeploymentConfig {
	return DeploymentConfig{
		Mode:              DeploymentModeSelfHosted,
		TenantIsolation:   false,
		RequireLicenseKey: false,
		SharedRateLimits:  false,
	}
}

// ConfigFromEnv returns the default configuration for the deployment
// mode resolved from the environment
func ConfigFromEnv() DeploymentConfig {
	if ModeFromEnv().IsSelfHosted() {
		return DefaultSelfHostedConfig()
	}
	return DefaultHostedConfig()
}

// IsHosted returns true if this is a central agent deployment
func (c DeploymentConfig) IsHosted() bool {
	return c.Mode == DeploymentModeHosted
}

// IsSelfHosted returns true if this is a Community deployment
func (c DeploymentConfig) IsSelfHosted() bool {
	return c.Mode == DeploymentModeSelfHosted
}
