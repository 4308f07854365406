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

package types

import (
	"os"
	"testing"
)

func TestDeploymentMode_String(t *testing.T) {
	tests := []struct {
		mode DeploymentMode
		want string
	}{
		{DeploymentModeHosted, "hosted"},
		{DeploymentModeSelfHosted, "selfhosted"},
		{DeploymentMode("custom"), "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.mode.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeploymentMode_IsValid(t *testing.T) {
	tests := []struct {
		mode  DeploymentMode
		valid bool
	}{
		{DeploymentModeHosted, true},
		{DeploymentModeSelfHosted, true},
		{DeploymentMode("invalid"), false},
		{DeploymentMode(""), false},
		{DeploymentMode("HOSTED"), false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestModeFromEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		set   bool
		want  DeploymentMode
	}{
		{name: "unset defaults to hosted", want: DeploymentModeHosted},
		{name: "true selects selfhosted", value: "true", set: true, want: DeploymentModeSelfHosted},
		{name: "false stays hosted", value: "false", set: true, want: DeploymentModeHosted},
		{name: "TRUE is not accepted", value: "TRUE", set: true, want: DeploymentModeHosted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("SELF_HOSTED_MODE")
			if tt.set {
				os.Setenv("SELF_HOSTED_MODE", tt.value)
				defer os.Unsetenv("SELF_HOSTED_MODE")
			}

			if got := ModeFromEnv(); got != tt.want {
				t.Errorf("ModeFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultHostedConfig(t *testing.T) {
	config := DefaultHostedConfig()

	if config.Mode != DeploymentModeHosted {
		t.Errorf("Mode = %v, want %v", config.Mode, DeploymentModeHosted)
	}
	if !config.TenantIsolation {
		t.Error("expected TenantIsolation to be true for hosted")
	}
	if !config.RequireLicenseKey {
		t.Error("expected RequireLicenseKey to be true for hosted")
	}
	if !config.SharedRateLimits {
		t.Error("expected SharedRateLimits to be true for hosted")
	}
}

func TestDefaultSelfHostedConfig(t *testing.T) {
	config := DefaultSelfHostedConfig()

	if config.Mode != DeploymentModeSelfHosted {
		t.Errorf("Mode = %v, want %v", config.Mode, DeploymentModeSelfHosted)
	}
	if config.TenantIsolation {
		t.Error("expected TenantIsolation to be false for selfhosted")
	}
	if config.RequireLicenseKey {
		t.Error("expected RequireLicenseKey to be false for selfhosted")
	}
	if config.SharedRateLimits {
		t.Error("expected SharedRateLimits to be false for selfhosted")
	}
}

func TestConfigFromEnv(t *testing.T) {
	os.Unsetenv("SELF_HOSTED_MODE")
	if config := ConfigFromEnv(); !config.IsHosted() {
		t.Errorf("expected hosted config by default, got %v", config.Mode)
	}

	os.Setenv("SELF_HOSTED_MODE", "true")
	defer os.Unsetenv("SELF_HOSTED_MODE")
	if config := ConfigFromEnv(); !config.IsSelfHosted() {
		t.Errorf("expected selfhosted config, got %v", config.Mode)
	}
}

func TestDeploymentConfig_ModeChecks(t *testing.T) {
	hosted := DefaultHostedConfig()
	if !hosted.IsHosted() {
		t.Error("expected IsHosted() to return true for hosted config")
	}
	if hosted.IsSelfHosted() {
		t.Error("expected IsSelfHosted() to return false for hosted config")
	}

	selfHosted := DefaultSelfHostedConfig()
	if selfHosted.IsHosted() {
		t.Error("expected IsHosted() to return false for selfhosted config")
	}
	if !selfHosted.IsSelfHosted() {
		t.Error("expected IsSelfHosted() to return true for selfhosted config")
	}
}

func TestDeploymentConfig_CustomMode(t *testing.T) {
	config := DeploymentConfig{
		Mode:            DeploymentMode("custom"),
		TenantIsolation: true,
	}

	if config.IsHosted() {
		t.Error("expected IsHosted() to return false for custom mode")
	}
	if config.IsSelfHosted() {
		t.Error("expected IsSelfHosted() to return false for custom mode")
	}
}

func TestDeploymentMode_Constants(t *testing.T) {
	// Ensure constants have expected values
	if DeploymentModeHosted != "hosted" {
		t.Errorf("DeploymentModeHosted = %v, want 'hosted'", DeploymentModeHosted)
	}
	if DeploymentModeSelfHosted != "selfhosted" {
		t.Errorf("DeploymentModeSelfHosted = %v, want 'selfhosted'", DeploymentModeSelfHosted)
	}
}
