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

/*
Package types provides shared type definitions used across InjectGuard
components.

# Overview

This package contains common types that are shared between the Agent,
the dashboard, and deployment tooling. It provides a single source of
truth for shared data structures.

# Deployment Modes

InjectGuard supports two deployment modes, configured via DeploymentConfig:

Hosted Mode (central agent):
  - Client license keys validated on every scan request
  - Strict tenant isolation for verdict caching and user tokens
  - Redis-backed rate limits shared across agent instances

Self-Hosted Mode (Community):
  - No license validation (SELF_HOSTED_MODE=true)
  - Single tenant
  - In-memory rate limiting

# Usage

Determine deployment mode and configure features:

	config := types.ConfigFromEnv()

	if config.RequireLicenseKey {
	    // Reject scan calls without X-License-Key
	}

	if config.SharedRateLimits {
	    // Track rate limit windows in Redis
	}

# Thread Safety

All types in this package are value types and are safe for concurrent use.
*/
package types
