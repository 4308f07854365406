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
Command agent runs the InjectGuard Agent service.

The Agent scans request payloads for SQL injection and markup injection
before they reach a backend, handling client authentication, rate
limiting, and detection-event delivery along the way.

# Usage

	agent [flags]

# Environment Variables

Optional:
  - PORT: HTTP server port (default: 8080)
  - SELF_HOSTED_MODE: "true" skips license validation (Community mode)
  - INJECTGUARD_LICENSE_KEY: License key for hosted deployments
  - DATABASE_URL: PostgreSQL connection string for registered clients
  - REDIS_URL: Redis URL for rate limiting and the verdict cache
  - JWT_SECRET: Secret for JWT token validation
  - DETECT_MODE: "off", "monitor", or "enforce" (default: monitor)
  - DETECT_ENGINE: "fingerprint", "heuristic", or "noop" (default: fingerprint)
  - SINK_CONFIG_FILE: YAML sink configuration file
  - AUDIT_MODE: "compliance" or "performance" (default: performance)

Without DATABASE_URL the Agent authenticates against the built-in client
whitelist. Without REDIS_URL rate limiting is in-memory and the verdict
cache is disabled.

# Example

	export SELF_HOSTED_MODE=true
	export DETECT_MODE=enforce
	./agent
*/
package main
