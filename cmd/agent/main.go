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

// Package main is the entry point for the InjectGuard Agent service.
//
// The Agent is a payload scanning gateway that:
// - Detects SQL injection and markup payloads before they reach a backend
// - Authenticates clients via license keys and users via JWT
// - Enforces per-client rate limits
// - Delivers detection events to configured sinks with a durable fallback
//
// Usage:
//
//	./agent
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string for client auth
//	REDIS_URL - Redis URL for rate limiting and the verdict cache
//	JWT_SECRET - Secret for JWT token validation
//
// For more information, see https://docs.injectguard.dev
package main

import (
	"injectguard/platform/agent"
)

func main() {
	agent.Run()
}
