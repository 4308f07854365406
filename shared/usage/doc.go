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
Package usage provides usage metering and billing support for InjectGuard.

# Overview

The usage package records usage events to PostgreSQL for billing and
analytics. It supports two types of usage events:

  - API calls: HTTP request metrics for request-based billing
  - Scans: payload scan volume and cost tracking for scan-based billing

Metering is an Enterprise feature. Community builds compile a no-op
recorder, so call sites stay identical across editions.

# Usage Recording

Create a recorder with a database connection:

	recorder := usage.NewRecorder(db)

Record API calls:

	err := recorder.RecordAPICall(usage.APICallEvent{
	    TenantID:       "tenant-123",
	    ClientID:       "client-456",
	    InstanceID:     "agent-001",
	    HTTPMethod:     "POST",
	    HTTPPath:       "/api/scan",
	    HTTPStatusCode: 200,
	    LatencyMs:      4,
	})

Record scans with automatic cost calculation:

	err := recorder.RecordScan(usage.ScanEvent{
	    TenantID:    "tenant-123",
	    ClientID:    "client-456",
	    InstanceID:  "agent-001",
	    LicenseTier: "PLUS",
	    ScanType:    "query",
	    Engine:      "fingerprint",
	    Verdict:     "match",
	    Blocked:     true,
	    InputBytes:  64,
	    LatencyMs:   2,
	})

# Cost Calculation

Scan costs are calculated from the tier rate table in pricing.go:

	costMillicents := usage.CalculateScanCost("PLUS", scans)

Rates are stored in millicents per scan (100,000 millicents = $1.00).
Each tier includes a monthly scan volume; the included volume is netted
out by the billing aggregation job, not per event.

# Database Schema

Events are stored in the usage_events table with columns for:
  - Tenant and client identification
  - Event type (api_call or scan)
  - Instance ID and license tier
  - HTTP metrics (method, path, status, latency)
  - Scan metrics (scan type, engine, verdict, blocked, input bytes, cost)

# Thread Safety

Recorder is safe for concurrent use. Recording methods can be called
from multiple goroutines simultaneously.

# Best Practices

Record usage asynchronously to avoid blocking request processing:

	go func() {
	    if err := recorder.RecordScan(event); err != nil {
	        log.Printf("Failed to record usage: %v", err)
	    }
	}()
*/
package usage
