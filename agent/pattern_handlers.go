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

package agent

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"injectguard/platform/agent/detect"
)

var patternAPIRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "injectguard_pattern_api_requests_total",
		Help: "Total number of pattern API requests",
	},
	[]string{"status"},
)

func init() {
	// Ignore errors - duplicate registration is OK
	_ = prometheus.Register(patternAPIRequests)
}

// PatternTestRequest asks the agent to vet a custom pattern before it
// ships in a detection config file. Inputs are optional sample values
// to run the pattern against.
type PatternTestRequest struct {
	ClientID string   `json:"client_id"`
	Pattern  string   `json:"pattern"`
	Inputs   []string `json:"inputs,omitempty"`
}

// PatternTestResponse carries the safety-gate verdict and, when sample
// inputs were supplied, the per-input match results.
type PatternTestResponse struct {
	RequestID  string                    `json:"request_id"`
	Validation *detect.PatternValidation `json:"validation"`
	Trial      *detect.PatternTrial      `json:"trial,omitempty"`
	DurationMs int64                     `json:"duration_ms"`
}

// handlePatternTest handles POST /api/patterns/test
// Runs a candidate custom pattern through the safety gate and, when
// sample inputs are supplied, reports how it matches each one. This is
// a diagnostic surface for tuning deployment-specific signatures; the
// same gate rejects unsafe expressions at config load.
func handlePatternTest(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req PatternTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [PatternAPI] Invalid request body: %v", err)
		patternAPIRequests.WithLabelValues("error").Inc()
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ClientID == "" {
		log.Printf("❌ [PatternAPI] Missing required field: client_id")
		patternAPIRequests.WithLabelValues("error").Inc()
		sendErrorResponse(w, "client_id field is required", http.StatusBadRequest)
		return
	}

	if req.Pattern == "" {
		log.Printf("❌ [PatternAPI] Missing required field: pattern")
		patternAPIRequests.WithLabelValues("error").Inc()
		sendErrorResponse(w, "pattern field is required", http.StatusBadRequest)
		return
	}

	client, err := authenticateScanClient(r, req.ClientID)
	if err != nil {
		log.Printf("❌ [PatternAPI] Client validation failed: %v", err)
		patternAPIRequests.WithLabelValues("auth_failed").Inc()
		sendErrorResponse(w, "Authentication failed: "+err.Error(), http.StatusUnauthorized)
		return
	}

	// Pattern tuning rides on the diagnostic permission.
	if !clientHasPermission(client, "fingerprint") {
		log.Printf("❌ [PatternAPI] Client %s lacks 'fingerprint' permission", client.ID)
		patternAPIRequests.WithLabelValues("auth_failed").Inc()
		sendErrorResponse(w, "Client lacks 'fingerprint' permission", http.StatusForbidden)
		return
	}

	validation := detect.ValidatePattern(req.Pattern)

	response := PatternTestResponse{
		RequestID:  uuid.New().String(),
		Validation: validation,
	}

	if validation.Valid && len(req.Inputs) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		response.Trial = detect.TryPattern(ctx, req.Pattern, req.Inputs)
	}

	response.DurationMs = time.Since(startTime).Milliseconds()

	patternAPIRequests.WithLabelValues("success").Inc()
	log.Printf("✅ [PatternAPI] Completed in %dms - valid=%v, inputs=%d",
		response.DurationMs, validation.Valid, len(req.Inputs))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("❌ [PatternAPI] Failed to encode response: %v", err)
	}
}
