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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

// postPatternTest sends one request to handlePatternTest and returns
// the recorder.
func postPatternTest(t *testing.T, reqBody PatternTestRequest) *httptest.ResponseRecorder {
	t.Helper()

	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest("POST", "/api/patterns/test", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(handlePatternTest)
	handler.ServeHTTP(rr, req)
	return rr
}

// TestPatternTestHandler_InvalidJSON tests rejection of malformed bodies
func TestPatternTestHandler_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/patterns/test", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(handlePatternTest)
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

// TestPatternTestHandler_MissingFields tests required field validation
func TestPatternTestHandler_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		reqBody PatternTestRequest
		wantErr string
	}{
		{
			name:    "missing client_id",
			reqBody: PatternTestRequest{Pattern: `\btest\b`},
			wantErr: "client_id field is required",
		},
		{
			name:    "missing pattern",
			reqBody: PatternTestRequest{ClientID: "test-client"},
			wantErr: "pattern field is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postPatternTest(t, tt.reqBody)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rr.Code)
			}

			var resp map[string]interface{}
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp["error"] != tt.wantErr {
				t.Errorf("Expected error %q, got %v", tt.wantErr, resp["error"])
			}
		})
	}
}

// TestPatternTestHandler_AuthRequired tests that hosted mode demands a
// license key
func TestPatternTestHandler_AuthRequired(t *testing.T) {
	os.Unsetenv("SELF_HOSTED_MODE")

	rr := postPatternTest(t, PatternTestRequest{
		ClientID: "webapp-demo",
		Pattern:  `\btest\b`,
	})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	errMsg, _ := resp["error"].(string)
	if !strings.Contains(errMsg, "X-License-Key header required") {
		t.Errorf("Expected license key error, got %v", resp["error"])
	}
}

// TestPatternTestHandler_PermissionDenied tests that scan-only clients
// cannot use the pattern surface
func TestPatternTestHandler_PermissionDenied(t *testing.T) {
	os.Unsetenv("SELF_HOSTED_MODE")

	// Fresh rate limit window; client validation counts a request
	rateLimitMu.Lock()
	rateLimitMap = make(map[string]*RateLimitEntry)
	rateLimitMu.Unlock()

	oldRedis := redisClient
	redisClient = nil
	defer func() { redisClient = oldRedis }()

	// client_1 holds only the "scan" permission
	body, _ := json.Marshal(PatternTestRequest{
		ClientID: "client_1",
		Pattern:  `\btest\b`,
	})

	req := httptest.NewRequest("POST", "/api/patterns/test", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-License-Key", knownClients["client_1"].LicenseKey)

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(handlePatternTest)
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["error"] != "Client lacks 'fingerprint' permission" {
		t.Errorf("Expected permission error, got %v", resp["error"])
	}
}

// TestPatternTestHandler_ValidationOnly tests vetting a pattern with no
// sample inputs
func TestPatternTestHandler_ValidationOnly(t *testing.T) {
	os.Setenv("SELF_HOSTED_MODE", "true")
	defer os.Unsetenv("SELF_HOSTED_MODE")

	rr := postPatternTest(t, PatternTestRequest{
		ClientID: "test-client",
		Pattern:  `(?i)\bunion\s+select\b`,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp PatternTestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.RequestID == "" {
		t.Error("Expected a generated request ID")
	}
	if resp.Validation == nil || !resp.Validation.Valid {
		t.Fatalf("Expected a valid validation result, got %+v", resp.Validation)
	}
	if resp.Trial != nil {
		t.Errorf("Expected no trial without inputs, got %+v", resp.Trial)
	}
}

// TestPatternTestHandler_WithSamples tests running a pattern against
// sample inputs
func TestPatternTestHandler_WithSamples(t *testing.T) {
	os.Setenv("SELF_HOSTED_MODE", "true")
	defer os.Unsetenv("SELF_HOSTED_MODE")

	rr := postPatternTest(t, PatternTestRequest{
		ClientID: "test-client",
		Pattern:  `(\w+)=(\w+)`,
		Inputs:   []string{"user=admin", "no pairs here"},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp PatternTestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.Trial == nil {
		t.Fatal("Expected a trial result with inputs supplied")
	}
	if len(resp.Trial.Matches) != 2 {
		t.Fatalf("Expected 2 trial matches, got %d", len(resp.Trial.Matches))
	}
	first := resp.Trial.Matches[0]
	if !first.Matched {
		t.Error("Expected first sample to match")
	}
	if len(first.Groups) != 2 || first.Groups[0] != "user" || first.Groups[1] != "admin" {
		t.Errorf("Expected groups [user admin], got %v", first.Groups)
	}
	if resp.Trial.Matches[1].Matched {
		t.Error("Expected second sample not to match")
	}
}

// TestPatternTestHandler_InvalidPattern tests that a broken expression
// returns its validation failure rather than an HTTP error
func TestPatternTestHandler_InvalidPattern(t *testing.T) {
	os.Setenv("SELF_HOSTED_MODE", "true")
	defer os.Unsetenv("SELF_HOSTED_MODE")

	rr := postPatternTest(t, PatternTestRequest{
		ClientID: "test-client",
		Pattern:  `[invalid`,
		Inputs:   []string{"test"},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp PatternTestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.Validation == nil || resp.Validation.Valid {
		t.Fatalf("Expected an invalid validation result, got %+v", resp.Validation)
	}
	if !strings.Contains(resp.Validation.Error, "invalid RE2 syntax") {
		t.Errorf("Expected RE2 syntax error, got %q", resp.Validation.Error)
	}
	if resp.Trial != nil {
		t.Errorf("Expected no trial for an invalid pattern, got %+v", resp.Trial)
	}
}

// TestPatternTestHandler_NestedQuantifierWarns tests that the gate's
// rejection reasons surface as warnings on the tuning endpoint
func TestPatternTestHandler_NestedQuantifierWarns(t *testing.T) {
	os.Setenv("SELF_HOSTED_MODE", "true")
	defer os.Unsetenv("SELF_HOSTED_MODE")

	rr := postPatternTest(t, PatternTestRequest{
		ClientID: "test-client",
		Pattern:  `(.*)+`,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp PatternTestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.Validation == nil || !resp.Validation.Valid {
		t.Fatalf("Expected a valid result with warning, got %+v", resp.Validation)
	}
	if !strings.Contains(resp.Validation.Warning, "nested quantifiers") {
		t.Errorf("Expected nested quantifier warning, got %q", resp.Validation.Warning)
	}
}
