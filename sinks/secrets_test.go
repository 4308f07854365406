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

package sinks

import (
	"context"
	"testing"
)

func TestLocalSecretsManager(t *testing.T) {
	sm := NewLocalSecretsManager()

	if _, err := sm.GetSecret(context.Background(), "missing"); err == nil {
		t.Error("GetSecret() for unknown ref should fail")
	}

	sm.SetSecret("audit-db", map[string]string{
		"username": "writer",
		"password": "s3cret",
	})

	creds, err := sm.GetSecret(context.Background(), "audit-db")
	if err != nil {
		t.Fatalf("GetSecret() error: %v", err)
	}
	if creds["username"] != "writer" || creds["password"] != "s3cret" {
		t.Errorf("unexpected credentials: %v", creds)
	}
}

func TestEnvSecretsManager(t *testing.T) {
	t.Setenv("AUDIT_PG_USERNAME", "writer")
	t.Setenv("AUDIT_PG_PASSWORD", "s3cret")
	t.Setenv("AUDIT_PG_ACCESS_KEY_ID", "AKIA123")

	sm := NewEnvSecretsManager(nil)

	creds, err := sm.GetSecret(context.Background(), "AUDIT_PG")
	if err != nil {
		t.Fatalf("GetSecret() error: %v", err)
	}

	want := map[string]string{
		"username":      "writer",
		"password":      "s3cret",
		"access_key_id": "AKIA123",
	}
	for k, v := range want {
		if creds[k] != v {
			t.Errorf("creds[%q] = %q, want %q", k, creds[k], v)
		}
	}

	if _, err := sm.GetSecret(context.Background(), "TOTALLY_UNSET_PREFIX"); err == nil {
		t.Error("GetSecret() with no matching env vars should fail")
	}
}

func TestEnvFieldToKey(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"USERNAME", "username"},
		{"PASSWORD", "password"},
		{"ACCESS_KEY_ID", "access_key_id"},
		{"SECRET_ACCESS_KEY", "secret_access_key"},
		{"SESSION_TOKEN", "session_token"},
		{"ACCOUNT_KEY", "account_key"},
		{"CONNECTION_STRING", "connection_string"},
		{"CREDENTIALS_FILE", "credentials_file"},
		{"CREDENTIALS_JSON", "credentials_json"},
		{"TOKEN", "token"},
		{"SOMETHING_ELSE", "SOMETHING_ELSE"},
	}

	for _, tt := range tests {
		if got := envFieldToKey(tt.field); got != tt.want {
			t.Errorf("envFieldToKey(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}

func TestMaskSecretRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"short", "***"},
		{"exactly12chr", "***"},
		{"arn:aws:secretsmanager:us-east-1:123:secret:audit-db", "...audit-db"},
	}

	for _, tt := range tests {
		if got := maskSecretRef(tt.ref); got != tt.want {
			t.Errorf("maskSecretRef(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestNewSecretsManagerFromEnv(t *testing.T) {
	t.Setenv("SINK_SECRETS_PROVIDER", "local")
	sm, err := NewSecretsManagerFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewSecretsManagerFromEnv(local) error: %v", err)
	}
	if _, ok := sm.(*LocalSecretsManager); !ok {
		t.Errorf("provider local built %T", sm)
	}

	t.Setenv("SINK_SECRETS_PROVIDER", "")
	sm, err = NewSecretsManagerFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewSecretsManagerFromEnv(default) error: %v", err)
	}
	if _, ok := sm.(*EnvSecretsManager); !ok {
		t.Errorf("default provider built %T", sm)
	}
}
