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

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel is the severity of a log entry. The values are the literal
// strings emitted in the JSON, so they are part of the log-pipeline
// contract, not just display text.
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger writes JSON-line log entries attributed to one agent component.
// Every line carries the client and request that caused it, so a single
// agent's interleaved scan traffic can be pulled apart downstream.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry is the wire shape of one log line.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	ClientID   string                 `json:"client_id"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New returns a Logger for the named component. Instance identity comes
// from the INSTANCE_ID environment variable set at deploy time; the
// container name is the hostname. Both degrade to "unknown" rather than
// failing, since a logger that cannot be constructed helps nobody.
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}
	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}
	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log emits one entry at the given level. Fields may be nil. Output goes
// through the standard log package to stdout; the container runtime owns
// shipping it anywhere else.
func (l *Logger) Log(level LogLevel, clientID, requestID, message string, fields map[string]interface{}) {
	line, err := json.Marshal(LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		ClientID:   clientID,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	})
	if err != nil {
		// An unmarshalable field value must not swallow the line silently
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}
	log.Println(string(line))
}

// Info logs at INFO level.
func (l *Logger) Info(clientID, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, clientID, requestID, message, fields)
}

// Error logs at ERROR level.
func (l *Logger) Error(clientID, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, clientID, requestID, message, fields)
}

// Warn logs at WARN level.
func (l *Logger) Warn(clientID, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, clientID, requestID, message, fields)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(clientID, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, clientID, requestID, message, fields)
}

// InfoWithDuration logs an INFO entry carrying a duration_ms field, the
// shape the scan-latency dashboards key on.
func (l *Logger) InfoWithDuration(clientID, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(clientID, requestID, message, fields)
}

// ErrorWithCode logs an ERROR entry carrying the HTTP status returned to
// the client and, when present, the underlying error text.
func (l *Logger) ErrorWithCode(clientID, requestID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(clientID, requestID, message, fields)
}
