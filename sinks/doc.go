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

// Package sinks delivers detection events to external storage backends.
//
// A Sink receives batches of detection events from the agent's audit
// queue and persists them to a backend: relational databases (PostgreSQL,
// MySQL), wide-column stores (Cassandra/Scylla), document stores
// (MongoDB), object storage (S3, Azure Blob, GCS) or a local JSONL file.
//
// Sinks are created through the factory (NewSink) and managed by a
// Registry which tracks connected instances and aggregates health.
// Configuration comes either from code (Config) or from a YAML file
// loaded by ConfigLoader, with credentials optionally resolved through
// a SecretsManager.
//
// All sinks are safe for concurrent Write calls after Connect returns.
package sinks
