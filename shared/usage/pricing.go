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

package usage

import "fmt"

// Scan volume pricing as of August 2026
// Rates stored in millicents per scan to avoid floating point issues
// (100,000 millicents = $1.00). All prices are USD.

// TierPricing contains pricing for a license tier
type TierPricing struct {
	ScanCostMillicents int // millicents per scan past the included volume
	IncludedScans      int // scans included per month
}

// tierPricing maps license tiers to pricing. Included volume is netted
// out at aggregation time, not per event.
var tierPricing = map[string]TierPricing{
	"PRO":  {100, 50000},   // $1.00 per 1K overage scans
	"PLUS": {60, 250000},   // $0.60 per 1K overage scans
	"ENT":  {25, 2000000},  // $0.25 per 1K overage scans

	// Community deployments are unmetered
	"Community": {0, 0},

	// Default fallback pricing (conservative estimate)
	"default": {100, 0},
}

// CalculateScanCost calculates the cost in millicents for a number of
// scans at a tier's rate. Returns an integer to avoid floating point
// precision issues.
func CalculateScanCost(tier string, scans int) int {
	pricing, ok := tierPricing[tier]
	if !ok {
		pricing = tierPricing["default"]
	}

	return scans * pricing.ScanCostMillicents
}

// GetTierPricing returns the pricing for a license tier.
// This is useful for displaying pricing information to users.
func GetTierPricing(tier string) (TierPricing, bool) {
	pricing, ok := tierPricing[tier]
	return pricing, ok
}

// FormatCostToDollars converts millicents to a dollar string
// (e.g., 135000 millicents -> "$1.35")
func FormatCostToDollars(millicents int) string {
	dollars := float64(millicents) / 100000.0
	return fmt.Sprintf("$%.2f", dollars)
}
