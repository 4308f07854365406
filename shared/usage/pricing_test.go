// Copyright 2025 InjectGuard
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package usage

import (
	"testing"
)

func TestCalculateScanCost(t *testing.T) {
	tests := []struct {
		name               string
		tier               string
		scans              int
		expectedMillicents int
	}{
		{
			name:               "PRO single scan",
			tier:               "PRO",
			scans:              1,
			expectedMillicents: 100,
		},
		{
			name:               "PRO thousand scans",
			tier:               "PRO",
			scans:              1000,
			expectedMillicents: 1000 * 100, // $1.00
		},
		{
			name:               "PLUS thousand scans",
			tier:               "PLUS",
			scans:              1000,
			expectedMillicents: 1000 * 60, // $0.60
		},
		{
			name:               "ENT thousand scans",
			tier:               "ENT",
			scans:              1000,
			expectedMillicents: 1000 * 25, // $0.25
		},
		{
			name:               "Community is unmetered",
			tier:               "Community",
			scans:              1000,
			expectedMillicents: 0,
		},
		{
			name:               "Unknown tier defaults to fallback pricing",
			tier:               "LEGACY",
			scans:              10,
			expectedMillicents: 10 * 100,
		},
		{
			name:               "Zero scans",
			tier:               "PRO",
			scans:              0,
			expectedMillicents: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := CalculateScanCost(tt.tier, tt.scans)
			if cost != tt.expectedMillicents {
				t.Errorf("CalculateScanCost() = %d millicents, want %d millicents", cost, tt.expectedMillicents)
			}
		})
	}
}

func TestGetTierPricing(t *testing.T) {
	tests := []struct {
		name   string
		tier   string
		wantOk bool
	}{
		{"PRO tier", "PRO", true},
		{"PLUS tier", "PLUS", true},
		{"ENT tier", "ENT", true},
		{"Community tier", "Community", true},
		{"Unknown tier", "STARTER", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := GetTierPricing(tt.tier)
			if ok != tt.wantOk {
				t.Errorf("GetTierPricing() ok = %v, want %v", ok, tt.wantOk)
			}
		})
	}
}

func TestGetTierPricing_IncludedVolume(t *testing.T) {
	pricing, ok := GetTierPricing("ENT")
	if !ok {
		t.Fatal("GetTierPricing(ENT) ok = false, want true")
	}
	if pricing.IncludedScans != 2000000 {
		t.Errorf("ENT included scans = %d, want 2000000", pricing.IncludedScans)
	}
}

func TestFormatCostToDollars(t *testing.T) {
	tests := []struct {
		name       string
		millicents int
		want       string
	}{
		{"Zero", 0, "$0.00"},
		{"One dollar", 100000, "$1.00"},
		{"One cent", 1000, "$0.01"},
		{"Complex amount", 135000, "$1.35"},
		{"Sub-cent rounds down", 400, "$0.00"},
		{"Large amount", 123456000, "$1234.56"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatCostToDollars(tt.millicents)
			if got != tt.want {
				t.Errorf("FormatCostToDollars(%d) = %q, want %q", tt.millicents, got, tt.want)
			}
		})
	}
}

// Benchmark tests
func BenchmarkCalculateScanCost(b *testing.B) {
	for i := 0; i < b.N; i++ {
		CalculateScanCost("PLUS", 1)
	}
}
