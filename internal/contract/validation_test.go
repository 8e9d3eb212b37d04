// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"strings"
	"testing"
)

func TestSoftLimitBytes_Default(t *testing.T) {
	t.Setenv("PYLORE_SOFT_LIMIT_BYTES", "")
	if got := SoftLimitBytes(); got != DefaultSoftLimitBytes {
		t.Errorf("SoftLimitBytes() = %d, want %d", got, DefaultSoftLimitBytes)
	}
}

func TestSoftLimitBytes_EnvOverride(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want int
	}{
		{"valid override", "1024", 1024},
		{"invalid value falls back", "not-a-number", DefaultSoftLimitBytes},
		{"zero falls back", "0", DefaultSoftLimitBytes},
		{"negative falls back", "-5", DefaultSoftLimitBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PYLORE_SOFT_LIMIT_BYTES", tt.env)
			if got := SoftLimitBytes(); got != tt.want {
				t.Errorf("SoftLimitBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidateBatchBytes(t *testing.T) {
	t.Setenv("PYLORE_SOFT_LIMIT_BYTES", "100")

	if res := ValidateBatchBytes(100); !res.OK {
		t.Errorf("ValidateBatchBytes(100) = %+v, want OK", res)
	}
	res := ValidateBatchBytes(101)
	if res.OK {
		t.Error("ValidateBatchBytes(101) should exceed the limit")
	}
	if !strings.Contains(res.Message, "soft byte limit") {
		t.Errorf("Message = %q, want mention of soft byte limit", res.Message)
	}
}

func TestValidateSpeakerID(t *testing.T) {
	if res := ValidateSpeakerID(strings.Repeat("a", SpeakerIDMaxBytes)); !res.OK {
		t.Error("speaker at max length should validate")
	}
	if res := ValidateSpeakerID(strings.Repeat("a", SpeakerIDMaxBytes+1)); res.OK {
		t.Error("speaker over max length should fail validation")
	}
}
