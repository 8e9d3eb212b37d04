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
	"os"
	"strconv"
)

const (
	// DefaultSoftLimitBytes is the baseline soft limit for index batches.
	DefaultSoftLimitBytes = 64 << 20 // 64 MiB

	// SpeakerIDMaxBytes is the maximum length for a chunk's speaker_id field.
	SpeakerIDMaxBytes = 256
)

// SoftLimitBytes returns the effective soft limit for a batch's total text
// size. Controlled via env PYLORE_SOFT_LIMIT_BYTES; falls back to
// DefaultSoftLimitBytes.
func SoftLimitBytes() int {
	if v := os.Getenv("PYLORE_SOFT_LIMIT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultSoftLimitBytes
}

// ValidationResult represents the result of a validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

// ValidateBatchBytes checks a batch's total text size against the soft limit.
// Oversized batches are still appended; callers log the warning.
func ValidateBatchBytes(totalBytes int) *ValidationResult {
	if totalBytes > SoftLimitBytes() {
		return &ValidationResult{
			OK:      false,
			Message: "batch exceeds soft byte limit",
		}
	}
	return &ValidationResult{OK: true}
}

// ValidateSpeakerID checks a chunk speaker identifier length.
func ValidateSpeakerID(speaker string) *ValidationResult {
	if len(speaker) > SpeakerIDMaxBytes {
		return &ValidationResult{
			OK:      false,
			Message: "speaker_id exceeds maximum length",
		}
	}
	return &ValidationResult{OK: true}
}
