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

package ingestion

import (
	"log/slog"

	"github.com/kraklabs/pylore/internal/contract"
	"github.com/kraklabs/pylore/pkg/knowledge"
)

// DefaultBatchSize is the number of chunks appended per index write.
const DefaultBatchSize = 50

// Batcher splits chunks into fixed-size batches for index writes.
type Batcher struct {
	batchSize int
	logger    *slog.Logger
}

// NewBatcher creates a batcher. A non-positive size falls back to
// DefaultBatchSize; a nil logger falls back to slog.Default().
func NewBatcher(batchSize int, logger *slog.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{batchSize: batchSize, logger: logger}
}

// Batch drops empty chunks and chunks whose speaker id breaks the
// contract limit, then splits the rest into batches of at most the
// configured size. Batches that exceed the contract's soft byte limit
// are logged and kept; that limit is advisory.
func (b *Batcher) Batch(chunks []knowledge.Chunk) [][]knowledge.Chunk {
	kept := make([]knowledge.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.IsEmpty() {
			continue
		}
		if res := contract.ValidateSpeakerID(c.SpeakerID); !res.OK {
			b.logger.Warn("batcher.speaker_id", "len", len(c.SpeakerID), "detail", res.Message)
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil
	}

	batches := make([][]knowledge.Chunk, 0, (len(kept)+b.batchSize-1)/b.batchSize)
	for start := 0; start < len(kept); start += b.batchSize {
		end := start + b.batchSize
		if end > len(kept) {
			end = len(kept)
		}
		batch := kept[start:end]

		if res := contract.ValidateBatchBytes(batchBytes(batch)); !res.OK {
			b.logger.Warn("batcher.soft_limit", "batch_index", len(batches), "detail", res.Message)
		}
		batches = append(batches, batch)
	}

	return batches
}

// batchBytes approximates the wire size of a batch as the sum of its
// text and speaker bytes.
func batchBytes(batch []knowledge.Chunk) int {
	total := 0
	for i := range batch {
		total += len(batch[i].JoinedText()) + len(batch[i].SpeakerID)
	}
	return total
}
