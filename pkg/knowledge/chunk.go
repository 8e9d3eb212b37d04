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

package knowledge

import (
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/xxh3"
)

// Chunk is the unit of knowledge handed to an index: a small ordered set of
// text segments about one entity, attributed to a stable speaker, carrying
// retrieval tags. Segment order is significant; retrieval weights earlier
// segments (summary, then structure, then verbatim code) more heavily.
type Chunk struct {
	// TextSegments holds the ordered segment texts. A chunk whose segments
	// are all blank after trimming is dropped rather than indexed.
	TextSegments []string `json:"text_segments"`

	// SpeakerID is a stable identifier for the entity the chunk describes:
	// a module path, "module:Qualified.Symbol", or a repository-relative
	// file path for documentation and configuration chunks.
	SpeakerID string `json:"speaker_id"`

	// Tags classify the chunk for retrieval (kind, language, then
	// entity-specific names such as the class or module).
	Tags []string `json:"tags"`
}

// IsEmpty reports whether every segment is blank after trimming whitespace.
// Empty chunks carry no retrievable content and are never appended.
func (c Chunk) IsEmpty() bool {
	for _, seg := range c.TextSegments {
		if strings.TrimSpace(seg) != "" {
			return false
		}
	}
	return true
}

// JoinedText returns the segments joined by blank lines. This is the
// canonical text form used for embedding and term matching.
func (c Chunk) JoinedText() string {
	return strings.Join(c.TextSegments, "\n\n")
}

// Hash returns the chunk's content identity as a fixed-width hex string.
// Two chunks with the same speaker and the same segment texts hash equal,
// which is what append-time dedup keys on. Tags do not participate; they
// are derived from the same entity and re-tagging must not duplicate rows.
func (c Chunk) Hash() string {
	h := xxh3.New()
	_, _ = io.WriteString(h, c.SpeakerID)
	for _, seg := range c.TextSegments {
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, seg)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// SchemaHint names an index at creation time. An existing index keeps its
// stored name and tags; the hint only seeds a fresh file.
type SchemaHint struct {
	Name string
	Tags []string
}

// AppendStats reports what one AppendBatch call changed.
type AppendStats struct {
	// ChunksAppended counts chunks actually inserted (duplicates and empty
	// chunks are skipped, not counted).
	ChunksAppended int

	// DerivedLinksAdded counts relationship edges derived from the new
	// chunks (parent-scope and shared-tag links).
	DerivedLinksAdded int
}
