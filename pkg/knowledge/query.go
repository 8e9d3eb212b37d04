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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/pylore/pkg/llm"
)

// QueryOptions tune retrieval and answer synthesis.
type QueryOptions struct {
	// TopN bounds the number of chunks rendered or fed to the answerer.
	// Zero means 5.
	TopN int

	// Answerer, when set, synthesizes a grounded answer from the top
	// excerpts instead of rendering them directly.
	Answerer llm.Provider

	// Model overrides the answerer's default model.
	Model string
}

// scoring weights. Cosine similarity carries most of the signal when a real
// embedding model is configured; term and tag matches keep retrieval useful
// under the default hash embedder, whose vectors are content-blind.
const (
	cosineWeight = 0.6
	termWeight   = 0.4
	tagBonus     = 0.15
	maxTagBonus  = 0.3
)

type queryHit struct {
	speaker  string
	segments []string
	tags     []string
	score    float64
}

// Query ranks stored chunks against the query text and renders the result.
// Without an answerer it returns the top excerpts; with one it returns a
// synthesized answer followed by its sources.
func (s *Store) Query(ctx context.Context, text string, opts QueryOptions) (string, error) {
	hits, err := s.search(ctx, text, opts.TopN)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "No matching chunks found.", nil
	}

	if opts.Answerer == nil {
		return renderHits(hits), nil
	}
	return s.answer(ctx, text, hits, opts)
}

// search embeds the query, scores every stored chunk, and returns the top
// n hits in descending score order.
func (s *Store) search(ctx context.Context, text string, n int) ([]queryHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrIndexClosed
	}
	if n <= 0 {
		n = 5
	}

	queryVec, _, err := embedWithRetry(ctx, s.embedder, text, s.retry, s.logger)
	if err != nil {
		s.logger.Warn("knowledge.query.embed_failed", "err", err)
		queryVec = nil // fall back to term matching alone
	}
	terms := queryTerms(text)

	rows, err := s.db.QueryContext(ctx, `SELECT speaker_id, segments, tags, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []queryHit
	for rows.Next() {
		var speaker, segJSON, tagJSON string
		var blob []byte
		if err := rows.Scan(&speaker, &segJSON, &tagJSON, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}

		var segments, tags []string
		if err := json.Unmarshal([]byte(segJSON), &segments); err != nil {
			return nil, fmt.Errorf("parse segments for %s: %w", speaker, err)
		}
		if err := json.Unmarshal([]byte(tagJSON), &tags); err != nil {
			return nil, fmt.Errorf("parse tags for %s: %w", speaker, err)
		}

		score := scoreChunk(queryVec, decodeVector(blob), terms, speaker, segments, tags)
		if score <= 0 {
			continue
		}
		hits = append(hits, queryHit{speaker: speaker, segments: segments, tags: tags, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > n {
		hits = hits[:n]
	}
	s.logger.Debug("knowledge.query.ranked", "terms", len(terms), "hits", len(hits))
	return hits, nil
}

func scoreChunk(queryVec, chunkVec []float32, terms []string, speaker string, segments, tags []string) float64 {
	var score float64
	if len(queryVec) > 0 && len(chunkVec) > 0 {
		if sim := cosineSimilarity(queryVec, chunkVec); sim > 0 {
			score += cosineWeight * sim
		}
	}

	if len(terms) > 0 {
		haystack := strings.ToLower(speaker + "\n" + strings.Join(segments, "\n"))
		matched := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				matched++
			}
		}
		score += termWeight * float64(matched) / float64(len(terms))
	}

	bonus := 0.0
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		for _, term := range terms {
			if lower == term {
				bonus += tagBonus
				break
			}
		}
	}
	if bonus > maxTagBonus {
		bonus = maxTagBonus
	}
	return score + bonus
}

// queryTerms lowercases the query and strips punctuation, dropping terms
// too short to discriminate.
func queryTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_' || r == '.')
	})
	var terms []string
	for _, f := range fields {
		f = strings.Trim(f, "._")
		if len(f) < 2 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func renderHits(hits []queryHit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d matching chunk%s:\n", len(hits), plural(len(hits)))
	for i, hit := range hits {
		fmt.Fprintf(&sb, "\n[%d] %s (score %.2f)\n", i+1, hit.speaker, hit.score)
		if len(hit.tags) > 0 {
			fmt.Fprintf(&sb, "    tags: %s\n", strings.Join(hit.tags, ", "))
		}
		fmt.Fprintf(&sb, "    %s\n", excerpt(hit.segments, 240))
	}
	return sb.String()
}

// excerpt returns the first non-blank segment flattened to one line and
// capped at max characters.
func excerpt(segments []string, max int) string {
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		seg = strings.Join(strings.Fields(seg), " ")
		if len(seg) > max {
			seg = seg[:max] + "..."
		}
		return seg
	}
	return "(no content)"
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// answer feeds the top excerpts to the configured LLM provider and renders
// the synthesized answer with its sources.
func (s *Store) answer(ctx context.Context, question string, hits []queryHit, opts QueryOptions) (string, error) {
	excerpts := make([]string, len(hits))
	for i, hit := range hits {
		text := hit.segments
		excerpts[i] = fmt.Sprintf("%s\n%s", hit.speaker, strings.Join(text, "\n"))
	}

	prompt := llm.AnswerPrompt{Question: question, Excerpts: excerpts}.Build()
	resp, err := opts.Answerer.Generate(ctx, llm.GenerateRequest{
		Prompt: prompt,
		System: llm.AnswerSystemPrompt,
		Model:  opts.Model,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(resp.Text))
	sb.WriteString("\n\nSources:\n")
	for i, hit := range hits {
		fmt.Fprintf(&sb, "  [%d] %s\n", i+1, hit.speaker)
	}
	return sb.String(), nil
}
