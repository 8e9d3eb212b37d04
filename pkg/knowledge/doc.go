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

// Package knowledge implements the index that ingestion writes into and
// queries read from: a single SQLite file holding knowledge chunks, their
// embeddings, and relationship links derived between them.
//
// The package exposes the narrow contract the pipeline depends on
// (open-or-create, append a batch, query, close) and keeps the storage
// format private to this package.
//
// # Opening an index
//
//	store, err := knowledge.Open("myrepo_codebase.db", knowledge.SchemaHint{
//		Name: "myrepo-codebase",
//		Tags: []string{"myrepo", "codebase", "python"},
//	}, nil, logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// Open creates the file and schema when absent; an existing index keeps its
// stored name and tags. Callers that must not create anything (query, info)
// use OpenExisting, which returns ErrNoSuchIndex for a missing file.
//
// # Appending
//
//	stats, err := store.AppendBatch(ctx, chunks)
//
// A batch is transactional: either every new chunk in it lands or none do.
// Chunks are deduplicated by content hash, so re-ingesting an unchanged
// repository appends nothing. New chunks are embedded through the
// configured Embedder (the deterministic hash embedder by default, so a
// plain run needs no network), and links are derived from each new chunk
// to its parent scope and to chunks sharing a discriminating tag.
//
// # Querying
//
//	answer, err := store.Query(ctx, "where is retry handled?", knowledge.QueryOptions{TopN: 5})
//
// Query ranks stored chunks by cosine similarity against the embedded
// query text, blended with term and tag matches, and renders the top
// excerpts. With an LLM provider set in the options it synthesizes a
// grounded answer from those excerpts instead.
package knowledge
