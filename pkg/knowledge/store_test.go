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
	"io"
	"os"
	"path/filepath"
	"testing"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a fresh index in a temp directory.
func newTestStore(t *testing.T, embedder Embedder) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test_codebase.db")
	store, err := Open(path, SchemaHint{
		Name: "test-codebase",
		Tags: []string{"test", "codebase", "python"},
	}, embedder, testLogger())
	require.NoError(t, err, "Open should create a fresh index")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// sampleBatch returns a module chunk, a class chunk nested under it, and a
// method chunk nested under the class.
func sampleBatch() []Chunk {
	return []Chunk{
		{
			SpeakerID:    "acct",
			TextSegments: []string{"Module docstring:\nWorkspace accounting helpers.", "Overview:\nClasses: Ledger", "import os"},
			Tags:         []string{"module", "python", "demo"},
		},
		{
			SpeakerID:    "acct:Ledger",
			TextSegments: []string{"Tracks debits and credits for a workspace.", "class Ledger", "class Ledger:\n    total = 0"},
			Tags:         []string{"class", "python", "Ledger", "acct"},
		},
		{
			SpeakerID:    "acct:Ledger.add",
			TextSegments: []string{"Record one entry and return the running total.", "def add(self, amount)", "return self.total"},
			Tags:         []string{"method", "python", "add", "Ledger"},
		},
	}
}

func TestOpen_CreatesIndexFile(t *testing.T) {
	store := newTestStore(t, nil)

	_, err := os.Stat(store.Path())
	require.NoError(t, err, "index file should exist on disk")

	info, err := store.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-codebase", info.Name)
	assert.Equal(t, []string{"test", "codebase", "python"}, info.Tags)
	assert.Zero(t, info.Chunks)
	assert.Zero(t, info.Links)
}

func TestOpen_ExistingIndexKeepsIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keep_codebase.db")

	first, err := Open(path, SchemaHint{Name: "original", Tags: []string{"a"}}, nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path, SchemaHint{Name: "imposter", Tags: []string{"b"}}, nil, testLogger())
	require.NoError(t, err)
	defer second.Close()

	info, err := second.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "original", info.Name, "reopening must keep the stored name")
	assert.Equal(t, []string{"a"}, info.Tags)
}

func TestOpenExisting_MissingFile(t *testing.T) {
	_, err := OpenExisting(filepath.Join(t.TempDir(), "nope.db"), nil, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSuchIndex)
}

func TestAppendBatch_AppendsChunksAndDerivesLinks(t *testing.T) {
	store := newTestStore(t, nil)

	stats, err := store.AppendBatch(context.Background(), sampleBatch())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.ChunksAppended)
	// class -> module (parent), method -> class (parent),
	// method -> class (shared "Ledger" tag).
	assert.Equal(t, 3, stats.DerivedLinksAdded)

	info, err := store.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, info.Chunks)
	assert.Equal(t, 3, info.Links)
}

func TestAppendBatch_DedupsByContentHash(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	first, err := store.AppendBatch(ctx, sampleBatch())
	require.NoError(t, err)
	require.Equal(t, 3, first.ChunksAppended)

	second, err := store.AppendBatch(ctx, sampleBatch())
	require.NoError(t, err)
	assert.Zero(t, second.ChunksAppended, "re-appending identical chunks must be a no-op")
	assert.Zero(t, second.DerivedLinksAdded)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Chunks)
}

func TestAppendBatch_DedupsWithinBatch(t *testing.T) {
	store := newTestStore(t, nil)

	chunk := Chunk{SpeakerID: "m", TextSegments: []string{"content"}, Tags: []string{"module", "python"}}
	stats, err := store.AppendBatch(context.Background(), []Chunk{chunk, chunk, chunk})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksAppended)
}

func TestAppendBatch_DropsEmptyChunks(t *testing.T) {
	store := newTestStore(t, nil)

	batch := []Chunk{
		{SpeakerID: "empty", TextSegments: []string{"", "  ", "\n"}},
		{SpeakerID: "real", TextSegments: []string{"content"}},
	}
	stats, err := store.AppendBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksAppended, "blank chunks are dropped, not stored")
}

func TestAppendBatch_EmptyBatch(t *testing.T) {
	store := newTestStore(t, nil)

	stats, err := store.AppendBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.ChunksAppended)
	assert.Zero(t, stats.DerivedLinksAdded)
}

func TestAppendBatch_AfterClose(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.Close())

	_, err := store.AppendBatch(context.Background(), sampleBatch())
	assert.ErrorIs(t, err, ErrIndexClosed)
}

func TestClose_Idempotent(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestStampRun_SurfacesInInfo(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.StampRun(ctx, "run-123"))
	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-123", info.LastRunID)

	// Stamping again overwrites.
	require.NoError(t, store.StampRun(ctx, "run-456"))
	info, err = store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-456", info.LastRunID)
}

func TestParentSpeaker(t *testing.T) {
	tests := []struct {
		speaker string
		want    string
	}{
		{"acct:Ledger.add", "acct:Ledger"},
		{"acct:Ledger", "acct"},
		{"acct:summarize", "acct"},
		{"acct", ""},
		{"docs/readme.md", ""},
		{"pkg.sub:Outer.Inner.method", "pkg.sub:Outer.Inner"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parentSpeaker(tt.speaker), "parent of %q", tt.speaker)
	}
}

func TestDiscriminatingTags(t *testing.T) {
	assert.Nil(t, discriminatingTags([]string{"module", "python"}))
	assert.Equal(t, []string{"Ledger", "acct"}, discriminatingTags([]string{"class", "python", "Ledger", "acct"}))
	assert.Equal(t, []string{"demo"}, discriminatingTags([]string{"module", "python", "demo", ""}))
	assert.Nil(t, discriminatingTags(nil))
}

func TestEncodeDecodeVector_RoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 0, 3.75}
	assert.Equal(t, vec, decodeVector(encodeVector(vec)))
	assert.Nil(t, encodeVector(nil))
	assert.Nil(t, decodeVector(nil))
}
