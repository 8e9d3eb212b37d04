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
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	_ "modernc.org/sqlite"
)

var (
	// ErrIndexClosed is returned by operations on a closed store.
	ErrIndexClosed = errors.New("knowledge index is closed")

	// ErrNoSuchIndex is returned by OpenExisting for a missing index file.
	ErrNoSuchIndex = errors.New("no such knowledge index")
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
    hash       TEXT PRIMARY KEY,
    speaker_id TEXT NOT NULL,
    segments   TEXT NOT NULL,
    tags       TEXT NOT NULL,
    embedding  BLOB,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_speaker ON chunks(speaker_id);

CREATE TABLE IF NOT EXISTS links (
    source_hash TEXT NOT NULL,
    target_hash TEXT NOT NULL,
    relation    TEXT NOT NULL,
    PRIMARY KEY (source_hash, target_hash, relation)
);
`

// Store is a knowledge index backed by a single SQLite file.
// Methods are safe for use from one process; SQLite's single-writer model
// is enforced with a connection limit of one.
type Store struct {
	db       *sql.DB
	path     string
	embedder Embedder
	retry    RetryConfig
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens the index at location, creating the file and schema when
// absent. A fresh index is named and tagged from hint; an existing one
// keeps its stored identity. A nil embedder defaults to the deterministic
// hash embedder and a nil logger to slog.Default().
func Open(location string, hint SchemaHint, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		embedder = NewHashEmbedder(DefaultDimensions)
	}

	db, err := openDatabase(location)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", location, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{
		db:       db,
		path:     location,
		embedder: embedder,
		retry:    DefaultRetryConfig(),
		logger:   logger,
	}
	if err := s.seedMeta(hint); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("knowledge.store.opened", "path", location, "name", s.nameFromMeta())
	return s, nil
}

// OpenExisting opens an index that must already exist. It returns
// ErrNoSuchIndex (wrapped with the path) when the file is missing.
func OpenExisting(location string, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if _, err := os.Stat(location); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", location, ErrNoSuchIndex)
		}
		return nil, fmt.Errorf("stat index %s: %w", location, err)
	}
	return Open(location, SchemaHint{}, embedder, logger)
}

// openDatabase opens the SQLite file with the settings the store relies on.
func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite allows one writer; a wider pool only manufactures SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// seedMeta writes identity rows for a fresh index. INSERT OR IGNORE keeps
// an existing index's identity untouched.
func (s *Store) seedMeta(hint SchemaHint) error {
	tagsJSON, err := json.Marshal(hint.Tags)
	if err != nil {
		return fmt.Errorf("marshal index tags: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	seed := [][2]string{
		{"schema_version", strconv.Itoa(schemaVersion)},
		{"name", hint.Name},
		{"tags", string(tagsJSON)},
		{"created_at", now},
		{"updated_at", now},
		{"chunk_count", "0"},
		{"link_count", "0"},
	}
	for _, kv := range seed {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("seed meta %s: %w", kv[0], err)
		}
	}
	return nil
}

// Path returns the index file location.
func (s *Store) Path() string { return s.path }

// Name returns the index's stored name.
func (s *Store) Name() string { return s.nameFromMeta() }

func (s *Store) nameFromMeta() string {
	var name string
	_ = s.db.QueryRow(`SELECT value FROM meta WHERE key = 'name'`).Scan(&name)
	return name
}

// Close releases the underlying database. Further operations return
// ErrIndexClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// AppendBatch inserts a batch of chunks. Empty chunks are dropped, chunks
// whose content hash is already stored are skipped, and everything new is
// embedded and inserted in one transaction together with the links derived
// from it. A batch either lands completely or not at all.
func (s *Store) AppendBatch(ctx context.Context, chunks []Chunk) (AppendStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return AppendStats{}, ErrIndexClosed
	}

	start := time.Now()

	type pending struct {
		chunk     Chunk
		hash      string
		embedding []byte
	}

	// Dedup against the index and within the batch before embedding, so
	// unchanged content never touches a provider.
	seen := make(map[string]bool, len(chunks))
	var fresh []pending
	for _, c := range chunks {
		if c.IsEmpty() {
			s.logger.Debug("knowledge.store.chunk_empty", "speaker", c.SpeakerID)
			continue
		}
		h := c.Hash()
		if seen[h] {
			continue
		}
		seen[h] = true

		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chunks WHERE hash = ?`, h).Scan(&exists)
		switch {
		case err == nil:
			continue // already indexed
		case errors.Is(err, sql.ErrNoRows):
			fresh = append(fresh, pending{chunk: c, hash: h})
		default:
			return AppendStats{}, fmt.Errorf("check chunk %s: %w", h, err)
		}
	}

	if len(fresh) == 0 {
		return AppendStats{}, nil
	}

	// Embedding failures degrade to a nil vector; the chunk still lands and
	// stays reachable through term matching.
	embedErrors := 0
	for i := range fresh {
		vec, _, err := embedWithRetry(ctx, s.embedder, fresh[i].chunk.JoinedText(), s.retry, s.logger)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return AppendStats{}, err
			}
			embedErrors++
			continue
		}
		fresh[i].embedding = encodeVector(vec)
	}
	if embedErrors > 0 {
		s.logger.Warn("knowledge.store.embed_degraded", "batch", len(fresh), "errors", embedErrors)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendStats{}, fmt.Errorf("begin append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stats := AppendStats{}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range fresh {
		segJSON, err := json.Marshal(p.chunk.TextSegments)
		if err != nil {
			return AppendStats{}, fmt.Errorf("marshal segments for %s: %w", p.chunk.SpeakerID, err)
		}
		tagJSON, err := json.Marshal(p.chunk.Tags)
		if err != nil {
			return AppendStats{}, fmt.Errorf("marshal tags for %s: %w", p.chunk.SpeakerID, err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO chunks (hash, speaker_id, segments, tags, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			p.hash, p.chunk.SpeakerID, string(segJSON), string(tagJSON), p.embedding, now)
		if err != nil {
			return AppendStats{}, fmt.Errorf("insert chunk %s: %w", p.chunk.SpeakerID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stats.ChunksAppended++
		}

		added, err := s.deriveLinks(ctx, tx, p.hash, p.chunk)
		if err != nil {
			return AppendStats{}, err
		}
		stats.DerivedLinksAdded += added
	}

	if err := s.bumpCounters(ctx, tx, stats, now); err != nil {
		return AppendStats{}, err
	}
	if err := tx.Commit(); err != nil {
		return AppendStats{}, fmt.Errorf("commit append transaction: %w", err)
	}

	s.logger.Info("knowledge.store.batch_appended",
		"chunks", stats.ChunksAppended,
		"links", stats.DerivedLinksAdded,
		"skipped", len(chunks)-len(fresh),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// deriveLinks inserts relationship edges for one new chunk: an edge to the
// chunk for its enclosing scope, and edges to chunks sharing one of its
// discriminating tags. Duplicate edges are ignored by the primary key.
func (s *Store) deriveLinks(ctx context.Context, tx *sql.Tx, hash string, c Chunk) (int, error) {
	added := 0

	if parent := parentSpeaker(c.SpeakerID); parent != "" {
		rows, err := tx.QueryContext(ctx, `SELECT hash FROM chunks WHERE speaker_id = ? AND hash != ?`, parent, hash)
		if err != nil {
			return 0, fmt.Errorf("find parent chunks for %s: %w", c.SpeakerID, err)
		}
		targets, err := scanStrings(rows)
		if err != nil {
			return 0, fmt.Errorf("scan parent chunks for %s: %w", c.SpeakerID, err)
		}
		for _, target := range targets {
			n, err := insertLink(ctx, tx, hash, target, "parent")
			if err != nil {
				return 0, err
			}
			added += n
		}
	}

	// Tags beyond kind and language name specific entities (class, module,
	// file path) and are worth an edge; the first two would link everything
	// to everything.
	for _, tag := range discriminatingTags(c.Tags) {
		rows, err := tx.QueryContext(ctx,
			`SELECT hash FROM chunks WHERE tags LIKE ? AND hash != ? LIMIT 32`,
			`%"`+tag+`"%`, hash)
		if err != nil {
			return 0, fmt.Errorf("find tag peers for %q: %w", tag, err)
		}
		targets, err := scanStrings(rows)
		if err != nil {
			return 0, fmt.Errorf("scan tag peers for %q: %w", tag, err)
		}
		for _, target := range targets {
			n, err := insertLink(ctx, tx, hash, target, "tag")
			if err != nil {
				return 0, err
			}
			added += n
		}
	}

	return added, nil
}

func insertLink(ctx context.Context, tx *sql.Tx, source, target, relation string) (int, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO links (source_hash, target_hash, relation) VALUES (?, ?, ?)`,
		source, target, relation)
	if err != nil {
		return 0, fmt.Errorf("insert %s link: %w", relation, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// parentSpeaker returns the speaker of the enclosing scope, or "" when the
// speaker has none. "mod:Class.method" -> "mod:Class" -> "mod"; a bare
// module path or file path has no parent.
func parentSpeaker(speaker string) string {
	mod, sym, ok := strings.Cut(speaker, ":")
	if !ok {
		return ""
	}
	if i := strings.LastIndex(sym, "."); i >= 0 {
		return mod + ":" + sym[:i]
	}
	return mod
}

// discriminatingTags filters a chunk's tags down to the entity-specific
// ones. The tag layout puts kind first and language second; both are too
// common to link on. Blank tags (an unnamed project) are skipped too.
func discriminatingTags(tags []string) []string {
	if len(tags) <= 2 {
		return nil
	}
	var out []string
	for _, tag := range tags[2:] {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		out = append(out, tag)
	}
	return out
}

func (s *Store) bumpCounters(ctx context.Context, tx *sql.Tx, stats AppendStats, now string) error {
	updates := [][2]string{
		{"chunk_count", strconv.Itoa(stats.ChunksAppended)},
		{"link_count", strconv.Itoa(stats.DerivedLinksAdded)},
	}
	for _, kv := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE meta SET value = CAST(CAST(value AS INTEGER) + ? AS TEXT) WHERE key = ?`,
			kv[1], kv[0]); err != nil {
			return fmt.Errorf("update meta %s: %w", kv[0], err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = ? WHERE key = 'updated_at'`, now); err != nil {
		return fmt.Errorf("update meta updated_at: %w", err)
	}
	return nil
}

// encodeVector packs a float32 vector into a little-endian blob.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	blob := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// decodeVector unpacks a little-endian blob into a float32 vector.
func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// StampRun records the identifier of the ingest run that last wrote to
// this index.
func (s *Store) StampRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrIndexClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('last_run_id', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		runID)
	if err != nil {
		return fmt.Errorf("stamp run id: %w", err)
	}
	return nil
}

// IndexInfo describes a knowledge index for display.
type IndexInfo struct {
	Name      string    `json:"name"`
	Tags      []string  `json:"tags"`
	Chunks    int       `json:"chunks"`
	Links     int       `json:"links"`
	LastRunID string    `json:"last_run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Info reads the index's stored identity and counters.
func (s *Store) Info(ctx context.Context) (*IndexInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrIndexClosed
	}

	meta := map[string]string{}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	info := &IndexInfo{
		Name:      meta["name"],
		LastRunID: meta["last_run_id"],
	}
	if raw := meta["tags"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &info.Tags); err != nil {
			return nil, fmt.Errorf("parse index tags: %w", err)
		}
	}
	info.Chunks, _ = strconv.Atoi(meta["chunk_count"])
	info.Links, _ = strconv.Atoi(meta["link_count"])
	if raw := meta["updated_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			info.UpdatedAt = t
		}
	}
	return info, nil
}
