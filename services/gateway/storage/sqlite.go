// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage is the gateway's SQLite persistence layer.
//
// A single-file database keeps the gateway self-contained on a
// personal machine. modernc.org/sqlite is a pure-Go driver, so the
// binary stays cgo-free.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

// ErrNotFound is returned for lookups and mutations of missing rows.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	project_id  TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'inbox',
	source      TEXT NOT NULL DEFAULT '',
	token_count INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_status ON chunks(status);
CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_id);
CREATE INDEX IF NOT EXISTS idx_chunks_created ON chunks(created_at DESC);

CREATE TABLE IF NOT EXISTS projects (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	description     TEXT NOT NULL DEFAULT '',
	context_summary TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id        TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
	project_id      TEXT NOT NULL DEFAULT '',
	entity_type     TEXT NOT NULL,
	value           TEXT NOT NULL,
	confidence      REAL NOT NULL DEFAULT 1.0,
	context_snippet TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_chunk ON entities(chunk_id);
`

// Store wraps the gateway database.
//
// Thread Safety: safe for concurrent use; database/sql pools
// connections internally.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// estimateTokens is a rough chars/4 heuristic, enough for compaction
// budgeting without a tokenizer dependency.
func estimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// CreateChunk inserts a new chunk and returns the stored record.
func (s *Store) CreateChunk(ctx context.Context, in datatypes.ChunkCreate) (datatypes.Chunk, error) {
	chunk := datatypes.Chunk{
		ID:         uuid.NewString(),
		Content:    in.Content,
		ProjectID:  in.ProjectID,
		Tags:       in.Tags,
		Status:     datatypes.StatusInbox,
		Source:     in.Source,
		TokenCount: estimateTokens(in.Content),
		CreatedAt:  now(),
	}
	chunk.UpdatedAt = chunk.CreatedAt
	if chunk.Source == "" {
		chunk.Source = "api"
	}

	tags, err := json.Marshal(chunk.Tags)
	if err != nil {
		return datatypes.Chunk{}, fmt.Errorf("encode tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, content, summary, project_id, tags, status, source, token_count, created_at, updated_at)
		VALUES (?, ?, '', ?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.Content, chunk.ProjectID, string(tags), chunk.Status,
		chunk.Source, chunk.TokenCount, chunk.CreatedAt, chunk.UpdatedAt)
	if err != nil {
		return datatypes.Chunk{}, fmt.Errorf("insert chunk: %w", err)
	}
	return chunk, nil
}

// ListFilter narrows ListChunks.
type ListFilter struct {
	Status    datatypes.ChunkStatus
	ProjectID string
	Limit     int
	Offset    int
}

// ListChunks returns chunks newest-first.
func (s *Store) ListChunks(ctx context.Context, f ListFilter) ([]datatypes.Chunk, error) {
	q := `SELECT id, content, summary, project_id, tags, status, source, token_count, created_at, updated_at FROM chunks`
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetChunk returns one chunk or ErrNotFound.
func (s *Store) GetChunk(ctx context.Context, id string) (datatypes.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, summary, project_id, tags, status, source, token_count, created_at, updated_at
		FROM chunks WHERE id = ?`, id)
	if err != nil {
		return datatypes.Chunk{}, fmt.Errorf("get chunk: %w", err)
	}
	defer rows.Close()
	chunks, err := scanChunks(rows)
	if err != nil {
		return datatypes.Chunk{}, err
	}
	if len(chunks) == 0 {
		return datatypes.Chunk{}, ErrNotFound
	}
	return chunks[0], nil
}

// UpdateChunk applies a partial update and returns the new record.
// Only fields present in the update touch the row.
func (s *Store) UpdateChunk(ctx context.Context, id string, in datatypes.ChunkUpdate) (datatypes.Chunk, error) {
	var sets []string
	var args []any
	if in.Content != nil {
		sets = append(sets, "content = ?", "token_count = ?")
		args = append(args, *in.Content, estimateTokens(*in.Content))
	}
	if in.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *in.Summary)
	}
	if in.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		args = append(args, *in.ProjectID)
	}
	if in.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*in.Status))
	}
	if in.Tags != nil {
		raw, err := json.Marshal(*in.Tags)
		if err != nil {
			return datatypes.Chunk{}, fmt.Errorf("encode tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(raw))
	}
	if len(sets) == 0 {
		return s.GetChunk(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE chunks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return datatypes.Chunk{}, fmt.Errorf("update chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return datatypes.Chunk{}, ErrNotFound
	}
	return s.GetChunk(ctx, id)
}

// DeleteChunk removes a chunk and, via cascade, its entities.
func (s *Store) DeleteChunk(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats returns chunk counts by status.
func (s *Store) Stats(ctx context.Context) (datatypes.AggregateStats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM chunks GROUP BY status")
	if err != nil {
		return datatypes.AggregateStats{}, fmt.Errorf("chunk stats: %w", err)
	}
	defer rows.Close()

	var stats datatypes.AggregateStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return datatypes.AggregateStats{}, fmt.Errorf("scan stats row: %w", err)
		}
		switch datatypes.ChunkStatus(status) {
		case datatypes.StatusInbox:
			stats.Inbox = count
		case datatypes.StatusProcessed:
			stats.Processed = count
		case datatypes.StatusCompacted:
			stats.Compacted = count
		case datatypes.StatusArchived:
			stats.Archived = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

// Search matches query against content and summary, newest-first.
func (s *Store) Search(ctx context.Context, query string, limit int) (datatypes.SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(query) + "%"

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks
		WHERE content LIKE ? ESCAPE '\' OR summary LIKE ? ESCAPE '\'`,
		pattern, pattern).Scan(&total)
	if err != nil {
		return datatypes.SearchResult{}, fmt.Errorf("count search matches: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, summary, project_id, tags, status, source, token_count, created_at, updated_at
		FROM chunks
		WHERE content LIKE ? ESCAPE '\' OR summary LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		pattern, pattern, limit)
	if err != nil {
		return datatypes.SearchResult{}, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	items, err := scanChunks(rows)
	if err != nil {
		return datatypes.SearchResult{}, err
	}
	return datatypes.SearchResult{Items: items, Total: total}, nil
}

// escapeLike neutralizes LIKE metacharacters so user input matches
// literally. The backslash goes first or it would re-escape the
// escapes added for % and _.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// CreateProject inserts a project.
func (s *Store) CreateProject(ctx context.Context, in datatypes.ProjectCreate) (datatypes.Project, error) {
	p := datatypes.Project{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   now(),
	}
	p.UpdatedAt = p.CreatedAt
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, context_summary, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, ?)`,
		p.ID, p.Name, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return datatypes.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects by name, with per-project chunk
// counts computed in the query.
func (s *Store) ListProjects(ctx context.Context) ([]datatypes.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.description, p.context_summary, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM chunks c WHERE c.project_id = p.id)
		FROM projects p ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []datatypes.Project
	for rows.Next() {
		var p datatypes.Project
		err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.ContextSummary,
			&p.CreatedAt, &p.UpdatedAt, &p.ChunkCount)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceEntities swaps the extracted entities for one chunk.
func (s *Store) ReplaceEntities(ctx context.Context, chunkID string, entities []datatypes.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entity replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE chunk_id = ?", chunkID); err != nil {
		return fmt.Errorf("clear entities: %w", err)
	}
	ts := now()
	for _, e := range entities {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (chunk_id, project_id, entity_type, value, confidence, context_snippet, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			chunkID, e.ProjectID, string(e.EntityType), e.Value, e.Confidence, e.ContextSnippet, ts)
		if err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
	}
	return tx.Commit()
}

// ListEntities returns the entities extracted from one chunk.
func (s *Store) ListEntities(ctx context.Context, chunkID string) ([]datatypes.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chunk_id, project_id, entity_type, value, confidence, context_snippet, created_at
		FROM entities WHERE chunk_id = ? ORDER BY id`, chunkID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []datatypes.Entity
	for rows.Next() {
		var e datatypes.Entity
		var typ string
		err := rows.Scan(&e.ID, &e.ChunkID, &e.ProjectID, &typ, &e.Value,
			&e.Confidence, &e.ContextSnippet, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		e.EntityType = datatypes.EntityType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanChunks(rows *sql.Rows) ([]datatypes.Chunk, error) {
	var out []datatypes.Chunk
	for rows.Next() {
		var c datatypes.Chunk
		var tags, status string
		err := rows.Scan(&c.ID, &c.Content, &c.Summary, &c.ProjectID, &tags,
			&status, &c.Source, &c.TokenCount, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		c.Status = datatypes.ChunkStatus(status)
		if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for chunk %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
