// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package client is the typed HTTP client for the Komorebi gateway
// API under /api/v1.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

const apiPrefix = "/api/v1"

// HTTPClient is the subset of *http.Client used here, injectable for
// testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx response from the gateway. Body holds at most
// the first 4 KiB of the response for diagnostics.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, e.Body)
}

// Client calls the Komorebi gateway.
type Client struct {
	baseURL string
	http    HTTPClient
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the gateway at baseURL (scheme and host,
// no path).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EventsURL returns the push stream endpoint for this gateway.
func (c *Client) EventsURL() string {
	return c.baseURL + apiPrefix + "/sse/events"
}

// ListOptions narrow a chunk listing.
type ListOptions struct {
	Status    datatypes.ChunkStatus
	ProjectID string
	Limit     int
	Offset    int
}

func (o *ListOptions) query() url.Values {
	q := url.Values{}
	if o == nil {
		return q
	}
	if o.Status != "" {
		q.Set("status", string(o.Status))
	}
	if o.ProjectID != "" {
		q.Set("project_id", o.ProjectID)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	return q
}

// ListChunks returns chunks newest-first.
func (c *Client) ListChunks(ctx context.Context, opts *ListOptions) ([]datatypes.Chunk, error) {
	var out []datatypes.Chunk
	err := c.do(ctx, http.MethodGet, "/chunks", opts.query(), nil, &out)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return out, nil
}

// CaptureChunk creates a chunk and returns the stored record.
func (c *Client) CaptureChunk(ctx context.Context, in datatypes.ChunkCreate) (datatypes.Chunk, error) {
	var out datatypes.Chunk
	err := c.do(ctx, http.MethodPost, "/chunks", nil, in, &out)
	if err != nil {
		return datatypes.Chunk{}, fmt.Errorf("capture chunk: %w", err)
	}
	return out, nil
}

// GetStats returns aggregate chunk counts by status.
func (c *Client) GetStats(ctx context.Context) (datatypes.AggregateStats, error) {
	var out datatypes.AggregateStats
	err := c.do(ctx, http.MethodGet, "/chunks/stats", nil, nil, &out)
	if err != nil {
		return datatypes.AggregateStats{}, fmt.Errorf("get stats: %w", err)
	}
	return out, nil
}

// SearchChunks runs a full-text query.
func (c *Client) SearchChunks(ctx context.Context, query string, limit int) (datatypes.SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out datatypes.SearchResult
	err := c.do(ctx, http.MethodGet, "/chunks/search", q, nil, &out)
	if err != nil {
		return datatypes.SearchResult{}, fmt.Errorf("search chunks: %w", err)
	}
	return out, nil
}

// UpdateChunk applies a partial update and returns the updated record.
func (c *Client) UpdateChunk(ctx context.Context, id string, in datatypes.ChunkUpdate) (datatypes.Chunk, error) {
	var out datatypes.Chunk
	err := c.do(ctx, http.MethodPatch, "/chunks/"+url.PathEscape(id), nil, in, &out)
	if err != nil {
		return datatypes.Chunk{}, fmt.Errorf("update chunk %s: %w", id, err)
	}
	return out, nil
}

// DeleteChunk removes a chunk.
func (c *Client) DeleteChunk(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/chunks/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete chunk %s: %w", id, err)
	}
	return nil
}

// ListProjects returns all projects.
func (c *Client) ListProjects(ctx context.Context) ([]datatypes.Project, error) {
	var out []datatypes.Project
	err := c.do(ctx, http.MethodGet, "/projects", nil, nil, &out)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

// CreateProject creates a project and returns the stored record.
func (c *Client) CreateProject(ctx context.Context, in datatypes.ProjectCreate) (datatypes.Project, error) {
	var out datatypes.Project
	err := c.do(ctx, http.MethodPost, "/projects", nil, in, &out)
	if err != nil {
		return datatypes.Project{}, fmt.Errorf("create project: %w", err)
	}
	return out, nil
}

// ListChunkEntities returns the entities extracted from one chunk.
func (c *Client) ListChunkEntities(ctx context.Context, chunkID string) ([]datatypes.Entity, error) {
	var out []datatypes.Entity
	err := c.do(ctx, http.MethodGet, "/entities/chunks/"+url.PathEscape(chunkID), nil, nil, &out)
	if err != nil {
		return nil, fmt.Errorf("list entities for chunk %s: %w", chunkID, err)
	}
	return out, nil
}

// do performs one request/response cycle. A nil out discards the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
