// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for capture surfaces.
//
// Captured text flows from the CLI and the drop-directory watcher into
// SQLite rows, search queries, and terminal output. These validators
// keep tags queryable and strip terminal escape sequences out of
// content before it is stored or rendered.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxContentBytes caps a single captured chunk.
const MaxContentBytes = 64 * 1024

// MaxTagLength caps one tag.
const MaxTagLength = 64

// tagPattern matches valid tags: lowercase alphanumerics separated by
// single hyphens, like "code-review" or "q3-planning".
var tagPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// controlPattern strips C0 control characters except tab and newline,
// which covers ANSI escape introducers pasted from terminals.
var controlPattern = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")

// SanitizeTag normalizes and validates one tag: trimmed, lowercased,
// spaces collapsed to hyphens.
//
//	tag, err := validation.SanitizeTag("  Code Review ")
//	// tag == "code-review"
func SanitizeTag(tag string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(tag))
	normalized = strings.Join(strings.Fields(normalized), "-")
	if normalized == "" {
		return "", fmt.Errorf("tag cannot be empty")
	}
	if len(normalized) > MaxTagLength {
		return "", fmt.Errorf("tag too long: %d bytes (max %d)", len(normalized), MaxTagLength)
	}
	if !tagPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid tag %q (lowercase alphanumerics and hyphens only)", normalized)
	}
	return normalized, nil
}

// SanitizeTags normalizes a tag list, dropping duplicates after
// normalization and preserving first-seen order.
func SanitizeTags(tags []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	var invalid []string
	for _, t := range tags {
		normalized, err := SanitizeTag(t)
		if err != nil {
			invalid = append(invalid, t)
			continue
		}
		if !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid tags: %v", invalid)
	}
	return out, nil
}

// SanitizeContent validates and cleans captured text: must be valid
// UTF-8, non-empty after trimming, under MaxContentBytes, with
// control characters removed and line endings normalized to \n.
func SanitizeContent(content string) (string, error) {
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	cleaned := strings.ReplaceAll(content, "\r\n", "\n")
	cleaned = controlPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", fmt.Errorf("content cannot be empty")
	}
	if len(cleaned) > MaxContentBytes {
		return "", fmt.Errorf("content too large: %d bytes (max %d)", len(cleaned), MaxContentBytes)
	}
	return cleaned, nil
}
