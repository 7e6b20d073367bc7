// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

// Pattern-based entity extraction. Deliberately conservative: a missed
// entity costs nothing, a bogus one pollutes the detail pane.
var (
	urlPattern     = regexp.MustCompile(`https?://[^\s<>"']+`)
	errorPattern   = regexp.MustCompile(`(?m)^.*(?:Error|Exception|panic:|FATAL|Traceback)[^\n]*`)
	codeRefPattern = regexp.MustCompile(`\b[\w./-]+\.(?:go|py|ts|tsx|js|rs|java|rb|sql|yaml|yml|proto)(?::\d+)?\b`)
)

// decisionMarkers open sentences that record a choice worth surfacing.
var decisionMarkers = []string{"decided to", "decision:", "we will", "going with", "chose "}

const maxSnippet = 120

// extractEntities pulls structured signals out of captured text.
func extractEntities(chunk datatypes.Chunk) []datatypes.Entity {
	var out []datatypes.Entity
	add := func(t datatypes.EntityType, value, snippet string, confidence float64) {
		if len(snippet) > maxSnippet {
			snippet = snippet[:maxSnippet]
		}
		out = append(out, datatypes.Entity{
			ChunkID:        chunk.ID,
			ProjectID:      chunk.ProjectID,
			EntityType:     t,
			Value:          value,
			Confidence:     confidence,
			ContextSnippet: strings.TrimSpace(snippet),
		})
	}

	seen := map[string]bool{}
	for _, m := range urlPattern.FindAllString(chunk.Content, -1) {
		m = strings.TrimRight(m, ".,;)")
		if !seen["url:"+m] {
			seen["url:"+m] = true
			add(datatypes.EntityURL, m, m, 1.0)
		}
	}
	for _, m := range errorPattern.FindAllString(chunk.Content, -1) {
		line := strings.TrimSpace(m)
		if line != "" && !seen["err:"+line] {
			seen["err:"+line] = true
			add(datatypes.EntityError, line, line, 0.8)
		}
	}
	for _, m := range codeRefPattern.FindAllString(chunk.Content, -1) {
		if !seen["ref:"+m] {
			seen["ref:"+m] = true
			add(datatypes.EntityCodeRef, m, m, 0.9)
		}
	}

	lower := strings.ToLower(chunk.Content)
	for _, marker := range decisionMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		end := idx + maxSnippet
		if end > len(chunk.Content) {
			end = len(chunk.Content)
		}
		if nl := strings.IndexByte(chunk.Content[idx:end], '\n'); nl >= 0 {
			end = idx + nl
		}
		sentence := strings.TrimSpace(chunk.Content[idx:end])
		if !seen["dec:"+sentence] {
			seen["dec:"+sentence] = true
			add(datatypes.EntityDecision, sentence, sentence, 0.6)
		}
	}
	return out
}
