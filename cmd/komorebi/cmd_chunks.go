// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/komorebi/cmd/komorebi/config"
	"github.com/AleutianAI/komorebi/pkg/validation"
	"github.com/AleutianAI/komorebi/services/dashboard/client"
	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
	"github.com/spf13/cobra"
)

// commandTimeout bounds one-shot CLI requests against the gateway.
const commandTimeout = 30 * time.Second

func gatewayClient() *client.Client {
	return client.New(config.Global.Gateway.URL)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

func runCapture(cmd *cobra.Command, args []string) {
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Error reading stdin: %v", err)
		}
		content = string(data)
	}

	content, err := validation.SanitizeContent(content)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	tags, err := validation.SanitizeTags(captureTags)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	chunk, err := gatewayClient().CaptureChunk(ctx, datatypes.ChunkCreate{
		Content:   content,
		ProjectID: captureProject,
		Tags:      tags,
		Source:    captureSource,
	})
	if err != nil {
		log.Fatalf("Error capturing chunk: %v", err)
	}

	fmt.Printf("Captured %s (%d tokens)\n", chunk.ID, chunk.TokenCount)
}

func runList(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	chunks, err := gatewayClient().ListChunks(ctx, &client.ListOptions{
		Status:    datatypes.ChunkStatus(listStatus),
		ProjectID: listProject,
		Limit:     listLimit,
	})
	if err != nil {
		log.Fatalf("Error listing chunks: %v", err)
	}

	if len(chunks) == 0 {
		fmt.Println("No chunks found.")
		return
	}
	for _, chunk := range chunks {
		printChunkLine(chunk)
	}
}

func runStats(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	stats, err := gatewayClient().GetStats(ctx)
	if err != nil {
		log.Fatalf("Error fetching stats: %v", err)
	}

	fmt.Printf("Inbox:     %d\n", stats.Inbox)
	fmt.Printf("Processed: %d\n", stats.Processed)
	fmt.Printf("Compacted: %d\n", stats.Compacted)
	fmt.Printf("Archived:  %d\n", stats.Archived)
	fmt.Println("---")
	fmt.Printf("Total:     %d\n", stats.Total)
}

func runSearch(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")

	ctx, cancel := commandContext()
	defer cancel()

	result, err := gatewayClient().SearchChunks(ctx, query, searchLimit)
	if err != nil {
		log.Fatalf("Error searching: %v", err)
	}

	if result.Total == 0 {
		fmt.Printf("No matches for %q.\n", query)
		return
	}
	fmt.Printf("%d match(es) for %q:\n", result.Total, query)
	for _, chunk := range result.Items {
		printChunkLine(chunk)
	}
}

func printChunkLine(chunk datatypes.Chunk) {
	preview := strings.ReplaceAll(chunk.Content, "\n", " ")
	if len(preview) > 72 {
		preview = preview[:72] + "..."
	}
	tags := ""
	if len(chunk.Tags) > 0 {
		tags = "  [" + strings.Join(chunk.Tags, ", ") + "]"
	}
	fmt.Printf("%s  %-9s  %s%s\n", chunk.ID, chunk.Status, preview, tags)
}
