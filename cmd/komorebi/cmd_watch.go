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
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/komorebi/cmd/komorebi/config"
	"github.com/AleutianAI/komorebi/pkg/logging"
	"github.com/AleutianAI/komorebi/services/capture"
	"github.com/spf13/cobra"
)

func runWatch(cmd *cobra.Command, args []string) {
	dir := logging.ExpandHome(config.Global.Watch.Dir)
	if len(args) > 0 {
		dir = logging.ExpandHome(args[0])
	}
	project := config.Global.Watch.ProjectID
	if watchProject != "" {
		project = watchProject
	}

	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Global.Logging.Level),
		LogDir:  logging.ExpandHome(config.Global.Logging.Dir),
		Service: "komorebi-watch",
		JSON:    config.Global.Logging.JSON,
	})
	if err != nil {
		log.Fatalf("Error initializing logging: %v", err)
	}
	defer logger.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("Error creating watch directory %s: %v", dir, err)
	}

	watcher, err := capture.New(dir, gatewayClient(), &capture.Options{
		ProjectID: project,
		Logger:    logger.Logger,
	})
	if err != nil {
		log.Fatalf("Error creating watcher: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watcher.Start(ctx); err != nil {
		log.Fatalf("Error watching %s: %v", dir, err)
	}
	fmt.Printf("Watching %s (drop .md or .txt files to capture them). Ctrl-C to stop.\n", dir)

	<-ctx.Done()
	watcher.Stop()
	fmt.Println("\nWatcher stopped.")
}
