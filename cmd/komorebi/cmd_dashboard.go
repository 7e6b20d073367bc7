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
	"log"
	"path/filepath"

	"github.com/AleutianAI/komorebi/cmd/komorebi/config"
	"github.com/AleutianAI/komorebi/pkg/logging"
	"github.com/AleutianAI/komorebi/services/dashboard"
	"github.com/AleutianAI/komorebi/services/dashboard/tui"
	"github.com/spf13/cobra"
)

func runDashboard(cmd *cobra.Command, args []string) {
	// The terminal belongs to the TUI, so logs go to file only.
	logDir := logging.ExpandHome(config.Global.Logging.Dir)
	logger, err := logging.New(logging.Config{
		Level:    logging.ParseLevel(config.Global.Logging.Level),
		LogDir:   logDir,
		Service:  "komorebi-dashboard",
		FileOnly: true,
	})
	if err != nil {
		log.Fatalf("Error initializing logging: %v", err)
	}
	defer logger.Close()

	engine, err := dashboard.New(dashboard.Config{
		BaseURL:   config.Global.Gateway.URL,
		CachePath: filepath.Join(logging.ExpandHome(config.Global.Cache.Dir), "snapshots"),
		Logger:    logger.Logger,
	})
	if err != nil {
		log.Fatalf("Error creating sync engine: %v", err)
	}

	engine.Start()
	defer engine.Stop()

	if err := tui.Run(engine); err != nil {
		log.Fatalf("Dashboard error: %v", err)
	}
}
