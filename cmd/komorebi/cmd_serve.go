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
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/komorebi/cmd/komorebi/config"
	"github.com/AleutianAI/komorebi/pkg/logging"
	"github.com/AleutianAI/komorebi/services/gateway"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) {
	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Global.Logging.Level),
		LogDir:  logging.ExpandHome(config.Global.Logging.Dir),
		Service: "komorebi-gateway",
		JSON:    config.Global.Logging.JSON,
	})
	if err != nil {
		log.Fatalf("Error initializing logging: %v", err)
	}
	defer logger.Close()

	addr := config.Global.Gateway.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	dbPath := logging.ExpandHome(config.Global.Gateway.DBPath)
	if serveDBPath != "" {
		dbPath = logging.ExpandHome(serveDBPath)
	}

	srv, err := gateway.New(gateway.Config{
		Addr:   addr,
		DBPath: dbPath,
		Logger: logger.Logger,
	})
	if err != nil {
		log.Fatalf("Error starting gateway: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("gateway listening", "addr", addr, "db", dbPath)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
}
