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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	gatewayURL string // CLI override for gateway.url

	captureProject string
	captureTags    []string
	captureSource  string

	listStatus  string
	listProject string
	listLimit   int

	searchLimit int

	projectDescription string

	serveAddr   string
	serveDBPath string

	watchProject string

	rootCmd = &cobra.Command{
		Use:   "komorebi",
		Short: "A cli for the Komorebi personal knowledge dashboard",
		Long: `Komorebi captures stray notes, chat fragments, and dropped files into
				a local knowledge gateway, and keeps a live dashboard in sync with it.`,
	}

	// --- Capture / Query ---
	captureCmd = &cobra.Command{
		Use:   "capture [content...]",
		Short: "Capture a note into the inbox (reads stdin when no args given)",
		Run:   runCapture, // Defined in cmd_chunks.go
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List captured chunks, newest first",
		Run:   runList, // Defined in cmd_chunks.go
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show chunk counts per lifecycle status",
		Run:   runStats, // Defined in cmd_chunks.go
	}
	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Full-text search over captured chunks",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch, // Defined in cmd_chunks.go
	}

	// --- Projects ---
	projectsCmd = &cobra.Command{
		Use:   "projects",
		Short: "Manage projects that group captured chunks",
		Run:   runProjectsList, // Defined in cmd_projects.go
	}
	projectsCreateCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new project",
		Args:  cobra.ExactArgs(1),
		Run:   runProjectsCreate, // Defined in cmd_projects.go
	}

	// --- Long-running surfaces ---
	dashboardCmd = &cobra.Command{
		Use:   "dashboard",
		Short: "Open the live terminal dashboard",
		Run:   runDashboard, // Defined in cmd_dashboard.go
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the local knowledge gateway (REST + SSE)",
		Run:   runServe, // Defined in cmd_serve.go
	}
	watchCmd = &cobra.Command{
		Use:   "watch [directory]",
		Short: "Watch a drop directory and capture files placed in it",
		Run:   runWatch, // Defined in cmd_watch.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "",
		"Gateway base URL (overrides gateway.url from komorebi.yaml)")

	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureProject, "project", "p", "", "Project ID to file the chunk under")
	captureCmd.Flags().StringSliceVarP(&captureTags, "tags", "t", nil, "Comma-separated tags (lowercase, hyphenated)")
	captureCmd.Flags().StringVar(&captureSource, "source", "cli", "Capture source recorded on the chunk")

	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Filter by status (inbox, processed, compacted, archived)")
	listCmd.Flags().StringVarP(&listProject, "project", "p", "", "Filter by project ID")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of chunks to show")

	rootCmd.AddCommand(statsCmd)

	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")

	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCreateCmd.Flags().StringVarP(&projectDescription, "description", "d", "", "Short project description")

	rootCmd.AddCommand(dashboardCmd)

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides gateway.addr)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite database path (overrides gateway.db_path)")

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchProject, "project", "p", "", "Project ID applied to captured files")
}
