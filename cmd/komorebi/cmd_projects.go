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
	"fmt"
	"log"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
	"github.com/spf13/cobra"
)

func runProjectsList(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	projects, err := gatewayClient().ListProjects(ctx)
	if err != nil {
		log.Fatalf("Error listing projects: %v", err)
	}

	if len(projects) == 0 {
		fmt.Println("No projects yet. Create one with 'komorebi projects create <name>'.")
		return
	}
	for _, p := range projects {
		fmt.Printf("%s  %-24s  %d chunk(s)", p.ID, p.Name, p.ChunkCount)
		if p.Description != "" {
			fmt.Printf("  - %s", p.Description)
		}
		fmt.Println()
	}
}

func runProjectsCreate(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	project, err := gatewayClient().CreateProject(ctx, datatypes.ProjectCreate{
		Name:        args[0],
		Description: projectDescription,
	})
	if err != nil {
		log.Fatalf("Error creating project: %v", err)
	}

	fmt.Printf("Created project %s (%s)\n", project.Name, project.ID)
}
