// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/komorebi/services/dashboard"
	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
	"github.com/AleutianAI/komorebi/services/dashboard/dispatch"
	"github.com/AleutianAI/komorebi/services/dashboard/store"
)

// Run starts the dashboard program and blocks until the user quits.
// The engine must already be started; Run does not stop it.
func Run(engine *dashboard.Engine) error {
	program := tea.NewProgram(NewModel(engine), tea.WithAltScreen())

	st := engine.Store()
	unsubs := []func(){
		st.Chunks.Subscribe(func([]datatypes.Chunk) {
			program.Send(storeUpdatedMsg{})
		}),
		st.Stats.Subscribe(func(datatypes.AggregateStats) {
			program.Send(storeUpdatedMsg{})
		}),
		st.SearchResults.Subscribe(func(datatypes.SearchResult) {
			program.Send(storeUpdatedMsg{})
		}),
		st.LastError.Subscribe(func(map[store.Resource]string) {
			program.Send(storeUpdatedMsg{})
		}),
		engine.OnNotification(func(n dispatch.Notification) {
			program.Send(noticeMsg(n))
		}),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	_, err := program.Run()
	return err
}
