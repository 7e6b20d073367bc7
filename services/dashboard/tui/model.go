// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui renders the live dashboard in the terminal.
//
// # Description
//
// This package implements the interactive dashboard using bubbletea.
// It reads engine containers, never mutates them directly; all writes
// go through engine methods, and container subscriptions feed changes
// back in as messages.
//
// # Thread Safety
//
// TUI state lives inside the bubbletea event loop and must not be
// touched from other goroutines. Container subscriptions only call
// Program.Send, which is safe from any goroutine.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/komorebi/services/dashboard"
	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
	"github.com/AleutianAI/komorebi/services/dashboard/dispatch"
	"github.com/AleutianAI/komorebi/services/dashboard/push"
	"github.com/AleutianAI/komorebi/services/dashboard/store"
)

// actionTimeout bounds engine calls issued from key handlers.
const actionTimeout = 15 * time.Second

// noticeTTL is how long a footer notification stays visible.
const noticeTTL = 5 * time.Second

// =============================================================================
// Messages
// =============================================================================

// storeUpdatedMsg signals that an engine container changed.
type storeUpdatedMsg struct{}

// noticeMsg carries a dispatcher notification into the footer.
type noticeMsg dispatch.Notification

// actionDoneMsg reports the outcome of a capture, delete, or search.
type actionDoneMsg struct {
	notice string
	err    error
}

// tickMsg refreshes the connection badge once per second.
type tickMsg time.Time

// =============================================================================
// Mode
// =============================================================================

// inputMode determines where keystrokes go.
type inputMode int

const (
	// modeBrowse navigates the chunk list.
	modeBrowse inputMode = iota

	// modeCapture types a new note into the input field.
	modeCapture

	// modeSearch types a search query into the input field.
	modeSearch
)

// =============================================================================
// List items
// =============================================================================

type chunkItem struct {
	chunk datatypes.Chunk
}

func (i chunkItem) Title() string {
	title := strings.ReplaceAll(i.chunk.Content, "\n", " ")
	if len(title) > 64 {
		title = title[:64] + "..."
	}
	return title
}

func (i chunkItem) Description() string {
	desc := string(i.chunk.Status)
	if len(i.chunk.Tags) > 0 {
		desc += "  " + strings.Join(i.chunk.Tags, ", ")
	}
	if i.chunk.ProjectID != "" {
		desc += "  project:" + i.chunk.ProjectID
	}
	return desc
}

func (i chunkItem) FilterValue() string {
	return i.chunk.Content + " " + strings.Join(i.chunk.Tags, " ")
}

// =============================================================================
// Model
// =============================================================================

// Model is the bubbletea model for the dashboard.
type Model struct {
	engine *dashboard.Engine

	chunkList list.Model
	input     textinput.Model
	mode      inputMode

	// searching pins the list to the latest search results instead of
	// the live chunk collection.
	searching   bool
	searchQuery string

	stats datatypes.AggregateStats

	notice   string
	noticeAt time.Time

	width  int
	height int
	ready  bool
}

// NewModel builds the dashboard model around a started engine.
func NewModel(engine *dashboard.Engine) Model {
	delegate := list.NewDefaultDelegate()
	chunkList := list.New(nil, delegate, 0, 0)
	chunkList.Title = "Inbox"
	chunkList.SetShowStatusBar(false)
	chunkList.SetFilteringEnabled(false)
	chunkList.SetShowHelp(false)

	input := textinput.New()
	input.CharLimit = 4096

	m := Model{
		engine:    engine,
		chunkList: chunkList,
		input:     input,
	}
	m.reloadFromStore()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chunkList.SetSize(msg.Width, msg.Height-headerHeight-footerHeight)
		m.ready = true
		return m, nil

	case storeUpdatedMsg:
		m.reloadFromStore()
		return m, nil

	case noticeMsg:
		m.notice = msg.Message
		m.noticeAt = time.Now()
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.notice = "error: " + msg.err.Error()
		} else {
			m.notice = msg.notice
		}
		m.noticeAt = time.Now()
		return m, nil

	case tickMsg:
		if m.notice != "" && time.Since(m.noticeAt) > noticeTTL {
			m.notice = ""
		}
		return m, tick()

	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.handleInputKey(msg)
		}
		return m.handleBrowseKey(msg)
	}

	var cmd tea.Cmd
	m.chunkList, cmd = m.chunkList.Update(msg)
	return m, cmd
}

func (m Model) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "c":
		m.mode = modeCapture
		m.input.Placeholder = "capture a note..."
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "/":
		m.mode = modeSearch
		m.input.Placeholder = "search..."
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "esc":
		if m.searching {
			m.searching = false
			m.searchQuery = ""
			m.reloadFromStore()
		}
		return m, nil

	case "d":
		if item, ok := m.chunkList.SelectedItem().(chunkItem); ok {
			return m, m.deleteChunk(item.chunk.ID)
		}
		return m, nil

	case "r":
		return m, m.refresh()

	case "enter":
		if item, ok := m.chunkList.SelectedItem().(chunkItem); ok {
			m.engine.Select(item.chunk.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.chunkList, cmd = m.chunkList.Update(msg)
	return m, cmd
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = modeBrowse
		m.input.Blur()
		if value == "" {
			return m, nil
		}
		if mode == modeCapture {
			return m, m.capture(value)
		}
		m.searching = true
		m.searchQuery = value
		return m, m.search(value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// Engine actions
// =============================================================================

func (m Model) capture(content string) tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		chunk, err := engine.Capture(ctx, datatypes.ChunkCreate{Content: content, Source: "dashboard"})
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{notice: "captured " + chunk.ID}
	}
}

func (m Model) deleteChunk(id string) tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := engine.Delete(ctx, id); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{notice: "deleted " + id}
	}
}

func (m Model) search(query string) tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		result, err := engine.Search(ctx, query, 50)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{notice: fmt.Sprintf("%d match(es)", result.Total)}
	}
}

func (m Model) refresh() tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := engine.LoadChunks(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := engine.LoadStats(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{notice: "refreshed"}
	}
}

// =============================================================================
// Store sync
// =============================================================================

func (m *Model) reloadFromStore() {
	st := m.engine.Store()

	var chunks []datatypes.Chunk
	if m.searching {
		chunks = st.SearchResults.Get().Items
		m.chunkList.Title = fmt.Sprintf("Search: %s", m.searchQuery)
	} else {
		chunks = st.Chunks.Get()
		m.chunkList.Title = "Inbox"
	}

	items := make([]list.Item, len(chunks))
	for i, chunk := range chunks {
		items[i] = chunkItem{chunk: chunk}
	}
	m.chunkList.SetItems(items)
	m.stats = st.Stats.Get()
}

// =============================================================================
// View
// =============================================================================

const (
	headerHeight = 2
	footerHeight = 3
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.mode != modeBrowse {
		b.WriteString(inputBoxStyle.Render(m.input.View()))
		b.WriteString("\n")
	}
	b.WriteString(m.chunkList.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("komorebi")
	stats := statsStyle.Render(fmt.Sprintf(
		"inbox %d  processed %d  compacted %d  archived %d  total %d",
		m.stats.Inbox, m.stats.Processed, m.stats.Compacted, m.stats.Archived, m.stats.Total,
	))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", stats, "  ", m.renderConnBadge())
}

func (m Model) renderConnBadge() string {
	state := m.engine.PushState()
	switch state {
	case push.StateConnected:
		return connectedBadge.Render("live")
	case push.StateConnecting:
		return connectingBadge.Render("connecting")
	default:
		return disconnectedBadge.Render("offline")
	}
}

func (m Model) renderFooter() string {
	help := helpStyle.Render("c capture  / search  d delete  r refresh  esc back  q quit")
	line := m.notice
	if line == "" {
		if errMsg := m.lastError(); errMsg != "" {
			line = "fetch error: " + errMsg
		}
	}
	if line == "" {
		return help
	}
	return help + "\n" + noticeStyle.Render(line)
}

// lastError surfaces the most recent chunk-fetch failure, if any.
func (m Model) lastError() string {
	return m.engine.Store().LastError.Get()[store.ResourceChunks]
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	connectedBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("42")).
			Padding(0, 1)

	connectingBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("220")).
			Padding(0, 1)

	disconnectedBadge = lipgloss.NewStyle().
				Foreground(lipgloss.Color("255")).
				Background(lipgloss.Color("160")).
				Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("215"))
)
