package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/campuslink/network/pkg/client"
	"github.com/campuslink/network/pkg/monitoring"
	"github.com/campuslink/network/pkg/realtime"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

type statusResponse struct {
	Health *client.HealthStatus `json:"health"`
	System monitoring.Snapshot  `json:"system"`
}

type statusMsg struct {
	status   statusResponse
	channels []realtime.ChannelStatus
	resumes  []realtime.ResumeRecord
	err      error
}

type tickMsg time.Time

type model struct {
	addr    string
	http    *http.Client
	table   table.Model
	status  statusResponse
	resumes []realtime.ResumeRecord
	err     error
}

func newModel(addr string) model {
	columns := []table.Column{
		{Title: "Channel", Width: 38},
		{Title: "State", Width: 12},
		{Title: "Subs", Width: 5},
		{Title: "Tables", Width: 24},
		{Title: "Last Error", Width: 30},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	return model{
		addr:  addr,
		http:  &http.Client{Timeout: 3 * time.Second},
		table: t,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch, tick())
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) fetch() tea.Msg {
	var msg statusMsg
	if err := m.getJSON("/v1/status", &msg.status); err != nil {
		msg.err = err
		return msg
	}
	if err := m.getJSON("/v1/realtime/channels", &msg.channels); err != nil {
		msg.err = err
		return msg
	}
	if err := m.getJSON("/v1/realtime/resumes", &msg.resumes); err != nil {
		msg.err = err
	}
	return msg
}

func (m model) getJSON(path string, out interface{}) error {
	resp, err := m.http.Get(m.addr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}

	case tickMsg:
		return m, tea.Batch(m.fetch, tick())

	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.resumes = msg.resumes
			rows := make([]table.Row, len(msg.channels))
			for i, ch := range msg.channels {
				lastErr := ch.LastError
				if len(lastErr) > 30 {
					lastErr = lastErr[:27] + "..."
				}
				rows[i] = table.Row{
					ch.Name,
					string(ch.State),
					fmt.Sprintf("%d", ch.Subscribers),
					strings.Join(ch.Tables, ","),
					lastErr,
				}
			}
			m.table.SetRows(rows)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("campuslink realtime monitor"))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render(m.addr))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("fetch failed: " + m.err.Error()))
		b.WriteString("\n\n")
	}

	if h := m.status.Health; h != nil {
		conn := badStyle.Render("disconnected")
		if h.Connected {
			conn = okStyle.Render("connected")
		}
		signedIn := badStyle.Render("signed out")
		if h.SignedIn {
			signedIn = okStyle.Render("signed in")
		}
		b.WriteString(fmt.Sprintf("%s  %s  channels=%d failed=%d  cpu=%.1f%% mem=%.1f%%\n\n",
			conn, signedIn, h.Channels, h.FailedChannels,
			m.status.System.CPUPercent, m.status.System.MemoryPercent))
	}

	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("recent resumes"))
	b.WriteString("\n")
	if len(m.resumes) == 0 {
		b.WriteString(labelStyle.Render("  none yet"))
		b.WriteString("\n")
	}
	start := 0
	if len(m.resumes) > 5 {
		start = len(m.resumes) - 5
	}
	for _, r := range m.resumes[start:] {
		line := fmt.Sprintf("  %s  channels=%d failed=%d refreshed=%v",
			r.At.Format("15:04:05"), r.Channels, r.Failed, r.Refreshed)
		if r.Skipped != "" {
			line += "  skipped: " + r.Skipped
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	b.WriteString(labelStyle.Render("q quit · r refresh"))
	b.WriteString("\n")
	return b.String()
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8090", "campusd status server address")
	flag.Parse()

	p := tea.NewProgram(newModel(*addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "rtmon: %v\n", err)
		os.Exit(1)
	}
}
