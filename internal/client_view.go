package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// pre styled colors, all from lipgloss
var (
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	eventBodyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	eventNameStyle     = lipgloss.NewStyle().Bold(true)
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	eventColorPalette  = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model *WatchModel) View() string {
	segments := []string{"Hermes"}
	if model.username != "" {
		segments = append(segments, "User "+model.username)
	} else if model.userID != "" {
		segments = append(segments, "User #"+model.userID)
	}
	segments = append(segments, "Server "+model.baseURL)
	if model.friendsTotal > 0 {
		segments = append(segments, fmt.Sprintf("Friends online %d/%d", model.friendsOnline, model.friendsTotal))
	}
	header := headerStyle.Render(strings.Join(segments, dividerStyle))

	var body string
	if model.ready {
		body = model.viewport.View()
	} else {
		body = model.renderEvents()
	}

	footer := lipgloss.JoinVertical(lipgloss.Left,
		model.statusLine(),
		menuHintStyle.Render("↑/↓ scroll • c clear • q quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (model *WatchModel) statusLine() string {
	switch {
	case model.isConnected:
		return connectedStyle.Render("● Connected")
	case model.connectionErr != nil:
		return errorStyle.Render("Connection error: "+model.connectionErr.Error()) + " " + model.spinner.View()
	default:
		return model.spinner.View() + connectingStyle.Render(" Connecting…")
	}
}

func (model *WatchModel) renderEvents() string {
	if len(model.events) == 0 {
		return systemMessageStyle.Render("Waiting for events…")
	}
	lines := make([]string, 0, len(model.events))
	for _, ev := range model.events {
		lines = append(lines, renderEvent(ev))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderEvent stamps the time, colors the event name and indents
// multi-line bodies so they stay legible.
func renderEvent(ev watchEvent) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", ev.At.Format("15:04:05")))
	if ev.System {
		return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", systemMessageStyle.Render(ev.Summary))
	}
	name := eventNameStyle.Copy().Foreground(colorForEvent(ev.Event)).Render(ev.Event)
	body := eventBodyStyle.Render(strings.ReplaceAll(ev.Summary, "\n", "\n   "))
	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", body)
}

func colorForEvent(name string) lipgloss.Color {
	if name == "" {
		return eventColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return eventColorPalette[sum%len(eventColorPalette)]
}
