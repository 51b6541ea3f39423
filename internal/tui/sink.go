// Package tui renders subscription state to the terminal. It is the
// presentation sink for the state machine: the engine publishes snapshots,
// this package decides how they look.
package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/thenewspaper/newsroom-cli/internal/subscription"
)

var (
	pillActive = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42"))
	pillInactive = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214"))
	pillError = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160"))
	pillNeutral = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("0")).Background(lipgloss.Color("250"))

	muted = lipgloss.NewStyle().Faint(true)
)

// ConsoleSink writes a status line for every state transition.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink creates a sink writing to the given stream.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

// Publish implements subscription.Sink.
func (s *ConsoleSink) Publish(snap subscription.Snapshot) {
	pill, text := describe(snap)

	email := snap.Email
	if email == "" {
		email = "Not logged in"
	}

	fmt.Fprintf(s.out, "%s  %s\n", pill, text)
	fmt.Fprintf(s.out, "%s\n", muted.Render(email))
	if snap.Status == subscription.StatusActive && snap.RenewsAt != nil {
		fmt.Fprintf(s.out, "%s\n", muted.Render("Renews around "+snap.RenewsAt.Format("Jan 2, 2006")+"."))
	}
	if snap.Message != "" && snap.Status == subscription.StatusError {
		fmt.Fprintf(s.out, "%s\n", muted.Render(snap.Message))
	}
}

// describe maps a snapshot to the status-pill label and body text shown on
// the billing page.
func describe(snap subscription.Snapshot) (string, string) {
	switch snap.Status {
	case subscription.StatusActive:
		return pillActive.Render("Active"), "Active subscription. You'll receive the full daily briefing."
	case subscription.StatusInactive:
		return pillInactive.Render("Not subscribed"), "No active subscription found. You're on the free preview."
	case subscription.StatusLoggedOut:
		return pillInactive.Render("Login required"), "You must be logged in to view your subscription."
	case subscription.StatusError:
		return pillError.Render("Error"), "Could not load subscription status."
	default:
		return pillNeutral.Render("Checking"), "Checking subscription status..."
	}
}
