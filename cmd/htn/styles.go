package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"htnplan/internal/domain"
	"htnplan/internal/plan"
)

var (
	accent = lipgloss.Color("#8BC34A")
	muted  = lipgloss.Color("#6B7280")
	warn   = lipgloss.Color("#F59E0B")
	danger = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(warn)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(danger)
	stepStyle  = lipgloss.NewStyle().PaddingLeft(2)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1)
)

// renderPlan renders plan n (1-based) with numbered steps.
func renderPlan(n int, p *plan.Plan, d *domain.Domain) string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(fmt.Sprintf("Plan %d", n)),
		mutedStyle.Render(fmt.Sprintf("  cost %s", p.Cost.String())),
	)
	lines := []string{header}
	steps := p.StepStrings(d)
	if len(steps) == 0 {
		lines = append(lines, stepStyle.Render(mutedStyle.Render("(empty plan)")))
	}
	for i, s := range steps {
		lines = append(lines, stepStyle.Render(fmt.Sprintf("%d. %s", i+1, s)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderKV renders aligned key/value rows inside a box.
func renderKV(title string, rows [][2]string) string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title))
	for _, r := range rows {
		sb.WriteString("\n")
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("%-*s", width, r[0])))
		sb.WriteString("  ")
		sb.WriteString(r[1])
	}
	return boxStyle.Render(sb.String())
}
