// Package term renders game output for the terminal binary. Everything
// here is static lipgloss styling; the readline loop in cmd/dustward
// owns input.
package term

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kavrell/dustward/internal/game"
	"github.com/kavrell/dustward/internal/prompt"
)

const panelWidth = 76

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			MarginBottom(1)

	narrationStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(panelWidth)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	rollStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("81"))

	clockStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("108"))

	diagHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	diagDroppedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("203"))
)

// strainColors maps Tier.String() values to badge colors.
var strainColors = map[string]lipgloss.Color{
	"normal": lipgloss.Color("70"),
	"I":      lipgloss.Color("178"),
	"II":     lipgloss.Color("208"),
	"III":    lipgloss.Color("196"),
}

// Title renders the startup banner.
func Title(text string) string {
	return titleStyle.Render(text)
}

// Narration renders the narrator's reply as a bordered panel with the
// in-game clock underneath.
func Narration(text, clockStamp string) string {
	panel := narrationStyle.Render(strings.TrimSpace(text))
	return panel + "\n" + clockStyle.Render(clockStamp)
}

// System renders informational output (command results, listings).
func System(text string) string {
	return systemStyle.Render(strings.TrimSpace(text))
}

// Error renders an error line.
func Error(text string) string {
	return errorStyle.Render(text)
}

// RollResult renders a dice roll.
func RollResult(r *game.Roll) string {
	return rollStyle.Render(fmt.Sprintf("%s → %v = %d", r.Notation, r.Dice, r.Total))
}

// StrainBadge renders the current strain tier as a colored badge.
func StrainBadge(tier string) string {
	color, ok := strainColors[tier]
	if !ok {
		color = lipgloss.Color("245")
	}
	badge := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("232")).
		Background(color).
		Padding(0, 1)
	return badge.Render("strain " + tier)
}

// Diagnostics renders a pack breakdown table: one row per configured
// section, with dropped sections called out, then the totals line and
// any packer notes.
func Diagnostics(pack *prompt.PromptPack) string {
	var b strings.Builder
	b.WriteString(diagHeaderStyle.Render(fmt.Sprintf("%-16s %9s %9s", "section", "used", "budget")))
	b.WriteByte('\n')
	for _, s := range pack.Sections {
		if s.Dropped {
			b.WriteString(diagDroppedStyle.Render(fmt.Sprintf("%-16s %9s %9d", s.Name, "dropped", s.Budget)))
		} else {
			b.WriteString(fmt.Sprintf("%-16s %9d %9d", s.Name, s.Used, s.Budget))
		}
		b.WriteByte('\n')
	}
	b.WriteString(fmt.Sprintf("%-16s %9d %9d  ", "total", pack.TotalUsed, pack.Requested))
	b.WriteString(StrainBadge(pack.Tier.String()))
	for _, note := range pack.Notes {
		b.WriteByte('\n')
		b.WriteString(systemStyle.Render("note: " + note))
	}
	return b.String()
}
