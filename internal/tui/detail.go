package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Kll222/tmdb-tracker/internal/media"
	"github.com/Kll222/tmdb-tracker/internal/util"
)

// detailView renders every field of r inside a bordered box.
func detailView(r *media.Record, width int) string {
	if r == nil {
		return ""
	}
	inner := max(width-borderStyle.GetHorizontalFrameSize(), 20)
	valueWidth := max(inner-labelStyle.GetWidth(), 10)

	field := func(label, value string) string {
		wrapped := lipgloss.NewStyle().Width(valueWidth).Render(util.OrDash(value))
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), wrapped)
	}

	rows := []string{
		field("ID", strconv.FormatInt(r.ID, 10)),
		field("Title", r.Title),
		field("Released", r.ReleaseDate),
		field("Type", string(r.MediaType)),
		field("Region", r.Region),
		field("Genres", r.Genres),
		field("Poster", r.PosterURL),
		"",
		field("Overview", r.Overview),
	}
	return borderStyle.Width(inner).Render(strings.Join(rows, "\n"))
}
