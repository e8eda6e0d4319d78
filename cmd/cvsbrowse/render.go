package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/emilianohg/cvsbrowse/internal/changes"
	"github.com/emilianohg/cvsbrowse/internal/models"
	"github.com/emilianohg/cvsbrowse/internal/revision"
	"github.com/emilianohg/cvsbrowse/internal/zipper"
)

const dateLayout = "2006-01-02 15:04:05"

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	authorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	branchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func renderChangeList(cl *changes.ChangeList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s  %s\n",
		dimStyle.Render(fmt.Sprintf("#%d", cl.Number)),
		cl.CommitDate.Local().Format(dateLayout),
		authorStyle.Render(cl.Author),
		branchStyle.Render(cl.BranchName()),
	)
	for _, line := range strings.Split(strings.TrimSpace(cl.Message), "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	for _, f := range cl.Files {
		fmt.Fprintf(&b, "      %s %s\n", dimStyle.Render(f.Revision.String()), f.Path)
	}
	return b.String()
}

func renderGroupResult(r zipper.GroupResult) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(r.Group.Key))
	b.WriteString("\n")
	for _, loc := range r.Group.Locations {
		fmt.Fprintf(&b, "%s\n", dimStyle.Render("  "+loc.RootPath))
	}
	if len(r.ChangeLists) == 0 {
		b.WriteString(dimStyle.Render("  no committed changes"))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString("\n")
	for _, cl := range r.ChangeLists {
		b.WriteString(renderChangeList(cl))
		b.WriteString("\n")
	}
	return b.String()
}

func renderLocation(loc models.Location) string {
	root := loc.CvsRoot
	if loc.IsOffline() {
		root = warningStyle.Render("offline")
	}
	return fmt.Sprintf("%s  %s  %s  %s",
		dimStyle.Render(fmt.Sprintf("%3d", loc.ID)),
		loc.RootPath,
		loc.Module,
		root,
	)
}

func renderGroup(g zipper.Group) string {
	lines := []string{titleStyle.Render(g.Key)}
	for _, loc := range g.Locations {
		lines = append(lines, renderLocation(loc))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderAvailability(available bool, local revision.Number) string {
	if available {
		return authorStyle.Render(fmt.Sprintf("Available in the local checkout (%s).", local))
	}
	if local.IsZero() {
		return warningStyle.Render("Not checked out locally.")
	}
	return warningStyle.Render(fmt.Sprintf("Not in the local checkout (%s), run cvs update.", local))
}

func renderError(err error) string {
	return errorStyle.Render(fmt.Sprintf("Error: %v", err))
}
