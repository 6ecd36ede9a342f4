package actions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"repl-toolkit/keys"
)

const (
	defaultHelpWidth = 80
	maxLeftColumn    = 30
)

// Generator creates help content from the action registry
type Generator struct {
	registry *Registry
	width    int

	// Styles for formatting help content
	titleStyle  lipgloss.Style
	headerStyle lipgloss.Style
	keyStyle    lipgloss.Style
	descStyle   lipgloss.Style
	sepStyle    lipgloss.Style
	warnStyle   lipgloss.Style
}

// NewGenerator creates a new help generator
func NewGenerator(registry *Registry) *Generator {
	return &Generator{
		registry:    registry,
		width:       defaultHelpWidth,
		titleStyle:  lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("#7D56F4")),
		headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#36CFC9")),
		keyStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFCC00")),
		descStyle:   lipgloss.NewStyle(),
		sepStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#3C3C3C")),
		warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")),
	}
}

// WithWidth sets the wrap width.
func (g *Generator) WithWidth(width int) *Generator {
	if width > 0 {
		g.width = width
	}
	return g
}

type helpRow struct {
	left  string
	desc  string
	extra string
}

// GenerateHelp creates the help screen listing every visible action by category.
func (g *Generator) GenerateHelp() string {
	var content strings.Builder
	content.WriteString(g.titleStyle.Render("Available Actions"))
	content.WriteString("\n")

	sections := 0
	for _, category := range g.registry.Categories() {
		if IsHiddenCategory(category) {
			continue
		}
		var rows []helpRow
		for _, a := range g.registry.ListActions(category) {
			// ListActions("") returns every action.
			if a.Hidden || a.Category != category {
				continue
			}
			rows = append(rows, g.actionRow(a))
		}
		if len(rows) == 0 {
			continue
		}

		content.WriteString("\n")
		name := string(category)
		if name == "" {
			name = "Other"
		}
		content.WriteString(g.headerStyle.Render(name + ":"))
		content.WriteString("\n")
		content.WriteString(g.formatRows(rows))
		sections++
	}

	if sections == 0 {
		return g.titleStyle.Render("No actions available")
	}

	content.WriteString("\n")
	content.WriteString(g.sepStyle.Render(fmt.Sprintf("Use %shelp <action|command> for details, %sshortcuts for keys.",
		g.registry.Prefix(), g.registry.Prefix())))
	return content.String()
}

func (g *Generator) actionRow(a Action) helpRow {
	left := a.Command
	if a.CommandUsage != "" {
		left = a.CommandUsage
	}
	if len(a.Keys) > 0 {
		labels := keyLabels(a.Keys)
		if left == "" {
			left = strings.Join(labels, ", ")
		} else {
			left += " (" + strings.Join(labels, ", ") + ")"
		}
	}
	if left == "" {
		left = a.Name
	}

	row := helpRow{left: left, desc: a.Description}
	if a.Disabled {
		row.extra = "(disabled)"
	}
	return row
}

// GenerateActionHelp creates the detail view for a single action.
func (g *Generator) GenerateActionHelp(a Action) string {
	var content strings.Builder
	content.WriteString(g.titleStyle.Render(a.Name))
	content.WriteString("\n")
	if a.Description != "" {
		content.WriteString(g.wrap(a.Description, g.width, 0))
		content.WriteString("\n")
	}
	content.WriteString("\n")

	var rows []helpRow
	if a.Command != "" {
		usage := a.CommandUsage
		if usage == "" {
			usage = a.Command
		}
		rows = append(rows, helpRow{left: "Usage", desc: usage})
	}
	if len(a.Keys) > 0 {
		desc := strings.Join(keyLabels(a.Keys), ", ")
		if a.KeysDescription != "" {
			desc += " - " + a.KeysDescription
		}
		rows = append(rows, helpRow{left: "Shortcuts", desc: desc})
	}
	if a.Category != "" {
		rows = append(rows, helpRow{left: "Category", desc: string(a.Category)})
	}
	if a.RequiresBackend {
		rows = append(rows, helpRow{left: "Requires", desc: "a connected backend"})
	}
	if a.Disabled {
		rows = append(rows, helpRow{left: "Status", extra: "disabled"})
	}
	content.WriteString(g.formatRows(rows))
	return strings.TrimRight(content.String(), "\n")
}

// GenerateShortcuts lists action shortcuts followed by the editor's own keys.
func (g *Generator) GenerateShortcuts() string {
	var content strings.Builder
	content.WriteString(g.titleStyle.Render("Keyboard Shortcuts"))
	content.WriteString("\n")

	bound := g.registry.Shortcuts()
	specs := make([]string, 0, len(bound))
	for k := range bound {
		specs = append(specs, k)
	}
	sort.Strings(specs)

	var rows []helpRow
	for _, k := range specs {
		a, ok := g.registry.Get(bound[k])
		if !ok || a.Hidden {
			continue
		}
		desc := a.KeysDescription
		if desc == "" {
			desc = a.Description
		}
		row := helpRow{left: keys.Label(k), desc: desc}
		if a.Disabled {
			row.extra = "(disabled)"
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 {
		content.WriteString("\n")
		content.WriteString(g.headerStyle.Render("Actions:"))
		content.WriteString("\n")
		content.WriteString(g.formatRows(rows))
	}

	rows = rows[:0]
	for _, b := range keys.EditorBindings() {
		rows = append(rows, helpRow{left: b.Keys, desc: b.Description})
	}
	content.WriteString("\n")
	content.WriteString(g.headerStyle.Render("Editor:"))
	content.WriteString("\n")
	content.WriteString(g.formatRows(rows))
	return strings.TrimRight(content.String(), "\n")
}

// formatRows aligns the left column and wraps descriptions under the right one.
func (g *Generator) formatRows(rows []helpRow) string {
	col := 0
	for _, r := range rows {
		if w := runewidth.StringWidth(r.left); w > col {
			col = w
		}
	}
	if col > maxLeftColumn {
		col = maxLeftColumn
	}

	indent := 2 + col + 3
	descWidth := g.width - indent
	if descWidth < 20 {
		descWidth = 20
	}

	var content strings.Builder
	for _, r := range rows {
		cell := r.left
		if runewidth.StringWidth(cell) > col {
			cell = truncate.StringWithTail(cell, uint(col), "…")
		}
		left := g.keyStyle.Render(cell)
		padding := strings.Repeat(" ", max(0, col-ansi.PrintableRuneWidth(left)))

		line := fmt.Sprintf("  %s%s - %s", left, padding, g.descStyle.Render(g.wrap(r.desc, descWidth, indent)))
		if r.extra != "" {
			line += " " + g.warnStyle.Render(r.extra)
		}
		content.WriteString(line)
		content.WriteString("\n")
	}
	return content.String()
}

// wrap word-wraps text to width, indenting continuation lines by indent columns.
func (g *Generator) wrap(text string, width, indent int) string {
	wrapped := wordwrap.String(text, width)
	if indent == 0 {
		return wrapped
	}
	return strings.ReplaceAll(wrapped, "\n", "\n"+strings.Repeat(" ", indent))
}

func keyLabels(specs []string) []string {
	labels := make([]string, len(specs))
	for i, k := range specs {
		labels[i] = keys.Label(k)
	}
	return labels
}
