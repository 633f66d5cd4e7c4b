// Package report renders loader state as terminal tables.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kingrea/modpath/internal/cache"
	"github.com/kingrea/modpath/internal/module"
	"github.com/kingrea/modpath/internal/pathindex"
)

// Resolution is the outcome of resolving one name.
type Resolution struct {
	Name   string
	Handle *module.Handle
	Err    error
}

// Renderer writes styled tables to w. With NoColor set, tables keep their
// borders but carry no color or emphasis.
type Renderer struct {
	w       io.Writer
	noColor bool

	title  lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
	dim    lipgloss.Style
	bad    lipgloss.Style
	good   lipgloss.Style
	border lipgloss.Style
}

// New returns a renderer writing to w.
func New(w io.Writer, noColor bool) *Renderer {
	if w == nil {
		w = os.Stdout
	}
	r := lipgloss.NewRenderer(w)
	plain := r.NewStyle()
	rend := &Renderer{
		w:       w,
		noColor: noColor,
		title:   plain,
		header:  plain.Padding(0, 1),
		cell:    plain.Padding(0, 1),
		dim:     plain.Padding(0, 1),
		bad:     plain.Padding(0, 1),
		good:    plain.Padding(0, 1),
		border:  plain,
	}
	if !noColor {
		rend.title = plain.Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
		rend.header = rend.header.Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
		rend.dim = rend.dim.Foreground(lipgloss.Color("#888888"))
		rend.bad = rend.bad.Foreground(lipgloss.Color("#FF6B6B"))
		rend.good = rend.good.Foreground(lipgloss.Color("#7BD88F"))
		rend.border = plain.Foreground(lipgloss.Color("#444444"))
	}
	return rend
}

// Index renders the search path index in probe order.
func (r *Renderer) Index(ix pathindex.Index, exts []string) error {
	rows := make([][]string, 0, ix.Len())
	for i, d := range ix.Dirs() {
		rows = append(rows, []string{strconv.Itoa(i + 1), strconv.Itoa(d.Depth), d.Path})
	}
	title := fmt.Sprintf("SEARCH PATHS · %d director%s · %s", ix.Len(), plural(ix.Len(), "y", "ies"), strings.Join(exts, " "))
	if err := r.table(title, []string{"#", "DEPTH", "PATH"}, rows, nil); err != nil {
		return err
	}
	skipped := ix.Skipped()
	if len(skipped) == 0 {
		return nil
	}
	skippedRows := make([][]string, 0, len(skipped))
	for _, sk := range skipped {
		reason := ""
		if sk.Err != nil {
			reason = sk.Err.Error()
		}
		skippedRows = append(skippedRows, []string{sk.Path, reason})
	}
	return r.table("SKIPPED", []string{"PATH", "REASON"}, skippedRows, func(int, int) lipgloss.Style { return r.bad })
}

// Modules renders loaded modules in load order.
func (r *Renderer) Modules(handles []*module.Handle) error {
	rows := make([][]string, 0, len(handles))
	for _, h := range handles {
		rows = append(rows, moduleRow(h))
	}
	return r.table(fmt.Sprintf("LOADED MODULES · %d", len(handles)), []string{"NAME", "VERSION", "MODE", "PATH"}, rows, nil)
}

// Cache renders the resolution cache.
func (r *Renderer) Cache(entries []cache.Entry) error {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{entry.Name, entry.Handle.Name, entry.Handle.Path})
	}
	return r.table(fmt.Sprintf("CACHE · %d", len(entries)), []string{"KEY", "MODULE", "PATH"}, rows, nil)
}

// Resolutions renders the outcome of resolving names. Misses are
// highlighted.
func (r *Renderer) Resolutions(results []Resolution) error {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		if res.Handle == nil {
			reason := "not found"
			if res.Err != nil {
				reason = res.Err.Error()
			}
			rows = append(rows, []string{res.Name, "miss", reason})
			continue
		}
		rows = append(rows, []string{res.Name, "ok", res.Handle.Path})
	}
	styleFor := func(row, _ int) lipgloss.Style {
		if row >= 0 && row < len(results) && results[row].Handle == nil {
			return r.bad
		}
		return r.good
	}
	return r.table("RESOLVE", []string{"NAME", "RESULT", "DETAIL"}, rows, styleFor)
}

// Env renders a path-list environment variable one entry per row.
func (r *Renderer) Env(variable, value string) error {
	var rows [][]string
	for i, entry := range strings.Split(value, string(os.PathListSeparator)) {
		if entry == "" {
			continue
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), entry})
	}
	return r.table(variable, []string{"#", "ENTRY"}, rows, nil)
}

func (r *Renderer) table(title string, headers []string, rows [][]string, styleFor func(row, col int) lipgloss.Style) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.header
			}
			if styleFor != nil {
				return styleFor(row, col)
			}
			if col == 0 {
				return r.cell
			}
			return r.dim
		})
	_, err := fmt.Fprintf(r.w, "%s\n%s\n", r.title.Render(title), t.String())
	return err
}

func moduleRow(h *module.Handle) []string {
	version := h.Manifest.Version
	if version == "" {
		version = "-"
	}
	return []string{h.Name, version, string(h.Mode), h.Path}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
