// Package console prints the human-facing output of a run: the banner,
// section headers, per-test progress, warnings and fatal errors with
// numbered advice. Logs go elsewhere; everything here is meant to be read
// by the person running the suite.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// DefaultWidth is the line width of dividers, centering and wrapping.
const DefaultWidth = 80

// Theme holds the styles used for output.
type Theme struct {
	Bold    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

func newTheme(r *lipgloss.Renderer) Theme {
	return Theme{
		Bold:    r.NewStyle().Bold(true),
		Success: r.NewStyle().Foreground(lipgloss.Color("34")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		Error:   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("242")),
	}
}

// Console writes formatted blocks to a writer. Each call writes its whole
// block at once, so concurrent callers never interleave lines.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	width int
	theme Theme
}

// New creates a Console writing to w. Colors are used only when w is a
// terminal that supports them.
func New(w io.Writer) *Console {
	return &Console{
		w:     w,
		width: DefaultWidth,
		theme: newTheme(lipgloss.NewRenderer(w)),
	}
}

// block accumulates lines before they are written.
type block struct {
	c  *Console
	sb strings.Builder
}

func (c *Console) block() *block { return &block{c: c} }

func (b *block) line(s string) *block {
	b.sb.WriteString(s)
	b.sb.WriteByte('\n')
	return b
}

func (b *block) blank() *block { return b.line("") }

func (b *block) divider() *block { return b.line(strings.Repeat("=", b.c.width)) }

func (b *block) subdivider() *block { return b.line(strings.Repeat("-", b.c.width)) }

func (b *block) centered(s string, style lipgloss.Style) *block {
	pad := (b.c.width - runewidth.StringWidth(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return b.line(strings.Repeat(" ", pad) + style.Render(s))
}

// wrapped writes s wrapped on spaces at the console width.
func (b *block) wrapped(s string) *block {
	for _, l := range wrap(s, b.c.width) {
		b.line(l)
	}
	return b
}

func (b *block) advice(items []string) *block {
	if len(items) == 0 {
		return b
	}
	b.line("ADVICE:")
	for i, item := range items {
		prefix := fmt.Sprintf("  %d. ", i+1)
		indent := strings.Repeat(" ", runewidth.StringWidth(prefix))
		for j, l := range wrap(item, b.c.width-len(indent)) {
			if j == 0 {
				b.line(prefix + l)
			} else {
				b.line(indent + l)
			}
		}
	}
	return b
}

func (b *block) flush() {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	_, _ = io.WriteString(b.c.w, b.sb.String())
}

// Banner prints the program banner.
func (c *Console) Banner() {
	c.block().
		divider().
		centered("TI-84 Plus CE SDK Automated Test Framework", c.theme.Bold).
		divider().
		flush()
}

// Section prints a centered upper-case section header between dividers.
func (c *Console) Section(name string) {
	c.block().
		blank().
		subdivider().
		centered(strings.ToUpper(name), c.theme.Bold).
		subdivider().
		flush()
}

// Heading prints a title followed by a subdivider.
func (c *Console) Heading(title string) {
	c.block().blank().line(title).subdivider().flush()
}

// Println prints one line.
func (c *Console) Println(s string) {
	c.block().line(s).flush()
}

// Centered prints s centered, preceded by an empty line.
func (c *Console) Centered(s string) {
	c.block().blank().centered(s, lipgloss.NewStyle()).flush()
}

// Warning prints a wrapped warning and its advice.
func (c *Console) Warning(message string, advice ...string) {
	c.block().
		blank().
		wrapped(c.theme.Warning.Render("WARNING:") + " " + message).
		advice(advice).
		flush()
}

// Fatal prints a wrapped fatal error, its advice and the abort footer.
func (c *Console) Fatal(message string, advice ...string) {
	c.block().
		blank().
		wrapped(c.theme.Error.Render("FATAL ERROR:") + " " + message).
		advice(advice).
		blank().
		divider().
		blank().
		centered("TESTING ABORTED", c.theme.Error).
		blank().
		flush()
}

// Complete prints the success footer.
func (c *Console) Complete() {
	c.block().
		blank().
		divider().
		blank().
		centered("TESTING COMPLETE", c.theme.Success).
		blank().
		flush()
}

// wrap splits s into lines of at most width cells, breaking on spaces.
// Words longer than width are split hard. Width is measured on the text
// without ANSI styling.
func wrap(s string, width int) []string {
	if width < 1 {
		return []string{s}
	}
	var lines []string
	for _, paragraph := range strings.Split(s, "\n") {
		lines = append(lines, wrapParagraph(paragraph, width)...)
	}
	return lines
}

func wrapParagraph(s string, width int) []string {
	words := strings.Split(s, " ")
	var lines []string
	var cur string
	curWidth := 0
	for _, word := range words {
		w := visibleWidth(word)
		for w > width {
			if cur != "" {
				lines = append(lines, cur)
				cur, curWidth = "", 0
			}
			head := runewidth.Truncate(word, width, "")
			if head == "" {
				head = string([]rune(word)[:1])
			}
			lines = append(lines, head)
			word = strings.TrimPrefix(word, head)
			w = visibleWidth(word)
		}
		switch {
		case cur == "" && curWidth == 0:
			cur, curWidth = word, w
		case curWidth+1+w <= width:
			cur += " " + word
			curWidth += 1 + w
		default:
			lines = append(lines, cur)
			cur, curWidth = word, w
		}
	}
	return append(lines, cur)
}

// visibleWidth is the display width of s ignoring ANSI escape sequences.
func visibleWidth(s string) int {
	return lipgloss.Width(s)
}
