package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"rekord/internal/core"
	"rekord/internal/report"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#1f77b4"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Renderer writes reports to a terminal or a pipe. Styling is applied only
// when the destination is a terminal.
type Renderer struct {
	w      io.Writer
	styled bool
	// MaxCell truncates table cells; 0 keeps them whole.
	MaxCell int
	// BarWidth is the length of the longest chart bar.
	BarWidth int
}

// NewRenderer detects whether w is a terminal.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w, styled: IsTerminal(w), MaxCell: 40, BarWidth: 50}
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

// Table prints every record in column order.
func (r *Renderer) Table(t *core.Table) error {
	rows := make([][]string, 0, t.Len())
	for _, rec := range t.Records {
		vals := rec.Values()
		for i, v := range vals {
			vals[i] = truncate(oneLine(v), r.MaxCell)
		}
		rows = append(rows, vals)
	}

	tbl := table.New().
		Headers(t.Columns...).
		Rows(rows...).
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().PaddingRight(1)
			if row == table.HeaderRow && r.styled {
				return headerStyle.PaddingRight(1)
			}
			return style
		})
	if !r.styled {
		tbl = tbl.Border(lipgloss.ASCIIBorder()).BorderStyle(lipgloss.NewStyle())
	}

	if _, err := fmt.Fprintln(r.w, tbl.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(r.w, r.style(mutedStyle, fmt.Sprintf("Liczba wierszy: %d", t.Len())))
	return err
}

// Chart prints a horizontal bar per year, scaled to BarWidth.
func (r *Renderer) Chart(counts []core.YearCount) error {
	var b strings.Builder
	b.WriteString(r.style(titleStyle, report.ChartTitle))
	b.WriteString("\n\n")

	max := report.Max(counts)
	countWidth := len(strconv.Itoa(max))
	for _, c := range counts {
		n := 0
		if max > 0 {
			n = c.Count * r.BarWidth / max
		}
		if c.Count > 0 && n == 0 {
			n = 1
		}
		bar := r.style(barStyle, strings.Repeat("█", n))
		fmt.Fprintf(&b, "%d │ %s %*d\n", c.Year, bar, countWidth, c.Count)
	}
	b.WriteString("\n")
	b.WriteString(r.style(mutedStyle, fmt.Sprintf("Łącznie zgłoszeń: %d", report.Total(counts))))
	b.WriteString("\n")

	_, err := io.WriteString(r.w, b.String())
	return err
}

// Values prints one option per line.
func (r *Renderer) Values(values []string) error {
	for _, v := range values {
		if _, err := fmt.Fprintln(r.w, v); err != nil {
			return err
		}
	}
	return nil
}

// Warn prints an informational or warning line.
func (r *Renderer) Warn(msg string) error {
	_, err := fmt.Fprintln(r.w, r.style(warnStyle, msg))
	return err
}

// Error prints an error line.
func (r *Renderer) Error(msg string) error {
	_, err := fmt.Fprintln(r.w, r.style(errStyle, msg))
	return err
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}
