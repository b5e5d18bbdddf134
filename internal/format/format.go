package format

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode maps an output format name to a table mode
func ParseMode(name string) Mode {
	if name == "markdown" || name == "md" {
		return Markdown
	}
	return ASCII
}

// ColumnAlign specifies the horizontal alignment for a column
type ColumnAlign int

const (
	AlignDefault ColumnAlign = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// ColumnConfig controls per-column formatting
type ColumnConfig struct {
	Number   int // 1-based column index
	Align    ColumnAlign
	MaxWidth int // 0 = unlimited
}

// TableBuilder builds a table once and renders it in the Mode set at creation
type TableBuilder interface {
	// Header sets the column titles.
	Header(cols ...string)

	// Row appends a data row.
	Row(vals ...any)

	// BestRow appends the row of the selected configuration. ASCII tables
	// prefix its first cell with "* ", Markdown tables set every cell in bold.
	BestRow(vals ...any)

	// Footer appends a summary row below the data.
	Footer(vals ...any)

	// Columns applies per-column alignment and width limits.
	Columns(cfgs ...ColumnConfig)

	// String renders the table.
	String() string
}

// BestMarker prefixes the first cell of the best row in ASCII tables
const BestMarker = "* "

// NewTable returns a TableBuilder that renders in the given Mode
func NewTable(m Mode) TableBuilder {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &prettyAdapter{writer: w, mode: m}
}

type prettyAdapter struct {
	writer table.Writer
	mode   Mode
}

func (a *prettyAdapter) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	a.writer.AppendHeader(row)
}

func (a *prettyAdapter) Row(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	a.writer.AppendRow(row)
}

func (a *prettyAdapter) BestRow(vals ...any) {
	row := make(table.Row, len(vals))
	for i, v := range vals {
		cell := fmt.Sprint(v)
		switch {
		case a.mode == Markdown && cell != "":
			row[i] = "**" + cell + "**"
		case a.mode == ASCII && i == 0:
			row[i] = BestMarker + cell
		default:
			row[i] = v
		}
	}
	a.writer.AppendRow(row)
}

func (a *prettyAdapter) Footer(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	a.writer.AppendFooter(row)
}

func (a *prettyAdapter) Columns(cfgs ...ColumnConfig) {
	goCfgs := make([]table.ColumnConfig, len(cfgs))
	for i, c := range cfgs {
		goCfgs[i] = table.ColumnConfig{
			Number:   c.Number,
			Align:    toTextAlign(c.Align),
			WidthMax: c.MaxWidth,
		}
	}
	a.writer.SetColumnConfigs(goCfgs)
}

func (a *prettyAdapter) String() string {
	if a.mode == Markdown {
		return a.writer.RenderMarkdown()
	}
	return a.writer.Render()
}

func toTextAlign(a ColumnAlign) text.Align {
	switch a {
	case AlignLeft:
		return text.AlignLeft
	case AlignRight:
		return text.AlignRight
	case AlignCenter:
		return text.AlignCenter
	default:
		return text.AlignDefault
	}
}
