package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
	"xorkevin.dev/kerrors"
	"xorkevin.dev/pquery/query"
)

var (
	// ErrFormat is returned for unknown output formats
	ErrFormat errFormat
)

type (
	errFormat struct{}
)

func (e errFormat) Error() string {
	return "Invalid output format"
}

type (
	// Format is an output format
	Format string
)

const (
	FormatAuto  Format = "auto"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTSV   Format = "tsv"

	nullValue = "NULL"
)

// ParseFormat parses an output format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatTable, FormatJSON, FormatYAML, FormatTSV:
		return f, nil
	default:
		return "", kerrors.WithKind(nil, ErrFormat, fmt.Sprintf("Unknown output format: %s", s))
	}
}

type (
	resultDoc struct {
		Columns []string        `json:"columns" yaml:"columns"`
		Rows    [][]interface{} `json:"rows" yaml:"rows"`
	}
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Write renders res to w
func Write(w io.Writer, format Format, res *query.Result) error {
	styled := isTerminal(w) && os.Getenv("NO_COLOR") == ""
	if format == FormatAuto {
		if isTerminal(w) {
			format = FormatTable
		} else {
			format = FormatTSV
		}
	}

	b := bufio.NewWriter(w)
	switch format {
	case FormatTable:
		if err := writeTable(b, res, styled); err != nil {
			return err
		}
	case FormatJSON:
		enc := json.NewEncoder(b)
		enc.SetIndent("", "  ")
		if err := enc.Encode(toDoc(res)); err != nil {
			return kerrors.WithMsg(err, "Failed to encode json")
		}
	case FormatYAML:
		enc := yaml.NewEncoder(b)
		enc.SetIndent(2)
		if err := enc.Encode(toDoc(res)); err != nil {
			return kerrors.WithMsg(err, "Failed to encode yaml")
		}
		if err := enc.Close(); err != nil {
			return kerrors.WithMsg(err, "Failed to encode yaml")
		}
	case FormatTSV:
		if err := writeTSV(b, res); err != nil {
			return err
		}
	default:
		return kerrors.WithKind(nil, ErrFormat, fmt.Sprintf("Unknown output format: %s", format))
	}
	if err := b.Flush(); err != nil {
		return kerrors.WithMsg(err, "Failed to write output")
	}
	return nil
}

func toDoc(res *query.Result) resultDoc {
	rows := make([][]interface{}, 0, len(res.Rows))
	for _, i := range res.Rows {
		row := make([]interface{}, 0, len(i))
		for _, j := range i {
			if v, ok := j.([]byte); ok {
				row = append(row, string(v))
			} else {
				row = append(row, j)
			}
		}
		rows = append(rows, row)
	}
	cols := res.Columns
	if cols == nil {
		cols = []string{}
	}
	return resultDoc{
		Columns: cols,
		Rows:    rows,
	}
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return nullValue
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func stringRows(res *query.Result) [][]string {
	rows := make([][]string, 0, len(res.Rows))
	for _, i := range res.Rows {
		row := make([]string, 0, len(i))
		for _, j := range i {
			row = append(row, formatValue(j))
		}
		rows = append(rows, row)
	}
	return rows
}

func writeTable(w io.Writer, res *query.Result, styled bool) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(res.Columns...).
		Rows(stringRows(res)...)
	if styled {
		header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
		cell := lipgloss.NewStyle().Padding(0, 1)
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	}
	if _, err := io.WriteString(w, t.Render()+"\n"); err != nil {
		return kerrors.WithMsg(err, "Failed to write table")
	}
	return nil
}

var tsvEscaper = strings.NewReplacer("\\", "\\\\", "\t", "\\t", "\n", "\\n", "\r", "\\r")

func writeTSV(w io.Writer, res *query.Result) error {
	writeLine := func(fields []string) error {
		escaped := make([]string, 0, len(fields))
		for _, i := range fields {
			escaped = append(escaped, tsvEscaper.Replace(i))
		}
		if _, err := io.WriteString(w, strings.Join(escaped, "\t")+"\n"); err != nil {
			return kerrors.WithMsg(err, "Failed to write tsv")
		}
		return nil
	}
	if err := writeLine(res.Columns); err != nil {
		return err
	}
	for _, i := range stringRows(res) {
		if err := writeLine(i); err != nil {
			return err
		}
	}
	return nil
}
