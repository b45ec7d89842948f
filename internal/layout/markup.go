package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/omrgrade/internal/model"
)

const (
	markActive   = `\multicolumn{1}{c}{$\blacksquare$}`
	markInactive = `\multicolumn{1}{c}{}`
)

// AnswerTable renders the LaTeX answer grid of a model, fingerprint included.
func AnswerTable(g Geometry, sym model.Symbol) (string, error) {
	idx, err := sym.Index()
	if err != nil {
		return "", err
	}
	if idx < 0 {
		return "", fmt.Errorf("%w: cannot print an unknown model", model.ErrInvalidModel)
	}
	bits, err := EncodeBits(idx, g.Tables, g.Choices)
	if err != nil {
		return "", err
	}
	fingerprint := fingerprintCells(bits, g.Tables, g.Choices)
	compact := g.Tables > 2

	lines := tableTop(g.Tables, g.Choices, compact)
	for _, row := range g.Rows {
		lines = append(lines, horizontalLine(row, g.Choices, compact))
		lines = append(lines, buildRow(row, g.Choices, fingerprint, compact))
	}
	lines = append(lines, `\end{tabular}`, `\end{center}`)
	return strings.Join(lines, "\n"), nil
}

// IDBox renders the box where students write their ID, one cell per digit.
func IDBox(label string, digits int) string {
	lines := []string{
		`\begin{center}`,
		`\Large`,
		`\begin{tabular}{l|` + strings.Repeat(`p{3mm}|`, digits) + `}`,
		fmt.Sprintf(`\cline{2-%d}`, 1+digits),
		`\textbf{` + label + `}: ` + strings.Repeat(`& `, digits) + `\\`,
		fmt.Sprintf(`\cline{2-%d}`, 1+digits),
		`\end{tabular}`,
		`\end{center}`,
	}
	return strings.Join(lines, "\n")
}

func letter(i int) string {
	return string(rune('A' + i))
}

func tableTop(tables, choices int, compact bool) []string {
	sepFormat, sepHeader := `p{3mm}`, ` & & `
	if compact {
		sepFormat, sepHeader = ``, ` & `
	}
	column := "r|" + strings.Repeat("c|", choices)
	format := strings.Repeat(column+sepFormat, tables-1) + column

	headers := make([]string, tables)
	for t := range headers {
		parts := []string{markInactive}
		for c := range choices {
			parts = append(parts, `\multicolumn{1}{c}{`+letter(c)+`}`)
		}
		headers[t] = strings.Join(parts, " & ")
	}
	return []string{
		`\begin{center}`,
		`\large`,
		`\begin{tabular}{` + format + `}`,
		strings.Join(headers, sepHeader) + ` \\`,
	}
}

func horizontalLine(row []Cell, choices int, compact bool) string {
	spacer := 1
	if compact {
		spacer = 0
	}
	var parts []string
	first := 2
	for _, c := range row {
		if c.Kind == CellQuestion || c.Kind == CellFingerprint0 {
			parts = append(parts, fmt.Sprintf(`\cline{%d-%d}`, first, first+choices-1))
		}
		first += 1 + spacer + choices
	}
	return strings.Join(parts, " ")
}

func buildRow(row []Cell, choices int, fingerprint [2][]string, compact bool) string {
	spacer, sep := 1, ` & & `
	if compact {
		spacer, sep = 0, ` & `
	}
	var parts []string
	skip := 0
	for t, c := range row {
		switch c.Kind {
		case CellQuestion:
			parts = append(parts, questionCell(c.Question, c.Choices))
		case CellFingerprint0:
			parts = append(parts, fingerprint[0][t])
		case CellFingerprint1:
			parts = append(parts, fingerprint[1][t])
		default:
			skip += 1 + spacer + choices
		}
	}
	out := strings.Join(parts, sep)
	if skip > 0 {
		out += fmt.Sprintf(` & \multicolumn{%d}{c}{}`, skip)
	}
	return out + ` \\`
}

func questionCell(number, choices int) string {
	parts := []string{strconv.Itoa(number)}
	for c := range choices {
		parts = append(parts, `\light{`+letter(c)+`}`)
	}
	return strings.Join(parts, " & ")
}

// fingerprintCells renders the marks of both fingerprint rows, one string per table.
func fingerprintCells(bits []bool, tables, choices int) [2][]string {
	marks := Marks(bits)
	var out [2][]string
	for row := range out {
		for t := range tables {
			parts := []string{markInactive}
			for c := range choices {
				if marks[row][t*choices+c] {
					parts = append(parts, markActive)
				} else {
					parts = append(parts, markInactive)
				}
			}
			out[row] = append(out[row], strings.Join(parts, " & "))
		}
	}
	return out
}
