package exammaker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/omrgrade/internal/bank"
	"github.com/pavelanni/omrgrade/internal/permute"
)

// questions renders the bank questions in the presented order of perm, each
// with its choices in presented order. Without a bank it renders nothing.
func (m *Maker) questions(perm permute.Permutation) string {
	if m.cfg.Bank == nil {
		return ""
	}
	lines := []string{`\begin{enumerate}`}
	for _, e := range perm {
		q := m.cfg.Bank.Questions[e.Question]
		lines = append(lines, `\item `+q.Text)
		lines = append(lines, annexLines(q.Component)...)
		lines = append(lines, `\begin{enumerate}`)
		choices := q.Choices()
		for letter, canonical := range e.Choices {
			c := choices[canonical-1]
			lines = append(lines, fmt.Sprintf(`\item[%c)] %s`, 'A'+letter, c.Text))
			lines = append(lines, annexLines(c)...)
		}
		lines = append(lines, `\end{enumerate}`)
	}
	lines = append(lines, `\end{enumerate}`)
	return strings.Join(lines, "\n")
}

func annexLines(c bank.Component) []string {
	switch {
	case c.Code != nil:
		return place(c.Code, []string{`\begin{verbatim}`, strings.Trim(c.Code.Content, "\n"), `\end{verbatim}`})
	case c.Figure != nil:
		return place(c.Figure, []string{
			`\includegraphics[width=\linewidth]{` + c.Figure.Content + `}`,
		})
	}
	return nil
}

func place(a *bank.Annex, body []string) []string {
	if a.Width > 0 {
		width := strconv.FormatFloat(a.Width, 'f', -1, 64)
		open := `\begin{minipage}{` + width + `\textwidth}`
		if a.Position == bank.PositionRight {
			open = `\hfill` + open
		}
		body = append(append([]string{open}, body...), `\end{minipage}`)
	}
	if a.Position == bank.PositionCenter {
		body = append(append([]string{`\begin{center}`}, body...), `\end{center}`)
	}
	return body
}
