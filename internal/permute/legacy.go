package permute

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatLegacy writes the permutation in the text form of version 1
// sessions: one "question{choice,choice,...}" item per presented row,
// separated by slashes, all numbers 1-based.
func (p Permutation) FormatLegacy() string {
	items := make([]string, len(p))
	for row, e := range p {
		choices := make([]string, len(e.Choices))
		for i, c := range e.Choices {
			choices[i] = strconv.Itoa(c)
		}
		items[row] = fmt.Sprintf("%d{%s}", e.Question+1, strings.Join(choices, ","))
	}
	return strings.Join(items, "/")
}

// ParseLegacy is the inverse of FormatLegacy.
func ParseLegacy(text string) (Permutation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var p Permutation
	for _, item := range strings.Split(text, "/") {
		q, rest, ok := strings.Cut(item, "{")
		if !ok || !strings.HasSuffix(rest, "}") {
			return nil, fmt.Errorf("%w: malformed item %q", ErrPermutationMismatch, item)
		}
		question, err := strconv.Atoi(strings.TrimSpace(q))
		if err != nil {
			return nil, fmt.Errorf("%w: malformed item %q", ErrPermutationMismatch, item)
		}
		e := Entry{Question: question - 1}
		for _, c := range strings.Split(strings.TrimSuffix(rest, "}"), ",") {
			choice, err := strconv.Atoi(strings.TrimSpace(c))
			if err != nil {
				return nil, fmt.Errorf("%w: malformed item %q", ErrPermutationMismatch, item)
			}
			e.Choices = append(e.Choices, choice)
		}
		p = append(p, e)
	}
	if err := p.Validate(len(p)); err != nil {
		return nil, err
	}
	return p, nil
}
