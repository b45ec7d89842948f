package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Solution is the set of canonical choices accepted as correct for a question.
// An empty solution marks a void question, which is not graded.
type Solution []int

// Void reports whether the question is excluded from grading.
func (s Solution) Void() bool {
	return len(s) == 0
}

// Accepts reports whether answer is one of the correct choices.
func (s Solution) Accepts(answer int) bool {
	return answer != 0 && slices.Contains(s, answer)
}

// String formats the solution as stored by the current schema: "2", "2|4", or "0" if void.
func (s Solution) String() string {
	if s.Void() {
		return "0"
	}
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, "|")
}

// ParseSolution is the inverse of Solution.String.
func ParseSolution(text string) (Solution, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "0" {
		return nil, nil
	}
	var sol Solution
	for _, p := range strings.Split(text, "|") {
		c, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || c < 1 {
			return nil, fmt.Errorf("parse solution %q", text)
		}
		if !slices.Contains(sol, c) {
			sol = append(sol, c)
		}
	}
	return sol, nil
}

// ParseWeight reads a score weight written as a decimal or a fraction such as "-1/3".
func ParseWeight(text string) (float64, error) {
	text = strings.TrimSpace(text)
	num, den, isFraction := strings.Cut(text, "/")
	if !isFraction {
		return strconv.ParseFloat(text, 64)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("parse weight %q: %w", text, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err != nil {
		return 0, fmt.Errorf("parse weight %q: %w", text, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("parse weight %q: zero denominator", text)
	}
	return n / d, nil
}

// FormatWeight writes a weight with the shortest exact decimal representation.
func FormatWeight(w float64) string {
	return strconv.FormatFloat(w, 'g', -1, 64)
}

// ParseDimensions reads the table layout as stored in the session header:
// "choices,questions" pairs separated by semicolons, e.g. "4,10;4,10".
func ParseDimensions(text string) ([]Dimension, error) {
	var dims []Dimension
	for _, part := range strings.Split(text, ";") {
		c, q, ok := strings.Cut(strings.TrimSpace(part), ",")
		if !ok {
			return nil, fmt.Errorf("parse dimensions %q", text)
		}
		choices, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("parse dimensions %q: %w", text, err)
		}
		questions, err := strconv.Atoi(strings.TrimSpace(q))
		if err != nil {
			return nil, fmt.Errorf("parse dimensions %q: %w", text, err)
		}
		if choices < 2 || questions < 1 {
			return nil, fmt.Errorf("parse dimensions %q: table %d,%d out of range", text, choices, questions)
		}
		dims = append(dims, Dimension{Choices: choices, Questions: questions})
	}
	return dims, nil
}

// FormatDimensions is the inverse of ParseDimensions.
func FormatDimensions(dims []Dimension) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%d,%d", d.Choices, d.Questions)
	}
	return strings.Join(parts, ";")
}
