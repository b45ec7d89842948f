// Package bank reads exam question banks written in the eyegrade XML format.
package bank

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Namespace is the XML namespace of question bank elements.
const Namespace = "http://www.it.uc3m.es/jaf/eyegrade/ns/"

// ErrInvalidBank is returned for a document that is not a valid question bank.
var ErrInvalidBank = errors.New("invalid question bank")

// Position places a code listing or a figure relative to the text.
type Position string

const (
	PositionCenter Position = "center"
	PositionRight  Position = "right"
)

// Annex is a code listing or a figure attached to a question or a choice.
// Width is a fraction of the line width; zero means unset.
type Annex struct {
	Content  string
	Width    float64
	Position Position
}

// Component is the text of a question or a choice with its optional annexes.
type Component struct {
	Text   string
	Code   *Annex
	Figure *Annex
}

// Question is one bank question. Correct choices are listed before incorrect ones.
type Question struct {
	Component
	Correct   []Component
	Incorrect []Component
}

// NumChoices is the number of choices of the question.
func (q Question) NumChoices() int {
	return len(q.Correct) + len(q.Incorrect)
}

// Choices returns the correct choices followed by the incorrect ones.
func (q Question) Choices() []Component {
	out := make([]Component, 0, q.NumChoices())
	out = append(out, q.Correct...)
	return append(out, q.Incorrect...)
}

// Exam is a parsed question bank.
type Exam struct {
	Subject   string
	Degree    string
	Date      string
	Duration  string
	Questions []Question
}

type xmlExam struct {
	XMLName   xml.Name      `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ exam"`
	Subject   []string      `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ subject"`
	Degree    []string      `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ degree"`
	Date      []string      `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ date"`
	Duration  []string      `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ duration"`
	Questions []xmlQuestion `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ question"`
}

type xmlQuestion struct {
	Text    []string     `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ text"`
	Code    []xmlAnnex   `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ code"`
	Figure  []xmlAnnex   `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ figure"`
	Choices []xmlChoices `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ choices"`
}

type xmlChoices struct {
	Correct   []xmlChoice `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ correct"`
	Incorrect []xmlChoice `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ incorrect"`
}

type xmlChoice struct {
	Text   string     `xml:",chardata"`
	Code   []xmlAnnex `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ code"`
	Figure []xmlAnnex `xml:"http://www.it.uc3m.es/jaf/eyegrade/ns/ figure"`
}

type xmlAnnex struct {
	Content string     `xml:",chardata"`
	Attrs   []xml.Attr `xml:",any,attr"`
}

func (a xmlAnnex) attr(name string) string {
	for _, at := range a.Attrs {
		if at.Name.Local == name && (at.Name.Space == "" || at.Name.Space == Namespace) {
			return normalize(at.Value)
		}
	}
	return ""
}

// ParseFile reads a question bank from a file.
func ParseFile(path string) (*Exam, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	exam, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exam, nil
}

// Parse reads a question bank. Text is whitespace-normalized except inside
// code listings.
func Parse(r io.Reader) (*Exam, error) {
	var doc xmlExam
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBank, err)
	}
	exam := &Exam{}
	for _, f := range []struct {
		name   string
		values []string
		dst    *string
	}{
		{"subject", doc.Subject, &exam.Subject},
		{"degree", doc.Degree, &exam.Degree},
		{"date", doc.Date, &exam.Date},
		{"duration", doc.Duration, &exam.Duration},
	} {
		v, err := single(f.name, f.values)
		if err != nil {
			return nil, err
		}
		*f.dst = normalize(v)
	}
	for i, xq := range doc.Questions {
		q, err := parseQuestion(xq)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		exam.Questions = append(exam.Questions, q)
	}
	return exam, nil
}

func parseQuestion(xq xmlQuestion) (Question, error) {
	var q Question
	text, err := single("text", xq.Text)
	if err != nil {
		return q, err
	}
	if q.Component, err = component(normalize(text), xq.Code, xq.Figure); err != nil {
		return q, err
	}
	if len(xq.Choices) != 1 {
		return q, fmt.Errorf("%w: expected exactly one choices element, got %d", ErrInvalidBank, len(xq.Choices))
	}
	for _, xc := range xq.Choices[0].Correct {
		c, err := component(normalize(xc.Text), xc.Code, xc.Figure)
		if err != nil {
			return q, err
		}
		q.Correct = append(q.Correct, c)
	}
	for _, xc := range xq.Choices[0].Incorrect {
		c, err := component(normalize(xc.Text), xc.Code, xc.Figure)
		if err != nil {
			return q, err
		}
		q.Incorrect = append(q.Incorrect, c)
	}
	if len(q.Correct) == 0 {
		return q, fmt.Errorf("%w: no correct choice", ErrInvalidBank)
	}
	return q, nil
}

func component(text string, code, figure []xmlAnnex) (Component, error) {
	c := Component{Text: text}
	var err error
	if c.Code, err = annex("code", code, false); err != nil {
		return c, err
	}
	if c.Figure, err = annex("figure", figure, true); err != nil {
		return c, err
	}
	if c.Code != nil && c.Figure != nil {
		return c, fmt.Errorf("%w: code and figure in the same component", ErrInvalidBank)
	}
	if c.Text == "" && c.Code == nil && c.Figure == nil {
		return c, fmt.Errorf("%w: empty component", ErrInvalidBank)
	}
	return c, nil
}

// annex parses an optional code or figure element. Figures always need a
// width; code needs one only when placed at the right.
func annex(name string, elems []xmlAnnex, isFigure bool) (*Annex, error) {
	switch len(elems) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, fmt.Errorf("%w: duplicate element %s", ErrInvalidBank, name)
	}
	e := elems[0]
	a := &Annex{Content: e.Content, Position: PositionCenter}
	if isFigure {
		a.Content = normalize(e.Content)
	}
	switch p := Position(e.attr("position")); p {
	case "":
	case PositionCenter, PositionRight:
		a.Position = p
	default:
		return nil, fmt.Errorf("%w: %s position %q", ErrInvalidBank, name, p)
	}
	width := e.attr("width")
	if width == "" {
		if isFigure || a.Position == PositionRight {
			return nil, fmt.Errorf("%w: %s needs a width", ErrInvalidBank, name)
		}
		return a, nil
	}
	w, err := strconv.ParseFloat(width, 64)
	if err != nil || w <= 0 {
		return nil, fmt.Errorf("%w: %s width %q", ErrInvalidBank, name, width)
	}
	a.Width = w
	return a, nil
}

func single(name string, values []string) (string, error) {
	switch len(values) {
	case 0:
		return "", nil
	case 1:
		return values[0], nil
	}
	return "", fmt.Errorf("%w: duplicate element %s", ErrInvalidBank, name)
}

// normalize trims the text and collapses runs of spaces, tabs and newlines.
func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	}), " ")
}
