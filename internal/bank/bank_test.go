package bank

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleBank = `<?xml version="1.0" encoding="UTF-8"?>
<exam xmlns="http://www.it.uc3m.es/jaf/eyegrade/ns/"
      xmlns:eye="http://www.it.uc3m.es/jaf/eyegrade/ns/">
  <subject>Computer   Networks</subject>
  <degree>Telematics</degree>
  <date>2024-01-15</date>
  <duration>1 hour</duration>
  <question>
    <text>Which layer
      routes packets?</text>
    <choices>
      <correct>Network</correct>
      <incorrect>Link</incorrect>
      <incorrect>Transport</incorrect>
    </choices>
  </question>
  <question>
    <text>What does this print?</text>
    <code eye:position="right" eye:width="0.4">for i in range(2):
    print(i)</code>
    <choices>
      <correct>0 and 1</correct>
      <incorrect>1 and 2</incorrect>
      <incorrect><figure eye:width="0.2">loop.eps</figure></incorrect>
    </choices>
  </question>
</exam>`

func TestParse(t *testing.T) {
	exam, err := Parse(strings.NewReader(sampleBank))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if exam.Subject != "Computer Networks" || exam.Degree != "Telematics" || exam.Duration != "1 hour" {
		t.Errorf("unexpected header %+v", exam)
	}
	if len(exam.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(exam.Questions))
	}

	q := exam.Questions[0]
	if q.Text != "Which layer routes packets?" {
		t.Errorf("text not normalized: %q", q.Text)
	}
	if q.NumChoices() != 3 || q.Correct[0].Text != "Network" || q.Incorrect[1].Text != "Transport" {
		t.Errorf("unexpected choices %+v", q.Choices())
	}

	q = exam.Questions[1]
	if q.Code == nil || q.Code.Position != PositionRight || q.Code.Width != 0.4 {
		t.Fatalf("unexpected code annex %+v", q.Code)
	}
	if !strings.Contains(q.Code.Content, "\n    print(i)") {
		t.Errorf("code whitespace not preserved: %q", q.Code.Content)
	}
	fig := q.Incorrect[1].Figure
	if fig == nil || fig.Content != "loop.eps" || fig.Position != PositionCenter {
		t.Errorf("unexpected figure %+v", fig)
	}
}

func TestParseErrors(t *testing.T) {
	question := func(body string) string {
		return `<exam xmlns="http://www.it.uc3m.es/jaf/eyegrade/ns/"><question><text>Q</text>` +
			body + `</question></exam>`
	}
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "not xml"},
		{"wrong namespace", `<exam xmlns="urn:other"><subject>x</subject></exam>`},
		{"duplicate subject", `<exam xmlns="http://www.it.uc3m.es/jaf/eyegrade/ns/"><subject>a</subject><subject>b</subject></exam>`},
		{"no choices", question(``)},
		{"two choices elements", question(`<choices><correct>a</correct></choices><choices><correct>b</correct></choices>`)},
		{"no correct choice", question(`<choices><incorrect>a</incorrect></choices>`)},
		{"figure without width", question(`<figure>f.eps</figure><choices><correct>a</correct></choices>`)},
		{"right code without width", question(`<code position="right">x</code><choices><correct>a</correct></choices>`)},
		{"bad position", question(`<code position="left">x</code><choices><correct>a</correct></choices>`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.doc)); !errors.Is(err, ErrInvalidBank) {
				t.Errorf("expected ErrInvalidBank, got %v", err)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.xml")
	if err := os.WriteFile(path, []byte(sampleBank), 0o644); err != nil {
		t.Fatal(err)
	}
	exam, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(exam.Questions) != 2 {
		t.Errorf("expected 2 questions, got %d", len(exam.Questions))
	}
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.xml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
