// Package exammaker renders printable exam models from a LaTeX template and
// builds the grading configuration that matches them.
package exammaker

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/omrgrade/internal/bank"
	"github.com/pavelanni/omrgrade/internal/layout"
	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/permute"
)

var (
	ErrUnknownKey = errors.New("unknown template key")
	// ErrModelCapacity is returned for a model the fingerprint cannot encode.
	ErrModelCapacity = errors.New("model does not fit in the fingerprint")
	ErrQuestionCount = errors.New("question count mismatch")
	ErrBadIDBox      = errors.New("invalid id-box key")
)

var templateKey = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Config holds everything a Maker needs. Keys in Variables replace
// {{key}} slots of the template verbatim.
type Config struct {
	Template  string
	Variables map[string]string
	// Questions is the number of questions. It is taken from Bank when set.
	Questions int
	Choices   int
	// Tables is the number of answer tables; zero picks one.
	Tables int
	// Bank provides the question text and the solutions. When nil,
	// Solutions must hold the canonical solution of every question.
	Bank      *bank.Exam
	Solutions []model.Solution
	// Shuffle permutes questions and choices of every model.
	Shuffle bool
	// Seed makes shuffling reproducible. Zero draws a random seed.
	Seed uint64

	ScoringMode    model.ScoringMode
	BaseWeights    model.Weights
	CapturePattern string
}

// Model is one rendered exam model.
type Model struct {
	Symbol      model.Symbol
	Permutation permute.Permutation
	Text        string
}

// Maker renders exam models of one template.
type Maker struct {
	cfg      Config
	parts    []string // literal text at even positions, keys at odd ones
	idLabel  string
	idDigits int
	geometry layout.Geometry
	rng      *rand.Rand
}

// New parses the template and lays out the answer tables.
func New(cfg Config) (*Maker, error) {
	if cfg.Bank != nil {
		cfg.Questions = len(cfg.Bank.Questions)
		for i, q := range cfg.Bank.Questions {
			if q.NumChoices() != cfg.Choices {
				return nil, fmt.Errorf("%w: question %d has %d choices, want %d", ErrQuestionCount, i+1, q.NumChoices(), cfg.Choices)
			}
		}
	} else if len(cfg.Solutions) != cfg.Questions {
		return nil, fmt.Errorf("%w: %d solutions for %d questions", ErrQuestionCount, len(cfg.Solutions), cfg.Questions)
	}
	g, err := layout.NewGeometry(cfg.Questions, cfg.Choices, cfg.Tables)
	if err != nil {
		return nil, err
	}
	m := &Maker{cfg: cfg, parts: splitTemplate(cfg.Template), geometry: g}
	if m.idLabel, m.idDigits, err = idBoxKey(m.parts); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return m, nil
}

// Geometry returns the layout of the answer tables.
func (m *Maker) Geometry() layout.Geometry {
	return m.geometry
}

// IDNumDigits is the number of digits of the ID box, zero without one.
func (m *Maker) IDNumDigits() int {
	return m.idDigits
}

// MaxModels is the number of model symbols the fingerprint can encode,
// starting at model '0'.
func (m *Maker) MaxModels() int {
	n := 0
	for i := 0; i <= model.MaxIndex; i++ {
		sym, _ := model.SymbolFromIndex(i)
		if !layout.Fits(sym, m.geometry.Tables, m.geometry.Choices) {
			break
		}
		n++
	}
	return n
}

// Make renders every model and returns them with the grading configuration
// of the session that will grade them.
func (m *Maker) Make(symbols []model.Symbol) ([]Model, model.ExamConfig, error) {
	for _, sym := range symbols {
		if sym == model.Unknown || !sym.Valid() {
			return nil, model.ExamConfig{}, fmt.Errorf("%w: %q", model.ErrInvalidModel, sym)
		}
		if !layout.Fits(sym, m.geometry.Tables, m.geometry.Choices) {
			return nil, model.ExamConfig{}, fmt.Errorf("%w: model %s needs more than %d bits", ErrModelCapacity, sym, m.geometry.Bits())
		}
	}
	cfg := m.examConfig()
	counts := cfg.ChoiceCounts()
	var out []Model
	for _, sym := range symbols {
		perm := permute.Identity(counts)
		if m.cfg.Shuffle {
			perm = permute.Generate(m.rng, counts)
		}
		text, err := m.Render(sym, perm)
		if err != nil {
			return nil, model.ExamConfig{}, fmt.Errorf("model %s: %w", sym, err)
		}
		key, err := m.key(sym, perm)
		if err != nil {
			return nil, model.ExamConfig{}, fmt.Errorf("model %s: %w", sym, err)
		}
		cfg.Models[sym] = key
		out = append(out, Model{Symbol: sym, Permutation: perm, Text: text})
	}
	return out, cfg, nil
}

// Render fills the template for one model printed with perm.
func (m *Maker) Render(sym model.Symbol, perm permute.Permutation) (string, error) {
	table, err := layout.AnswerTable(m.geometry, sym)
	if err != nil {
		return "", err
	}
	values := map[string]string{
		"answer-table": table,
		"model":        sym.String(),
		"questions":    m.questions(perm),
		"id-box":       layout.IDBox(m.idLabel, m.idDigits),
	}
	var b strings.Builder
	for i, part := range m.parts {
		if i%2 == 0 {
			b.WriteString(part)
			continue
		}
		v, err := m.replace(part, values)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

func (m *Maker) replace(key string, values map[string]string) (string, error) {
	if v, ok := m.cfg.Variables[key]; ok {
		return v, nil
	}
	if v, ok := values[key]; ok {
		return v, nil
	}
	if strings.HasPrefix(key, "id-box") {
		return values["id-box"], nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

func (m *Maker) examConfig() model.ExamConfig {
	dims := make([]model.Dimension, m.geometry.Tables)
	for t := range dims {
		dims[t].Choices = m.geometry.Choices
		for _, row := range m.geometry.Rows {
			if row[t].Kind == layout.CellQuestion {
				dims[t].Questions++
			}
		}
	}
	return model.ExamConfig{
		Dimensions:     dims,
		IDNumDigits:    m.idDigits,
		ScoringMode:    cmp.Or(m.cfg.ScoringMode, model.ScoringNone),
		BaseWeights:    m.cfg.BaseWeights,
		CapturePattern: m.cfg.CapturePattern,
		Models:         make(map[model.Symbol]*model.ModelKey),
	}
}

// key builds the canonical key of a model. Bank questions list their correct
// choices first, so their canonical solutions are 1..len(Correct).
func (m *Maker) key(sym model.Symbol, perm permute.Permutation) (*model.ModelKey, error) {
	records := make([]model.QuestionRecord, m.cfg.Questions)
	for i := range records {
		records[i].Weight = 1
		if m.cfg.Bank == nil {
			records[i].Solution = m.cfg.Solutions[i]
			continue
		}
		for c := range m.cfg.Bank.Questions[i].Correct {
			records[i].Solution = append(records[i].Solution, c+1)
		}
	}
	if err := perm.Assign(records); err != nil {
		return nil, err
	}
	return &model.ModelKey{Symbol: sym, Questions: records}, nil
}

// splitTemplate splits text around {{key}} slots.
func splitTemplate(text string) []string {
	var parts []string
	last := 0
	for _, loc := range templateKey.FindAllStringSubmatchIndex(text, -1) {
		parts = append(parts, text[last:loc[0]], text[loc[2]:loc[3]])
		last = loc[1]
	}
	return append(parts, text[last:])
}

// idBoxKey finds an id-box(digits,label) key in the template.
func idBoxKey(parts []string) (string, int, error) {
	for i := 1; i < len(parts); i += 2 {
		key := parts[i]
		if !strings.HasPrefix(key, "id-box") {
			continue
		}
		args, ok := strings.CutPrefix(key, "id-box(")
		if !ok || !strings.HasSuffix(args, ")") {
			return "", 0, fmt.Errorf("%w: %s", ErrBadIDBox, key)
		}
		digits, label, ok := strings.Cut(strings.TrimSuffix(args, ")"), ",")
		if !ok {
			return "", 0, fmt.Errorf("%w: %s", ErrBadIDBox, key)
		}
		n, err := strconv.Atoi(strings.TrimSpace(digits))
		if err != nil || n < 1 {
			return "", 0, fmt.Errorf("%w: %s", ErrBadIDBox, key)
		}
		return strings.TrimSpace(label), n, nil
	}
	return "", 0, nil
}
