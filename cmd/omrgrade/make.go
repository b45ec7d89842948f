package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/omrgrade/internal/bank"
	"github.com/pavelanni/omrgrade/internal/exammaker"
	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/store"
)

func makeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "make",
		Short: "Render exam models from a template and create their grading session",
		RunE:  runMake,
	}
	f := cmd.Flags()
	f.StringP("template", "t", "", "LaTeX template with {{key}} slots (required)")
	f.StringP("bank", "b", "", "Question bank XML file")
	f.StringP("models", "m", "A", "Models to render, e.g. ABCD")
	f.IntP("choices", "c", 4, "Choices per question")
	f.IntP("questions", "n", 0, "Number of questions when no bank is given")
	f.String("solutions", "", "Canonical solutions when no bank is given, e.g. 1/3/2|4/0")
	f.Int("tables", 0, "Answer tables (0 = automatic)")
	f.Bool("shuffle", true, "Permute questions and choices of every model")
	f.Uint64("seed", 0, "Shuffle seed (0 = random)")
	f.StringP("output", "o", "exam-%s.tex", "Output file per model; %s is replaced by the model")
	f.StringToString("var", nil, "Template variables, e.g. --var subject=Networks")
	f.String("new-session", "", "Create a grading session in this directory")
	f.StringSlice("students", nil, "Student list files loaded into the new session (repeatable)")
	f.String("scoring", string(model.ScoringNone), "Scoring mode (none, weights)")
	f.String("correct", "1", "Score of a correct answer")
	f.String("incorrect", "0", "Score of an incorrect answer, fractions allowed")
	f.String("blank", "0", "Score of a blank answer")
	f.String("capture-pattern", model.DefaultCapturePattern, "File name pattern of drawn captures")
	addCommonFlags(cmd, false)
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func runMake(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	tmpl, err := os.ReadFile(v.GetString("template"))
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}
	cfg := exammaker.Config{
		Template:       string(tmpl),
		Variables:      v.GetStringMapString("var"),
		Questions:      v.GetInt("questions"),
		Choices:        v.GetInt("choices"),
		Tables:         v.GetInt("tables"),
		Shuffle:        v.GetBool("shuffle"),
		Seed:           v.GetUint64("seed"),
		ScoringMode:    model.ScoringMode(v.GetString("scoring")),
		CapturePattern: v.GetString("capture-pattern"),
	}
	switch cfg.ScoringMode {
	case model.ScoringNone:
	case model.ScoringWeights:
		if cfg.BaseWeights, err = parseWeights(v.GetString("correct"), v.GetString("incorrect"), v.GetString("blank")); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported scoring mode %q", cfg.ScoringMode)
	}
	if path := v.GetString("bank"); path != "" {
		if cfg.Bank, err = bank.ParseFile(path); err != nil {
			return fmt.Errorf("load question bank: %w", err)
		}
		if cfg.Variables == nil {
			cfg.Variables = make(map[string]string)
		}
		for key, val := range map[string]string{
			"subject": cfg.Bank.Subject, "degree": cfg.Bank.Degree,
			"date": cfg.Bank.Date, "duration": cfg.Bank.Duration,
		} {
			if _, ok := cfg.Variables[key]; !ok {
				cfg.Variables[key] = val
			}
		}
	} else if cfg.Solutions, err = parseSolutions(v.GetString("solutions")); err != nil {
		return err
	}

	symbols, err := parseSymbols(v.GetString("models"))
	if err != nil {
		return err
	}
	maker, err := exammaker.New(cfg)
	if err != nil {
		return err
	}
	if len(symbols) > maker.MaxModels() {
		return fmt.Errorf("%w: %d models requested, the answer tables encode at most %d",
			exammaker.ErrModelCapacity, len(symbols), maker.MaxModels())
	}
	models, examCfg, err := maker.Make(symbols)
	if err != nil {
		return err
	}
	for _, m := range models {
		path := strings.ReplaceAll(v.GetString("output"), "%s", m.Symbol.String())
		if err := os.WriteFile(path, []byte(m.Text), 0o644); err != nil {
			return fmt.Errorf("write model %s: %w", m.Symbol, err)
		}
		slog.Info("rendered model", "model", m.Symbol.String(), "path", path)
	}

	dir := v.GetString("new-session")
	if dir == "" {
		return nil
	}
	var groups []model.StudentGroup
	for _, path := range v.GetStringSlice("students") {
		g, err := store.ReadStudentList(path)
		if err != nil {
			return err
		}
		groups = append(groups, g)
	}
	s, err := store.Create(dir, &examCfg, groups)
	if err != nil {
		return err
	}
	return s.Close()
}

func parseWeights(correct, incorrect, blank string) (model.Weights, error) {
	var w model.Weights
	var err error
	if w.Correct, err = model.ParseWeight(correct); err != nil {
		return w, err
	}
	if w.Incorrect, err = model.ParseWeight(incorrect); err != nil {
		return w, err
	}
	if w.Blank, err = model.ParseWeight(blank); err != nil {
		return w, err
	}
	return w, nil
}

// parseSolutions reads slash-separated canonical solutions.
func parseSolutions(text string) ([]model.Solution, error) {
	if text == "" {
		return nil, nil
	}
	var out []model.Solution
	for _, part := range strings.Split(text, "/") {
		sol, err := model.ParseSolution(part)
		if err != nil {
			return nil, err
		}
		out = append(out, sol)
	}
	return out, nil
}
