package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/store"
)

func infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the configuration and the exams of a session",
		RunE:  runInfo,
	}
	addCommonFlags(cmd, true)
	return cmd
}

func runInfo(cmd *cobra.Command, _ []string) error {
	s, _, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := s.ExamConfig()
	exams, err := s.ListExams()
	if err != nil {
		return err
	}
	groups, err := s.Groups()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Schema version:\t%d\n", s.SchemaVersion())
	fmt.Fprintf(w, "Dimensions:\t%s\n", model.FormatDimensions(cfg.Dimensions))
	fmt.Fprintf(w, "Questions:\t%d\n", cfg.NumQuestions())
	fmt.Fprintf(w, "Models:\t%s\n", symbolList(cfg.ModelSymbols()))
	fmt.Fprintf(w, "Scoring:\t%s\n", cfg.ScoringMode)
	if cfg.ScoringMode == model.ScoringWeights {
		fmt.Fprintf(w, "Weights:\t%s / %s / %s\n", model.FormatWeight(cfg.BaseWeights.Correct),
			model.FormatWeight(cfg.BaseWeights.Incorrect), model.FormatWeight(cfg.BaseWeights.Blank))
	}
	for _, g := range groups {
		fmt.Fprintf(w, "Group %d:\t%s (%d students)\n", g.ID, g.Name, len(g.Students))
	}
	fmt.Fprintf(w, "Exams:\t%d\n", len(exams))
	return w.Flush()
}

func symbolList(syms []model.Symbol) string {
	out := make([]byte, len(syms))
	for i, s := range syms {
		out[i] = byte(s)
	}
	return string(out)
}

func removeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove EXAM-ID",
		Short: "Remove a graded exam and its captures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExam(cmd, args[0], func(s *store.Store, id int64) error {
				return s.RemoveExam(id)
			})
		},
	}
	addCommonFlags(cmd, true)
	return cmd
}

func fixAnswerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix-answer EXAM-ID QUESTION CHOICE",
		Short: "Correct one canonical answer of an exam (choice 0 leaves it blank)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExam(cmd, args[0], func(s *store.Store, id int64) error {
				q, err := parseQuestion(s, args[1])
				if err != nil {
					return err
				}
				c, err := parseChoice(args[2])
				if err != nil {
					return err
				}
				return s.UpdateAnswer(id, q, c)
			})
		},
	}
	addCommonFlags(cmd, true)
	return cmd
}

func assignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign EXAM-ID [STUDENT-ID]",
		Short: "Assign an exam to a student, or leave it unassigned",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExam(cmd, args[0], func(s *store.Store, id int64) error {
				if len(args) == 1 {
					return s.UpdateStudent(id, nil)
				}
				st, ok := s.FindStudent(args[1])
				if !ok {
					st = model.AdHocStudent(args[1])
				}
				return s.UpdateStudent(id, st)
			})
		},
	}
	addCommonFlags(cmd, true)
	return cmd
}

func withExam(cmd *cobra.Command, arg string, fn func(*store.Store, int64) error) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid exam id %q", arg)
	}
	s, _, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s, id)
}

func voidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "void QUESTION",
		Short: "Exclude a question from grading and rescore every exam",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQuestion(cmd, args[0], "", func(s *store.Store, q, _ int) error {
				return s.VoidQuestion(q)
			})
		},
	}
	addCommonFlags(cmd, true)
	return cmd
}

func setSolutionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-solution QUESTION CHOICE",
		Short: "Replace the solution of a question and rescore every exam",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQuestion(cmd, args[0], args[1], func(s *store.Store, q, c int) error {
				return s.SetSolution(q, c)
			})
		},
	}
	addCommonFlags(cmd, true)
	return cmd
}

func addSolutionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-solution QUESTION CHOICE",
		Short: "Accept one more choice as correct and rescore every exam",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQuestion(cmd, args[0], args[1], func(s *store.Store, q, c int) error {
				return s.AddAlternateSolution(q, c)
			})
		},
	}
	addCommonFlags(cmd, true)
	return cmd
}

// withQuestion opens the session and parses a 1-based question and an
// optional canonical choice.
func withQuestion(cmd *cobra.Command, question, choice string, fn func(s *store.Store, q, c int) error) error {
	s, _, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	q, err := parseQuestion(s, question)
	if err != nil {
		return err
	}
	c := 0
	if choice != "" {
		if c, err = parseChoice(choice); err != nil {
			return err
		}
	}
	return fn(s, q, c)
}
