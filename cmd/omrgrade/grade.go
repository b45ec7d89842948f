package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pavelanni/omrgrade/internal/grader"
	"github.com/pavelanni/omrgrade/internal/model"
)

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade INPUT.json...",
		Short: "Grade recognized answer sheets into a session",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGrade,
	}
	cmd.Flags().String("model", "", "Grade every sheet as this model instead of reading the fingerprint")
	addCommonFlags(cmd, true)
	return cmd
}

func runGrade(cmd *cobra.Command, args []string) error {
	s, v, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var opts []grader.Option
	if m := v.GetString("model"); m != "" {
		sym, err := parseModel(m)
		if err != nil {
			return err
		}
		opts = append(opts, grader.WithModel(sym))
	}
	g := grader.New(s, opts...)
	for _, path := range args {
		in, err := grader.LoadInput(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		exam, err := g.Grade(in)
		if err != nil {
			return fmt.Errorf("grade %s: %w", path, err)
		}
		score := "-"
		if exam.Grade.Score != nil {
			score = model.FormatWeight(*exam.Grade.Score)
		}
		student := ""
		if exam.Student != nil {
			student = exam.Student.StudentID
		}
		slog.Debug("graded sheet", "input", path, "exam", exam.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%d/%d/%d\t%s\n",
			exam.ID, exam.Model, student, exam.Grade.Correct, exam.Grade.Incorrect, exam.Grade.Blank, score)
	}
	return nil
}
