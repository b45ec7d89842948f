package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/pavelanni/omrgrade/internal/export"
	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/store"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the grades of a session as CSV or XLSX",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for CSV on stdout)")
	f.String("format", "", "Output format (csv, xlsx); default from the output extension")
	f.String("order", string(model.OrderRoster), "Row order (roster, last-name, grading)")
	f.Bool("ungraded", false, "Include students without a graded exam")
	f.Bool("answers", false, "Add one column per question")
	f.String("lang", "en", "Language for sorting names")
	addCommonFlags(cmd, true)
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	s, v, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	order, ok := model.ParseGradeOrder(v.GetString("order"))
	if !ok {
		return fmt.Errorf("unknown order %q", v.GetString("order"))
	}
	lang, err := language.Parse(v.GetString("lang"))
	if err != nil {
		return fmt.Errorf("parse lang: %w", err)
	}
	opts := export.Options{
		GradesOptions: store.GradesOptions{
			IncludeUngraded: v.GetBool("ungraded"),
			Order:           order,
			Language:        lang,
		},
		Format:  export.Format(v.GetString("format")),
		Answers: v.GetBool("answers"),
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		if opts.Format == "" {
			if opts.Format, err = export.FormatFromPath(outPath); err != nil {
				return err
			}
		}
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := export.Grades(s, w, opts); err != nil {
		return fmt.Errorf("export grades: %w", err)
	}
	slog.Info("exported grades", "output", outPath, "order", order)
	return nil
}

func legacyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legacy-csv",
		Short: "Write every exam to the session's legacy answers file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, v, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			comma := ','
			if c := v.GetString("comma"); c == `\t` || c == "tab" {
				comma = '\t'
			} else if len(c) == 1 {
				comma = rune(c[0])
			}
			path, err := s.SaveLegacyAnswers(comma)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().String("comma", ",", "Field separator (a single character or tab)")
	addCommonFlags(cmd, true)
	return cmd
}
