package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/omrgrade/internal/model"
	"github.com/pavelanni/omrgrade/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "omrgrade",
		Short:        "Multiple-choice exam generator and grader for scanned answer sheets",
		SilenceUsage: true,
	}
	root.AddCommand(
		makeCmd(),
		gradeCmd(),
		exportCmd(),
		legacyCmd(),
		infoCmd(),
		removeCmd(),
		fixAnswerCmd(),
		assignCmd(),
		voidCmd(),
		setSolutionCmd(),
		addSolutionCmd(),
	)
	return root
}

// addCommonFlags registers the flags every session command shares.
func addCommonFlags(cmd *cobra.Command, withSession bool) {
	f := cmd.Flags()
	if withSession {
		f.StringP("session", "s", ".", "Session directory")
	}
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("OMRGRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("omrgrade")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/omrgrade")
	v.AddConfigPath("/etc/omrgrade")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openSession sets up logging and opens the session named by --session.
func openSession(cmd *cobra.Command) (*store.Store, *viper.Viper, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	s, err := store.Open(v.GetString("session"))
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	return s, v, nil
}

// parseQuestion reads a 1-based question number typed by a user.
func parseQuestion(s *store.Store, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > s.ExamConfig().NumQuestions() {
		return 0, fmt.Errorf("question %q out of range 1-%d", arg, s.ExamConfig().NumQuestions())
	}
	return n - 1, nil
}

// parseChoice reads a choice given as a letter (A, B, ...) or a 1-based number.
func parseChoice(arg string) (int, error) {
	if len(arg) == 1 && arg[0] >= 'A' && arg[0] <= 'Z' {
		return int(arg[0]-'A') + 1, nil
	}
	if len(arg) == 1 && arg[0] >= 'a' && arg[0] <= 'z' {
		return int(arg[0]-'a') + 1, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid choice %q", arg)
	}
	return n, nil
}

// parseSymbols reads a list of models such as "ABC" or "0AB".
func parseSymbols(arg string) ([]model.Symbol, error) {
	var out []model.Symbol
	for _, r := range strings.ToUpper(arg) {
		sym, err := model.ParseSymbol(string(r))
		if err != nil {
			return nil, err
		}
		if sym == model.Unknown {
			return nil, fmt.Errorf("%w: %q", model.ErrInvalidModel, r)
		}
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no models given")
	}
	return out, nil
}

// parseModel reads a single model given on the command line.
func parseModel(arg string) (model.Symbol, error) {
	syms, err := parseSymbols(arg)
	if err != nil {
		return model.Unknown, err
	}
	if len(syms) != 1 {
		return model.Unknown, fmt.Errorf("%w: %q is not a single model", model.ErrInvalidModel, arg)
	}
	return syms[0], nil
}
