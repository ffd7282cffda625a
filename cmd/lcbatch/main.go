package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func setupErr(err error) error { return &exitError{code: 2, err: err} }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := newRootCmd(logger)
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.code == 2 {
				logger.Error("lcbatch.setup.failed", "error", ee.err)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	if logger == nil {
		logger = slog.Default()
	}
	rootCmd := &cobra.Command{
		Use:           "lcbatch",
		Short:         "Extract background-corrected XMM-Newton light curves in batch",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newRunCmd(logger),
		newObsIDsCmd(logger),
	)
	return rootCmd
}
