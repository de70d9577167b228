package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"opdflow/internal/config"
	"opdflow/internal/logging"
)

const (
	ExitSuccess = 0
	ExitFailed  = 1
	ExitError   = 2
)

// exitError carries the process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error  { return &exitError{code: ExitError, err: err} }
func failedError(err error) error { return &exitError{code: ExitFailed, err: err} }

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
	quiet      bool
}

// suite loads the configured suite. Commands that can work without a file
// get the defaults when allowDefault is set.
func (o *rootOptions) suite(allowDefault bool) (*config.Suite, error) {
	if o.configPath == "" {
		if allowDefault {
			return config.Default(), nil
		}
		return nil, usageError(errors.New("--config is required"))
	}
	s, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, usageError(err)
	}
	return s, nil
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{Verbose: o.verbose, Quiet: o.quiet, Console: true})
	if err != nil {
		return nil, usageError(err)
	}
	return logger, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "opdflow",
		Short: "Run OPD end-to-end scenarios against eventually consistent systems",
		Long: `opdflow drives the OPD admin tools and doctor portals through a browser,
polling each observable condition until it converges or its policy is exhausted.

Available commands:
  run   - Run scenarios and report the outcome
  list  - List the built-in scenarios
  auth  - Check or refresh saved admin sessions`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML suite config")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging and request/response dumps")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and suppress progress")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newListCmd())
	root.AddCommand(newAuthCmd(opts))
	return root
}

// execute runs the CLI with args and returns the exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Flag and argument parsing errors come back from cobra unwrapped.
	return ExitError
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
