// Command gfsconv runs single conversions and inspects their inputs and
// outputs without the Kafka consumer.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/gfs-grid-etl/internal/config"
	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
	"github.com/couchcryptid/gfs-grid-etl/internal/observability"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitNotFound         = 3
	ExitAmbiguous        = 4
	ExitStorageError     = 5
	ExitDecodeError      = 6
	ExitValidationFailed = 7
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// cli carries state shared by subcommands after PersistentPreRunE.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "gfsconv",
		Short:         "Convert GFS GRIB2 variables to Parquet tables",
		Long:          "gfsconv locates one variable in a GFS 0.25° forecast file, converts it to a flat Parquet table, and checks the result.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return &usageError{err}
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
			}
			c.cfg = cfg
			c.logger = observability.NewLoggerTo(stderr, cfg)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})
	root.PersistentFlags().String("log-level", "info", "Log level: debug|info|warn|error")

	root.AddCommand(c.newConvertCmd(), c.newLocateCmd(), c.newValidateCmd())
	return root
}

// usageError marks bad flags, arguments, or configuration.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// validationError marks a table that failed validation.
type validationError struct{ err error }

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var (
		usage     *usageError
		invalid   *validationError
		notFound  *domain.VariableNotFoundError
		ambiguous *domain.AmbiguousVariableError
		badIndex  *domain.IndexFormatError
		transfer  *domain.TransferError
		decode    *domain.DecodeError
	)
	switch {
	case errors.As(err, &usage):
		return ExitInvalidArgs
	case errors.As(err, &invalid):
		return ExitValidationFailed
	case errors.As(err, &notFound), blobstore.IsNotFound(err):
		return ExitNotFound
	case errors.As(err, &ambiguous):
		return ExitAmbiguous
	case errors.As(err, &transfer), errors.As(err, &badIndex):
		return ExitStorageError
	case errors.As(err, &decode):
		return ExitDecodeError
	default:
		return ExitGeneralError
	}
}
