package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/scopenav/scopenav/internal/logging"
)

const (
	exitCodeFailure  = 1
	exitCodeCanceled = 130
)

func main() {
	if code := runMain(Execute, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

func runMain(execute func() error, stderr io.Writer) int {
	err := execute()
	if err == nil {
		return 0
	}

	cmdCtx := currentCommandExecutionContext()
	code, silent := exitStatus(err, cmdCtx)
	if !silent {
		message := "command failed"
		if code == exitCodeCanceled {
			message = "command canceled"
		}
		emitCommandError(err, message, code, cmdCtx, stderr)
	}
	return code
}

// exitStatus maps the error of a finished command to the process exit code.
// An interrupted client command (tree, select, dashboards) exits without
// output; serve, migrate and seed log the cancellation.
func exitStatus(err error, cmdCtx commandExecutionContext) (code int, silent bool) {
	if errors.Is(err, context.Canceled) {
		return exitCodeCanceled, !cmdCtx.UsesStructuredLog
	}
	return exitCodeFailure, false
}

func emitCommandError(err error, message string, exitCode int, cmdCtx commandExecutionContext, stderr io.Writer) {
	if !cmdCtx.UsesStructuredLog {
		fmt.Fprintf(stderr, "scopenav: %v\n", err)
		return
	}
	loggerForFatalPath(cmdCtx, stderr).Error(message, "exit_code", exitCode, "error", err)
}

func loggerForFatalPath(cmdCtx commandExecutionContext, stderr io.Writer) *slog.Logger {
	cfg, err := logging.LoadConfigFromEnv()
	if err != nil {
		cfg = logging.DefaultConfig()
	}
	return logging.NewLogger(cfg, stderr, cmdCtx.CommandPath)
}
