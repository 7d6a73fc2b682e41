// Command upscalectl follows the upscaling servers and prints a reconciled
// view of every job.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/cli"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/logger"
)

func main() {
	// Until a command resolves its configuration, log from the environment.
	logger.Set(logger.FromEnv("INFO", logger.FormatConsole))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	_ = logger.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
