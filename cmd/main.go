package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ngld/devtasks/pkg/buildsys"
	"github.com/ngld/devtasks/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "devtasks",
	Short: "Developer workflow tasks for the IBM Quantum provider",
	Long: `This command bundles the developer workflow of the provider: linting, type checking,
style checks and the test suites, plus helpers to check for and install the tools they need.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(cmd.RootCmd)
}

// Execute runs the CLI and exits with the status of the failed program if a task failed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err == nil {
		return
	}

	if status, ok := buildsys.ExitStatus(err); ok && status != 0 {
		os.Exit(int(status))
	}

	// cobra or the task command already reported the error
	os.Exit(1)
}
