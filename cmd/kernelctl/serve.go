package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deskflow/kernel/internal/kernel"
	"github.com/deskflow/kernel/internal/logging"
)

var (
	serveDebug          bool
	serveQueueCapacity  int
	serveWorkflowDefDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kernel's request/response loop on stdio",
	Long:  "Wires every component, spawns configured worker subprocesses, resumes in-progress workflows, and reads JSON request lines from stdin until EOF, or until the next line after a SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug-level logging")
	serveCmd.Flags().IntVar(&serveQueueCapacity, "queue-capacity", 100, "bounded scheduler queue capacity")
	serveCmd.Flags().StringVar(&serveWorkflowDefDir, "workflows-dir", "", "directory of workflow definition files to load at start")
}

func runServe(cmd *cobra.Command, args []string) error {
	k, err := kernel.New(kernel.Options{
		DebugLogging:      serveDebug,
		SchedulerCapacity: serveQueueCapacity,
		WorkflowDefDir:    serveWorkflowDefDir,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := k.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("kernelctl: received shutdown signal")
		cancel()
	}()

	loopErr := k.RunLoop(ctx, os.Stdin, os.Stdout)
	k.Shutdown()

	if loopErr != nil && loopErr != context.Canceled {
		return loopErr
	}
	return nil
}
