package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stencila/stencila/internal/codec/github"
	"github.com/stencila/stencila/internal/logging"
	"github.com/stencila/stencila/internal/version"
)

func main() {
	logging.Setup(os.Stderr)
	github.Register()

	ctx, cancel := signalCancelContext()
	defer cancel()

	root := &cobra.Command{
		Use:           "stencila",
		Short:         "Author, execute and synchronize structured documents",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		executeCmd(),
		statusCmd(),
		pushCmd(),
		pullCmd(),
		watchesCmd(),
		chatCmd(),
		mcpCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		// All errors normalize to a single line on stderr.
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
