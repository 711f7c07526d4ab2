// Command xedgesim runs xEdgeSim co-simulation scenarios described by a
// YAML scenario file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rekrevs/xedgesim/cmd/xedgesim/run"
	"github.com/rekrevs/xedgesim/cmd/xedgesim/ui"
	"github.com/rekrevs/xedgesim/internal/xlog"
)

const version = "0.1.0"

func main() {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	ui.ConfigureInteraction()

	var debug bool
	if err := xlog.Configure(xlog.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "xedgesim",
		Short:         "Federated co-simulator for heterogeneous edge nodes",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := xlog.LevelWarn
			if debug {
				level = xlog.LevelDebug
			}
			return xlog.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.AddCommand(run.Cmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
