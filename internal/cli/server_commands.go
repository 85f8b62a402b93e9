package cli

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"seqgen/internal/mockserver"
)

func newMockServerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local generation server with deterministic fake results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(cmd.ErrOrStderr(), "mock server on %s (ctrl+c to stop)\n", addr)
			return mockserver.New(mockserver.WithLogger(a.logger)).Serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":5000", "listen address")
	return cmd
}

type versionInfo struct {
	Version string `json:"version" yaml:"version"`
	Go      string `json:"go" yaml:"go"`
	OS      string `json:"os" yaml:"os"`
	Arch    string `json:"arch" yaml:"arch"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo{Version: Version, Go: runtime.Version(), OS: runtime.GOOS, Arch: runtime.GOARCH}
			out := cmd.OutOrStdout()
			return emit(out, getApp(cmd), info, func() error {
				fmt.Fprintf(out, "seqgen %s (%s %s/%s)\n", info.Version, info.Go, info.OS, info.Arch)
				return nil
			})
		},
	}
}
