// Package cli wires the seqgen commands.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"seqgen/internal/api"
	"seqgen/internal/config"
	"seqgen/internal/jobstore"
)

// Version is set at build time.
var Version = "dev"

type appKey struct{}

// app is the per-invocation state every command reads from its context.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:   "seqgen",
		Short: "seqgen: submit layouts and audio to a show-generation server",
		Long: `seqgen uploads an xLights layout and a song to a sequence generation
server, shows the result and a beat/section preview, and downloads the
generated sequence.

Quick start:
  seqgen mock-server &
  seqgen inspect --layout xlights_rgbeffects.xml
  seqgen generate --layout xlights_rgbeffects.xml --audio song.mp3 --recommend --download`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger := config.NewLogger(cmd.ErrOrStderr(), cfg)
			if cfg.FileUsed != "" {
				logger.Debug("using config file", "path", cfg.FileUsed)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = config.WithLogger(ctx, logger)
			ctx = context.WithValue(ctx, appKey{}, &app{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./seqgen.yaml)")
	pf.String("server", "", "generation server URL (default "+config.DefaultServerURL+")")
	pf.StringP("output", "o", "", "output format: text|json|yaml")
	pf.String("log-level", "", "log level: debug|info|warn|error")
	pf.String("log-format", "", "log format: text|json")
	pf.String("state-dir", "", "directory for local job records")
	pf.Duration("timeout", 0, "per-request timeout (0 = none)")
	pf.Int("max-upload-mb", 0, "per-file upload limit in MB")

	_ = root.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newGenerateCmd(),
		newInspectCmd(),
		newRecommendCmd(),
		newPreviewCmd(),
		newDownloadCmd(),
		newStudioCmd(),
		newMockServerCmd(),
		newVersionCmd(),
	)
	return root
}

// Run executes the command line in args. The caller prints the error.
func Run(args []string) error {
	return RunContext(context.Background(), args, os.Stdout, os.Stderr)
}

func RunContext(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func getApp(cmd *cobra.Command) *app {
	if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
		return a
	}
	cfg, err := config.Load("", nil)
	if err != nil {
		cfg = &config.Config{ServerURL: config.DefaultServerURL, MaxUploadMB: config.DefaultMaxUploadMB, Output: config.DefaultOutput}
	}
	return &app{cfg: cfg, logger: config.GetLogger(cmd.Context())}
}

func (a *app) client() (*api.Client, error) {
	return api.New(a.cfg.ServerURL,
		api.WithTimeout(a.cfg.RequestTimeout),
		api.WithLogger(a.logger),
	)
}

func (a *app) store() (*jobstore.Store, error) {
	return jobstore.New(a.cfg.StateDir)
}

func (a *app) structured() bool {
	return a.cfg.Output == "json" || a.cfg.Output == "yaml"
}
