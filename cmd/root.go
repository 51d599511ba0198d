// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/preview-capture/internal/config"
	"github.com/xkilldash9x/preview-capture/internal/observability"
)

// app carries the state shared by every subcommand of one root command.
type app struct {
	cfgFile  string
	logLevel string
	v        *viper.Viper
}

// NewRootCommand builds a fresh command tree. Each call is independent of the others.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "preview-capture",
		Short: "Captures link preview screenshots of web pages.",
		Long: `preview-capture drives a headless browser to a page, optionally logs in or
dismisses dialogs, takes a screenshot and stores it locally or in S3.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logger.level")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newCaptureCmd(a),
		newRedirectPageCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// initialize reads the config file and environment, then sets up logging.
// Logs go to stderr so command output on stdout stays machine readable.
func (a *app) initialize(cmd *cobra.Command) error {
	v, err := config.NewViper(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	if a.logLevel != "" {
		v.Set("logger.level", a.logLevel)
	}
	a.v = v

	cfg, err := config.Decode(v)
	if err != nil {
		// Initialize a fallback logger if config unmarshal fails
		observability.Initialize(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "preview-capture"}, zapcore.Lock(os.Stderr))
		return err
	}
	observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))

	observability.GetLogger().Debug("Starting preview-capture",
		zap.String("version", Version),
		zap.String("command", cmd.Name()),
	)
	return nil
}

// bindFlag maps a command flag onto a config key so it overrides file and env values.
func (a *app) bindFlag(cmd *cobra.Command, key, flag string) error {
	if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		return fmt.Errorf("failed to bind --%s: %w", flag, err)
	}
	return nil
}

// Execute runs the root command and reports any error on stderr.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}
