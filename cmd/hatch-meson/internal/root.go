package internal

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"github.com/virtuald/hatch-meson/internal/buildhook"
	"github.com/virtuald/hatch-meson/internal/config"
	"zombiezen.com/go/log"
)

var (
	showDebug          bool
	projectRoot        string
	pythonExe          string
	configSettings     []string
	configSettingsFile string
)

var rootCmd = &cobra.Command{
	Use:   "hatch-meson",
	Short: "hatch-meson builds meson projects into wheels",
	Long: `hatch-meson configures and builds a meson project and tells the hatch
packaging plugin which files belong in the wheel and how to tag it.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initLogging(showDebug)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&showDebug, "debug", false, "show debugging output")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root `dir`ectory")
	rootCmd.PersistentFlags().StringVar(&pythonExe, "python", "python3", "target Python `interpreter`")
}

// addSettingsFlags registers the config settings flags on commands that
// look at the build directory.
func addSettingsFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&configSettings, "config-setting", "C", nil, "config setting as `key=value` (repeatable)")
	cmd.Flags().StringVar(&configSettingsFile, "config-settings-file", "", "HuJSON `file` with config settings")
}

// newHook builds a hook from the global flags.
func newHook() (*buildhook.Hook, error) {
	var file []byte
	if configSettingsFile != "" {
		var err error
		file, err = os.ReadFile(configSettingsFile)
		if err != nil {
			return nil, err
		}
	}
	settings, err := config.ParseSettings(file, configSettings)
	if err != nil {
		return nil, err
	}
	return &buildhook.Hook{
		Root:     projectRoot,
		Python:   pythonExe,
		Settings: settings,
	}, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(showDebug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode passes on the exit status of a failed meson or ninja.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return 1
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "hatch-meson: ", log.StdFlags, nil),
		})
	})
}
