package internal

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/virtuald/hatch-meson/internal/buildhook"
)

var (
	buildTarget  string
	buildVersion string
)

var buildHookCmd = &cobra.Command{
	Use:   "build-hook",
	Short: "Build the project and print the build data as JSON",
	Long: `Build-hook configures and builds the meson project, copies built modules
into the package source tree and prints the files and tag the wheel needs.
Tool output goes to stderr; stdout only carries the JSON result.`,
	Args: cobra.NoArgs,
	RunE: runBuildHook,
}

func init() {
	buildHookCmd.Flags().StringVar(&buildTarget, "target", buildhook.WheelTarget, "packaging `target` being built")
	buildHookCmd.Flags().StringVar(&buildVersion, "version", "standard", "build `version` (standard or editable)")
	addSettingsFlags(buildHookCmd)
	rootCmd.AddCommand(buildHookCmd)
}

func runBuildHook(cmd *cobra.Command, args []string) error {
	hook, err := newHook()
	if err != nil {
		return err
	}
	hook.Target = buildTarget
	data := buildhook.NewBuildData()
	if err := hook.Initialize(cmd.Context(), buildVersion, data); err != nil {
		return err
	}
	out, err := data.MarshalIndent()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(out, '\n'))
	return err
}
