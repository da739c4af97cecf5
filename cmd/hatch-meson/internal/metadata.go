package internal

import (
	"fmt"
	"os"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/spf13/cobra"
	"github.com/virtuald/hatch-meson/internal/buildhook"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Print the project metadata taken from meson.build as JSON",
	Args:  cobra.NoArgs,
	RunE:  runMetadata,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version declared in meson.build",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

var requiresCmd = &cobra.Command{
	Use:   "requires",
	Short: "Print extra requirements for building a wheel, one per line",
	Args:  cobra.NoArgs,
	RunE:  runRequires,
}

func init() {
	rootCmd.AddCommand(metadataCmd, versionCmd, requiresCmd)
}

func metadataHook() *buildhook.Hook {
	return &buildhook.Hook{Root: projectRoot, Python: pythonExe}
}

func runMetadata(cmd *cobra.Command, args []string) error {
	md := make(map[string]any)
	if err := metadataHook().UpdateMetadata(cmd.Context(), md); err != nil {
		return err
	}
	out, err := jsonv2.Marshal(md, jsonv2.Deterministic(true))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(out, '\n'))
	return err
}

func runVersion(cmd *cobra.Command, args []string) error {
	v, err := metadataHook().Version(cmd.Context())
	if err != nil {
		return err
	}
	_, err = fmt.Println(v)
	return err
}

func runRequires(cmd *cobra.Command, args []string) error {
	for _, req := range metadataHook().Requires(cmd.Context()) {
		if _, err := fmt.Println(req); err != nil {
			return err
		}
	}
	return nil
}
