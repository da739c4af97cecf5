package internal

import (
	"fmt"
	"os"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print where meson's install plan lands in the wheel",
	Long: `Plan reads the install plan of an already configured build directory,
applies the --tags and --skip-subprojects install arguments and prints the
files of each wheel directory as JSON.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Print the wheel tag of an already built build directory",
	Args:  cobra.NoArgs,
	RunE:  runTag,
}

func init() {
	addSettingsFlags(planCmd)
	addSettingsFlags(tagCmd)
	rootCmd.AddCommand(planCmd, tagCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	hook, err := newHook()
	if err != nil {
		return err
	}
	buckets, err := hook.Plan(cmd.Context())
	if err != nil {
		return err
	}
	out, err := jsonv2.Marshal(buckets, jsonv2.Deterministic(true), jsontext.Multiline(true), jsontext.WithIndent("  "))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(out, '\n'))
	return err
}

func runTag(cmd *cobra.Command, args []string) error {
	hook, err := newHook()
	if err != nil {
		return err
	}
	tag, err := hook.Tag(cmd.Context())
	if err != nil {
		return err
	}
	_, err = fmt.Println(tag)
	return err
}
