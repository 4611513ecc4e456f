package cmd

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Actual version can be specified in build command.
var version = "unknown"

// sdkModules are reported by `version --sdk` to pin down provider behaviour.
var sdkModules = []string{
	"google.golang.org/genai",
	"github.com/cloudwego/eino",
	"github.com/cloudwego/eino-ext/components/model/openai",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s\n", app, version)

		if sdk, _ := cmd.Flags().GetBool("sdk"); sdk {
			for _, line := range sdkVersions() {
				fmt.Println(line)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().Bool("sdk", false, "also print the provider SDK versions")
}

func sdkVersions() []string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	var lines []string
	for _, dep := range info.Deps {
		for _, name := range sdkModules {
			if dep.Path == name {
				lines = append(lines, fmt.Sprintf("  %s %s", strings.TrimPrefix(dep.Path, "github.com/"), dep.Version))
			}
		}
	}
	return lines
}
