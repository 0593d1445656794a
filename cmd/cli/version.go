package cli

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sidequest-dev/foreman/pkg/build"
)

var versionVerbose bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the foreman version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		if !versionVerbose {
			cmd.Printf("foreman %s (%s)\n", build.Version, build.Commit)
			return
		}
		cmd.Printf("foreman %s\n", build.Version)
		cmd.Printf("  commit:   %s\n", build.Commit)
		cmd.Printf("  built at: %s\n", build.Date)
		cmd.Printf("  built by: %s\n", build.BuiltBy)
		cmd.Printf("  runtime:  %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "include build metadata")
	rootCmd.AddCommand(versionCmd)
}
