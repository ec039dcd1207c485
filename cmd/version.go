package cmd

import "github.com/spf13/cobra"

// Version information, injected at build time via ldflags.
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printf("docpipe %s", AppVersion)
			printf("Build Time: %s", BuildTime)
			printf("Git Commit: %s", GitCommit)
		},
	}
}
