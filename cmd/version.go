package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/centosci/kaijs-bridge/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and dependency information",
	RunE:  runVersion,
}

func init() {
	RootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	info := buildinfo.Get()
	if dep := buildinfo.Dependency("go.mongodb.org/mongo-driver"); dep != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "docstore driver: %s@%s\n", dep.Path, dep.Version)
	}
	return enc.Encode(info)
}
