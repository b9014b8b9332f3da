package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	psylens "github.com/lys5588/NormCode-Psylens-sub002"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of psylens",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("psylens version %s\n", strings.TrimSpace(psylens.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
