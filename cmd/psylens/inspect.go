package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/cli"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <plan>",
	Short: "Describe a plan and its dependency graph",
	Long: `Loads the plan and prints its concept and inference tables plus a
Mermaid diagram of the dependency graph. Styled on a terminal, plain
markdown when piped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.Inspect(cmd.Context(), args[0]); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
