package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "psylens",
	Short: "Psylens executes inference plans over skip-propagating tensors",
	Long: `Psylens runs dependency-ordered inference plans: concepts hold tensors
over named axes, inferences derive them through combinators, loops carry
state across iterations, and checkpoints make any run resumable.

Plans load from a single JSON/YAML file or from a directory of markdown
documents (one concept or inference per file).`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address for stores and checkpoints")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (silent when unset)")
}
