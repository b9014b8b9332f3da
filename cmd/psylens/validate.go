package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/cli"
	"github.com/lys5588/NormCode-Psylens-sub002/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan>",
	Short: "Check a plan for consistency",
	Long: `Loads the plan and reports every static problem at once: unknown
references, duplicate declarations, operator parameter errors, ground
shapes that contradict declared axes, and loop carries with no seed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p, err := cli.LoadPlan(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		if err := validator.Validate(p); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Plan %q is valid ✅\n", p.Name)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
