package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <plan>",
	Short: "Execute a plan to completion",
	Long: `Loads a plan (file or directory), validates it and runs every inference
the dependency graph allows. Script and input paradigms are served when
their flags enable them; model paradigms need an embedding program and
fail as collaborator errors here.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, _ := cmd.Flags().GetString("store")
		redisAddr, _ := cmd.Flags().GetString("redis-addr")
		checkpoint, _ := cmd.Flags().GetBool("checkpoint")
		resume, _ := cmd.Flags().GetString("resume")
		interactive, _ := cmd.Flags().GetBool("interactive")
		scriptAllow, _ := cmd.Flags().GetStringSlice("script-allow")
		workers, _ := cmd.Flags().GetInt("workers")
		loopCeiling, _ := cmd.Flags().GetInt("loop-ceiling")
		output, _ := cmd.Flags().GetString("output")
		logLevel, _ := cmd.Flags().GetString("log-level")
		watch, _ := cmd.Flags().GetBool("watch")

		err := cli.Execute(cli.RunOptions{
			Source:      args[0],
			Store:       store,
			RedisAddr:   redisAddr,
			Checkpoint:  checkpoint,
			Resume:      resume,
			Interactive: interactive,
			ScriptAllow: scriptAllow,
			Workers:     workers,
			LoopCeiling: loopCeiling,
			Output:      output,
			LogLevel:    logLevel,
			Watch:       watch,
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("store", "", "Snapshot store: memory or redis")
	runCmd.Flags().Bool("checkpoint", false, "Checkpoint the run state after execution (even when interrupted)")
	runCmd.Flags().String("resume", "", "Resume from the given checkpoint ID before running")
	runCmd.Flags().Bool("interactive", false, "Serve input paradigms from the terminal")
	runCmd.Flags().StringSlice("script-allow", nil, "Commands the script paradigm may execute")
	runCmd.Flags().Int("workers", 0, "Concurrent inference workers (0 = default)")
	runCmd.Flags().Int("loop-ceiling", 0, "Hard cap on loop iterations (0 = default)")
	runCmd.Flags().String("output", "text", "Output mode: text or json")
	runCmd.Flags().BoolP("watch", "w", false, "Rerun on plan changes (directory plans only)")
}
