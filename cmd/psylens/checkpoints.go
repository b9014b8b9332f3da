package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	redisadapter "github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/redis"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage stored run checkpoints",
	Long:  `List, inspect, remove and fork run checkpoints in the Redis snapshot store.`,
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checkpoints, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		store, cleanup := getSnapshotStore(cmd)
		defer cleanup()

		infos, err := store.List(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing checkpoints: %v\n", err)
			os.Exit(1)
		}
		if len(infos) == 0 {
			fmt.Println("No checkpoints found.")
			return
		}
		for _, info := range infos {
			line := fmt.Sprintf("- %s  plan=%s  run=%s  %s", info.ID, info.Plan, info.RunID, info.CreatedAt.Format("2006-01-02 15:04:05"))
			if info.ParentID != "" {
				line += "  parent=" + info.ParentID
			}
			fmt.Println(line)
		}
	},
}

var checkpointsShowCmd = &cobra.Command{
	Use:   "show <checkpoint-id>",
	Short: "Print one checkpoint as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, cleanup := getSnapshotStore(cmd)
		defer cleanup()

		snap, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Error loading checkpoint '%s': %v\n", args[0], err)
			os.Exit(1)
		}
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			fmt.Printf("Error marshaling checkpoint: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:   "delete <checkpoint-id>...",
	Short: "Remove one or more checkpoints",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, cleanup := getSnapshotStore(cmd)
		defer cleanup()

		hasError := false
		for _, id := range args {
			if err := store.Delete(cmd.Context(), id); err != nil {
				fmt.Printf("Error removing '%s': %v\n", id, err)
				hasError = true
			} else {
				fmt.Printf("Removed checkpoint '%s'\n", id)
			}
		}
		if hasError {
			os.Exit(1)
		}
	},
}

var checkpointsForkCmd = &cobra.Command{
	Use:   "fork <checkpoint-id>",
	Short: "Copy a checkpoint under a new identity",
	Long: `Duplicates the checkpoint with a fresh snapshot and run ID, recording
the source as its parent. The original stays untouched; resume either
one independently.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, cleanup := getSnapshotStore(cmd)
		defer cleanup()

		forked, err := store.Fork(cmd.Context(), args[0], uuid.NewString(), uuid.NewString())
		if err != nil {
			fmt.Printf("Error forking '%s': %v\n", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("Forked '%s' into '%s' (run %s)\n", args[0], forked.ID, forked.RunID)
	},
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsShowCmd)
	checkpointsCmd.AddCommand(checkpointsDeleteCmd)
	checkpointsCmd.AddCommand(checkpointsForkCmd)
}

// getSnapshotStore connects to the Redis store named by the persistent
// flags. Memory stores are per-process, so a management command can only
// ever see durable checkpoints.
func getSnapshotStore(cmd *cobra.Command) (*redisadapter.Store, func()) {
	addr, _ := cmd.Flags().GetString("redis-addr")
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	store := redisadapter.NewFromClient(client)
	return store, func() { _ = store.Close() }
}
