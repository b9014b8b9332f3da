package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lys5588/NormCode-Psylens-sub002/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve <plan>",
	Short: "Expose a plan over HTTP or MCP",
	Long: `Builds the engine around one plan and serves it: by default a JSON API
with SSE lifecycle events and Prometheus metrics, or — with --mcp — a
Model Context Protocol server over stdio or SSE.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		mcp, _ := cmd.Flags().GetString("mcp")
		store, _ := cmd.Flags().GetString("store")
		redisAddr, _ := cmd.Flags().GetString("redis-addr")
		logLevel, _ := cmd.Flags().GetString("log-level")

		err := cli.Serve(cli.ServeOptions{
			Source:    args[0],
			Addr:      addr,
			MCP:       mcp,
			Store:     store,
			RedisAddr: redisAddr,
			LogLevel:  logLevel,
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", ":8080", "Listen address for HTTP and MCP SSE transports")
	serveCmd.Flags().String("mcp", "", "Serve MCP instead of HTTP: stdio or sse")
	serveCmd.Flags().String("store", "", "Snapshot store: memory or redis")
}
