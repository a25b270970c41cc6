package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "costsense",
	Short: "CostSense turns chat messages into architecture diagrams",
	Long: `CostSense sends chat messages to a configured LLM provider, interprets the reply
as diagram DSL or plain conversation, and serves the result over HTTP.`,
	// 不带子命令时启动 HTTP 服务
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
	SilenceUsage: true,
}

// Execute 执行根命令，出错时以非零状态退出。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "./configs/config.yaml", "Path to the YAML configuration file")
}
