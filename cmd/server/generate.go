package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate [message]",
	Short: "Generate a single diagram and print the DSL",
	Long: `Sends one message to a provider without history, rate limiting or the HTTP layer,
and prints the resulting DSL (or the conversational reply) to stdout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		providerID, _ := cmd.Flags().GetString("provider")
		if providerID == "" {
			providerID = cfg.Providers.Default
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.generation.Generate(cmd.Context(), strings.Join(args, " "), providerID, nil)
		if !res.Success {
			return fmt.Errorf("%s: %s", res.Provider, res.Error)
		}

		out := cmd.OutOrStdout()
		if res.DSL != nil {
			fmt.Fprintln(out, *res.DSL)
			fmt.Fprintln(cmd.ErrOrStderr(), res.Explanation)
		} else {
			fmt.Fprintln(out, res.Explanation)
		}
		if res.FallbackUsed {
			fmt.Fprintf(cmd.ErrOrStderr(), "(answered by %s after %s failed)\n", res.Provider, providerID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringP("provider", "p", "", "Provider id (defaults to providers.default)")
}
