package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/chiralgate/captcha"
)

var fetchOut string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one question from the captcha provider",
	Long: `Fetch one question from the configured captcha provider and print its
answer. Useful for checking provider connectivity and the field mapping.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := captcha.New(cfg.Captcha())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		q, err := client.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("fetch from %s: %w", client.URL(), err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "provider: %s\n", client.URL())
		if q.ID != "" {
			fmt.Fprintf(out, "id:       %s\n", q.ID)
		}
		if q.Label != "" {
			fmt.Fprintf(out, "label:    %s\n", q.Label)
		}
		fmt.Fprintf(out, "answer:   %d\n", q.CorrectCount)
		fmt.Fprintf(out, "image:    %d bytes\n", len(q.Image))

		if fetchOut != "" {
			if err := os.WriteFile(fetchOut, q.Image, 0o600); err != nil {
				return fmt.Errorf("failed to write image: %w", err)
			}
			fmt.Fprintf(out, "saved:    %s\n", fetchOut)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "Write the decoded image to this file")
}
