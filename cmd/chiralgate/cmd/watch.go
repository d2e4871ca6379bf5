package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmcleod/chiralgate/broadcast"
	"github.com/jmcleod/chiralgate/session"
)

var watchRecent int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream verification outcomes published to Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.RedisAddr == "" {
			return errors.New("redis_addr is not configured")
		}
		password, err := cfg.RedisPassword.Reveal()
		if err != nil {
			return fmt.Errorf("redis_password: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bc, err := broadcast.Dial(ctx, broadcast.Options{
			Addr:     cfg.RedisAddr,
			Password: password,
			DB:       cfg.RedisDB,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer bc.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		if watchRecent > 0 {
			recent, err := bc.Recent(ctx, watchRecent)
			if err != nil {
				return err
			}
			// Recent is newest first; print in arrival order.
			for i := len(recent) - 1; i >= 0; i-- {
				enc.Encode(recent[i])
			}
		}

		err = bc.Subscribe(ctx, func(o session.Outcome) {
			enc.Encode(o)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVar(&watchRecent, "recent", 0, "Print this many recent outcomes before streaming")
}
