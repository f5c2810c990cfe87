package main

import (
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/hotelcms/hotelcms/jobs"
)

func newJobsCmd() *cobra.Command {
	var redisAddr string

	client := func() (*jobs.Client, error) {
		addr := redisAddr
		if addr == "" {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			addr = cfg.RedisAddr
		}
		return jobs.NewClient(asynq.RedisClientOpt{Addr: addr}), nil
	}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}
	cmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")

	cmd.AddCommand(
		&cobra.Command{
			Use:       "trigger <name>",
			Short:     "Enqueue a job with its default payload",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{jobs.TaskIdempotencyCleanup, jobs.TaskBacklogRefresh},
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := jobs.NewTask(args[0]); err != nil {
					return err
				}
				c, err := client()
				if err != nil {
					return err
				}
				defer c.Close()
				info, err := c.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print default queue statistics",
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client()
				if err != nil {
					return err
				}
				defer c.Close()
				stats, err := c.InspectQueue()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			},
		},
	)
	return cmd
}
