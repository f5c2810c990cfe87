package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/hotelcms/hotelcms/internal/app"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hotelcmsctl",
		Short:         "Operational tools for the hotel CMS",
		SilenceUsage: true,
	}
	cmd.AddCommand(newMigrateCmd(), newJobsCmd(), newUsersCmd())
	return cmd
}

// loadConfig reads the same environment as the server.
func loadConfig() (*app.Config, error) {
	return app.LoadConfig()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
