package cli

import (
	"time"

	"github.com/spf13/cobra"

	"poplift/internal"
)

var shutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and maintenance jobs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests on shutdown")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}

	if err := internal.PrepareSchema(app); err != nil {
		return err
	}

	return app.Run(shutdownTimeout)
}
