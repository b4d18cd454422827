package cmd

import (
	"github.com/spf13/cobra"
	"worker-pipeline/config"
	server2 "worker-pipeline/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start the ingestion pipeline worker",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
