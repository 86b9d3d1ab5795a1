package cmd

import (
	"github.com/carousell/ct-go/pkg/logger/log"
	"github.com/spf13/cobra"

	"github.com/pixelhotel/messenger/internal/app"
	"github.com/pixelhotel/messenger/internal/kafka"
	"github.com/pixelhotel/messenger/internal/server"
)

var rootCmd = &cobra.Command{
	Use:           "messenger",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		app.Invoke(
			server.StartServer,
			kafka.StartConsumeFeed,
		).Run()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
