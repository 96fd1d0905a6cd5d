package cmd

import (
	"github.com/FrostKing4567/Slavie/slavie"
	"github.com/spf13/cobra"
	"log"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Starts the bot, the admin API and (optionally) the webhook server",
		Run: func(cmd *cobra.Command, _ []string) {
			bot, err := slavie.New(cfg)
			if err != nil {
				log.Fatalf("error creating bot: %s", err.Error())
			}

			if err = bot.Run(cmd.Context()); err != nil {
				log.Fatalf("error running bot: %s", err.Error())
			}
		},
	}
)

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(runCmd)
}
