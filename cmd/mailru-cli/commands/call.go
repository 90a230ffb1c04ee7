package commands

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(publicCmd)
}

var callCmd = &cobra.Command{
	Use:   "call <method> [key=value...]",
	Short: "Calls an API method, scraping it when the API cannot serve it.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		res, err := env.scraper.Call(cmd.Context(), args[0], params)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var publicCmd = &cobra.Command{
	Use:   "public <segment>...",
	Short: "Sends an unsigned request to the public endpoint, ex. `public community <name>`.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := env.session.PublicRequest(cmd.Context(), args...)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}
