package commands

import (
	"mailru-backend/internal/mailru/session"

	"github.com/spf13/cobra"
)

var (
	groupsOffset *int
	groupsLimit  *int
	groupsFormat *string
	infoFormat   *string
)

func init() {
	groupsOffset = groupsCmd.Flags().Int("offset", 0, "Number of groups to skip.")
	groupsLimit = groupsCmd.Flags().Int("limit", 0, "Number of groups to return, 0 returns all of them.")
	groupsFormat = groupsCmd.Flags().String("format", "json", "Output format, json or table.")
	infoFormat = groupsInfoCmd.Flags().String("format", "json", "Output format, json or table.")
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(groupsInfoCmd)
	rootCmd.AddCommand(joinCmd)
}

var groupsCmd = &cobra.Command{
	Use:   "groups <uid>",
	Short: "Prints the communities a user belongs to, scraped from the profile.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := env.scraper.Call(cmd.Context(), "groups.get", session.Params{
			"uid":    args[0],
			"offset": *groupsOffset,
			"limit":  *groupsLimit,
		})
		if err != nil {
			return err
		}
		return printProfiles(*groupsFormat, res)
	},
}

var groupsInfoCmd = &cobra.Command{
	Use:   "groups-info <uid,uid,...>",
	Short: "Prints the profiles of the given communities, skipping uids that are not communities.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := env.scraper.Call(cmd.Context(), "groups.getInfo", session.Params{"uids": args[0]})
		if err != nil {
			return err
		}
		return printProfiles(*infoFormat, res)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <group uid>",
	Short: "Joins a community and prints whether the membership is pending or granted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := env.scraper.Call(cmd.Context(), "groups.join", session.Params{"group_id": args[0]})
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}
