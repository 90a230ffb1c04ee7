package commands

import (
	"fmt"
	"log/slog"
	"mailru-backend/internal/chrono"
	"mailru-backend/internal/mailru/scraper"
	"mailru-backend/internal/mailru/session"
	"mailru-backend/internal/store"

	"github.com/spf13/cobra"
)

var (
	streamLimit    *int
	streamSkip     *string
	streamScrape   *bool
	streamDb       *string
	streamContinue *bool
	streamFormat   *string
)

func init() {
	streamLimit = streamCmd.Flags().Int("limit", scraper.DefaultLimit, "Number of events to return, 0 returns the whole stream when scraping.")
	streamSkip = streamCmd.Flags().String("skip", "", "Return the events after this event id.")
	streamScrape = streamCmd.Flags().Bool("scrape", false, "Scrape the profile page instead of calling the API.")
	streamDb = streamCmd.Flags().String("db", "", "Store scraped events in this sqlite database, overrides the store config.")
	streamContinue = streamCmd.Flags().Bool("continue", false, "Continue after the oldest stored event, requires a store.")
	streamFormat = streamCmd.Flags().String("format", "json", "Output format, json or table.")
	rootCmd.AddCommand(streamCmd)
}

func openStore() (*store.Store, func(), error) {
	cfg := env.config.Store
	if *streamDb != "" {
		cfg = store.Config{File: *streamDb}
	}
	if cfg.File == "" && cfg.Url == "" {
		return nil, func() {}, nil
	}
	db, err := cfg.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	s := store.NewStore(db, chrono.NewStandardTime())
	return &s, func() { db.Close() }, nil
}

var streamCmd = &cobra.Command{
	Use:   "stream <uid> [--scrape] [--limit <n>] [--skip <event id>] [--db <path/to/events.db>]",
	Short: "Prints the stream of a user or community.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		uid := args[0]

		if !*streamScrape {
			params := session.Params{"uid": uid, "limit": *streamLimit}
			if *streamSkip != "" {
				params["skip"] = *streamSkip
			}
			res, err := env.scraper.Call(ctx, "stream.getByAuthor", params)
			if err != nil {
				return err
			}
			return printJSON(res)
		}

		link, passthrough, err := env.scraper.ProfileLink(ctx, uid)
		if err != nil {
			return err
		}
		if passthrough != nil {
			return printJSON(passthrough)
		}

		events, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		skip := *streamSkip
		if *streamContinue {
			if events == nil {
				return fmt.Errorf("--continue requires --db or a store config")
			}
			oldest, ok, err := events.Oldest(ctx, link)
			if err != nil {
				return err
			}
			if ok {
				skip = oldest
			}
		}

		scraped, err := env.scraper.ScrapeFeed(ctx, link, skip, *streamLimit)
		if err != nil {
			return err
		}

		if events != nil {
			inserted, err := events.Upsert(ctx, link, scraped)
			if err != nil {
				return fmt.Errorf("store events: %w", err)
			}
			slog.Info("stored events", "link", link, "scraped", len(scraped), "new", inserted)
		}
		return printEvents(*streamFormat, scraped)
	},
}
