package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanlanch/leadscope/pkg/app"
	"github.com/jordanlanch/leadscope/pkg/audit"
	"github.com/jordanlanch/leadscope/pkg/auth"
	"github.com/jordanlanch/leadscope/pkg/history"
	"github.com/jordanlanch/leadscope/pkg/testdata"
)

var (
	userID int

	searchKeyword  string
	searchLocation string
	searchRadius   int

	seedKeyword string
	seedCity    string
	seedCount   int

	usageSince time.Duration
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.DB.Dialect)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Discover businesses and rank competitors for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			result, err := a.Search.Search(ctx, userID, searchKeyword, searchLocation, searchRadius)
			if err != nil {
				return err
			}
			if result == nil {
				return errors.New("no businesses found")
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <businessId>",
	Short: "Crawl a business website and store the contacts found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			b, err := a.Businesses.Get(ctx, args[0])
			if err != nil {
				return err
			}
			website := ""
			if b.Website != nil {
				website = *b.Website
			}

			result, status, err := a.Orchestrator.Run(ctx, b.BusinessID, website)
			if err != nil {
				return fmt.Errorf("crawl ended %s: %w", status, err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"businessId":      b.BusinessID,
				"scraping_status": status,
				"result":          result,
			})
		})
	},
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank competitors for the latest search of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ranked, err := a.Ranker.Rank(ctx, userID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ranked)
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store generated businesses as a search of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := testdata.Cities[seedCity]; !ok {
			return fmt.Errorf("unknown city %q", seedCity)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			candidates := testdata.GenerateCandidatesFor(seedKeyword, seedCity, seedCount)
			stored, err := a.Upserter.Upsert(ctx, candidates, seedKeyword)
			if err != nil {
				return err
			}

			row, err := a.Tracker.RecordSearch(ctx, userID, seedKeyword, seedCity, history.IDsFrom(stored))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d businesses as search %d\n", len(stored), row.SearchID)
			return nil
		})
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Summarise maps provider calls made for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			usage, err := a.Audit.UsageByUser(ctx, userID, time.Now().Add(-usageSince))
			if err != nil {
				return err
			}
			if usage == nil {
				usage = []audit.Usage{}
			}
			return printJSON(cmd.OutOrStdout(), usage)
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			token, err := auth.GenerateJWT(userID, a.Config.JWTSecret, a.Config.JWTExpirationHours)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke an API token until it expires",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if a.Cache == nil {
				return errors.New("revoking tokens requires REDIS_URL")
			}
			claims, err := auth.NewTokenBlacklist(a.Cache).Revoke(ctx, args[0], a.Config.JWTSecret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked token of user %d for %s\n",
				claims.UserID, claims.Remaining(time.Now()).Round(time.Second))
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, rankCmd, seedCmd, usageCmd, tokenCmd} {
		c.Flags().IntVar(&userID, "user", 0, "User id")
		c.MarkFlagRequired("user")
	}

	searchCmd.Flags().StringVar(&searchKeyword, "keyword", "", "Business keyword, e.g. dentist")
	searchCmd.Flags().StringVar(&searchLocation, "location", "", "Address or place to search around")
	searchCmd.Flags().IntVar(&searchRadius, "radius", 5000, "Search radius in meters")
	searchCmd.MarkFlagRequired("keyword")
	searchCmd.MarkFlagRequired("location")

	seedCmd.Flags().StringVar(&seedKeyword, "keyword", "restaurant", "Niche of the generated businesses")
	seedCmd.Flags().StringVar(&seedCity, "city", "New York, NY", "City to place the businesses in")
	seedCmd.Flags().IntVar(&seedCount, "count", 20, "Number of businesses")

	usageCmd.Flags().DurationVar(&usageSince, "since", 30*24*time.Hour, "Look-back window")
}
