package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-timelines/internal/app"
	"github.com/blackmichael/bluesky-timelines/internal/session"
)

func newShowCommand(g *globals) *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Load a timeline and print its posts",
		Long: `show logs in, loads the given number of pages of a timeline through a
session (with reply context attached) and prints them newest first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := a.Registry.Get(ctx, args[0])
			if err != nil {
				return err
			}

			ctrl := session.NewController(a.Pipeline, cfg, a.Actor(), g.logger)
			for i := 0; i < pages; i++ {
				if err := ctrl.LoadMore(ctx); err != nil {
					return fmt.Errorf("load page %d: %w", i+1, err)
				}
				if !ctrl.Snapshot().HasMore {
					break
				}
			}

			snap := ctrl.Snapshot()
			printPosts(cmd.OutOrStdout(), snap.Posts(), time.Now())
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d posts in %d segments, more: %t\n",
				cfg.Identity.Name, len(snap.Posts()), len(snap.Segments), snap.HasMore)
			return nil
		},
	}
	cmd.Flags().IntVarP(&pages, "pages", "n", 1, "Number of pages to load")
	return cmd
}
