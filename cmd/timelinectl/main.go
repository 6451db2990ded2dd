// Command timelinectl inspects and manages timelines from the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-timelines/internal/config"
	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/store"
	"github.com/blackmichael/bluesky-timelines/internal/timeline"
)

type globals struct {
	cfg    *config.Config
	logger *slog.Logger
	debug  bool
}

func main() {
	g := &globals{}

	root := &cobra.Command{
		Use:   "timelinectl",
		Short: "Read and manage BlueSky semantic timelines",
		Long: `timelinectl reads configuration from the same environment variables as
the server (BLUESKY_HANDLE, BLUESKY_APP_PASSWORD, DATABASE_PATH, EMBED_API_KEY, ...).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(nil)
			if err != nil {
				return err
			}
			g.cfg = cfg

			level := slog.LevelWarn
			if g.debug || cfg.Debug {
				level = slog.LevelDebug
			}
			g.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newListCommand(g),
		newShowCommand(g),
		newLanguageCommand(g),
		newDeleteCommand(g),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func openRegistry(ctx context.Context, g *globals) (*timeline.Registry, func() error, error) {
	st, err := store.Open(ctx, g.cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return timeline.NewRegistry(st), st.Close, nil
}

func newListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List system and saved timelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, closeFn, err := openRegistry(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer closeFn()

			timelines, err := registry.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range timelines {
				fmt.Fprintf(out, "%-48s %-8s %s\n", t.Key, t.Meta.Origin, t.Identity.Name)
			}
			return nil
		},
	}
}

func newDeleteCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a saved timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, closeFn, err := openRegistry(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer closeFn()
			return registry.Delete(cmd.Context(), args[0])
		},
	}
}

func newLanguageCommand(g *globals) *cobra.Command {
	var clearPref bool
	cmd := &cobra.Command{
		Use:   "language [code]",
		Short: "Show or set the language preference applied to system timelines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, closeFn, err := openRegistry(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer closeFn()

			switch {
			case clearPref:
				return registry.SetLanguage(cmd.Context(), "")
			case len(args) == 1:
				return registry.SetLanguage(cmd.Context(), args[0])
			}
			lang, err := registry.Language(cmd.Context())
			if err != nil {
				return err
			}
			if lang == "" {
				lang = "(any)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), lang)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearPref, "clear", false, "Remove the language preference")
	return cmd
}

// printPosts writes posts in display order, indenting reply context.
func printPosts(w io.Writer, posts []domain.ScoredPost, now time.Time) {
	for _, p := range posts {
		for _, anc := range p.ReplyingTo {
			fmt.Fprintf(w, "  | @%s: %s\n", anc.Author.Handle, oneLine(anc.Text))
		}
		header := fmt.Sprintf("@%s, %s ago", p.Author.Handle, now.Sub(p.Timestamp()).Round(time.Minute))
		if p.RepostedBy != nil {
			header += fmt.Sprintf(" (reposted by @%s)", p.RepostedBy.Handle)
		}
		if p.Score != nil {
			header += fmt.Sprintf(" [score %.2f]", *p.Score)
		}
		fmt.Fprintln(w, header)
		for _, line := range strings.Split(timeline.RenderText(p), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
		fmt.Fprintln(w)
	}
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 80 {
		return string(r[:79]) + "…"
	}
	return s
}
