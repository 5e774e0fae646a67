package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"campusfeed/pkg/feed"
	"campusfeed/pkg/models"
)

func newListCmd(a *app) *cobra.Command {
	var withComments bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadFeed(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			posts := a.store.Posts()
			if len(posts) == 0 {
				fmt.Fprintln(out, "No posts yet")
				return nil
			}
			for _, p := range posts {
				if withComments && p.CommentCount > 0 {
					if err := a.store.FetchComments(cmd.Context(), p.ID); err == nil {
						p, _ = a.store.Post(p.ID)
					}
				}
				printPost(out, p)
				printThread(out, p.Comments)
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withComments, "comments", false, "Fetch and show the comments of every post")

	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <post-id>",
		Short: "Show one post with its comment thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("post", args[0])
			if err != nil {
				return err
			}
			if err := a.loadFeed(cmd.Context()); err != nil {
				return err
			}
			if err := a.store.FetchComments(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to fetch comments: %w", err)
			}

			p, ok := a.store.Post(id)
			if !ok {
				return fmt.Errorf("post %d is not in the feed", id)
			}
			out := cmd.OutOrStdout()
			printPost(out, p)
			printThread(out, p.Comments)
			return nil
		},
	}
}

// newWatchCmd reloads the feed periodically and prints a line whenever the
// invalidation counter moved since the previous reload.
func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the feed periodically and report changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("invalid interval %v", interval)
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			counter := a.store.Counter()
			seen := counter.Value()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				err := a.store.LoadFeed(ctx)
				if ctx.Err() != nil {
					return nil
				}
				if err != nil && !errors.Is(err, feed.ErrSuperseded) {
					fmt.Fprintf(out, "reload failed: %v\n", err)
				}
				if counter.Changed(seen) {
					seen = counter.Value()
					fmt.Fprintf(out, "%s feed version %d: %d posts\n", time.Now().Format(time.TimeOnly), seen, a.store.Len())
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Time between reloads")

	return cmd
}

func newLikeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "like <post-id>",
		Short: "Like or unlike a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("post", args[0])
			if err != nil {
				return err
			}
			if err := a.loadFeed(cmd.Context()); err != nil {
				return err
			}

			res := a.store.ToggleLike(cmd.Context(), id)
			if err := resultErr(res); err != nil {
				return err
			}
			if p, ok := a.store.Post(id); ok {
				printPost(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newPostCmd(a *app) *cobra.Command {
	var (
		imagePath  string
		visibility string
		category   string
	)

	cmd := &cobra.Command{
		Use:   "post <text>...",
		Short: "Publish a new post",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			np := models.NewPost{
				Content:    strings.Join(args, " "),
				Visibility: visibility,
				Category:   category,
			}
			if imagePath != "" {
				f, err := os.Open(imagePath)
				if err != nil {
					return err
				}
				defer f.Close()
				np.Image = &models.Attachment{Filename: filepath.Base(imagePath), Data: f}
			}

			res := a.store.CreatePost(cmd.Context(), np)
			var pe *feed.PostError
			if errors.As(res.Err, &pe) {
				return errors.New(pe.Message)
			}
			if err := resultErr(res); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Posted")
			if posts := a.store.Posts(); len(posts) > 0 {
				printPost(cmd.OutOrStdout(), posts[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "Attach an image file")
	cmd.Flags().StringVar(&visibility, "visibility", "", "Visibility: public or campus")
	cmd.Flags().StringVar(&category, "category", "", "Category tag")

	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Delete one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("post", args[0])
			if err != nil {
				return err
			}
			if err := a.loadFeed(cmd.Context()); err != nil {
				return err
			}
			if err := resultErr(a.store.DeletePost(cmd.Context(), id)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted post %d\n", id)
			return nil
		},
	}
}

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <post-id> <reason>...",
		Short: "Report a post to the moderators",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("post", args[0])
			if err != nil {
				return err
			}
			// Reports are best effort; a failure was already logged.
			res := a.store.ReportPost(cmd.Context(), id, strings.Join(args[1:], " "))
			if res.OK() {
				fmt.Fprintf(cmd.OutOrStdout(), "Reported post %d\n", id)
			}
			return nil
		},
	}
}
