package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCommentCmd(a *app) *cobra.Command {
	var replyTo int64

	cmd := &cobra.Command{
		Use:   "comment <post-id> <text>...",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := parseID("post", args[0])
			if err != nil {
				return err
			}
			if err := a.loadFeed(cmd.Context()); err != nil {
				return err
			}

			var parentID *int64
			if replyTo > 0 {
				parentID = &replyTo
			}
			res := a.store.AddComment(cmd.Context(), postID, strings.Join(args[1:], " "), parentID)
			if err := resultErr(res); err != nil {
				return err
			}
			return printComments(cmd, a, postID)
		},
	}
	cmd.Flags().Int64Var(&replyTo, "reply-to", 0, "Id of the comment to reply to")

	return cmd
}

func newEditCommentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit-comment <post-id> <comment-id> <text>...",
		Short: "Edit one of your comments",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := parseID("post", args[0])
			if err != nil {
				return err
			}
			commentID, err := parseID("comment", args[1])
			if err != nil {
				return err
			}
			if err := a.loadFeed(cmd.Context()); err != nil {
				return err
			}

			res := a.store.EditComment(cmd.Context(), commentID, postID, strings.Join(args[2:], " "))
			if err := resultErr(res); err != nil {
				return err
			}
			return printComments(cmd, a, postID)
		},
	}
}

func newDeleteCommentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-comment <post-id> <comment-id>",
		Short: "Delete one of your comments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := parseID("post", args[0])
			if err != nil {
				return err
			}
			commentID, err := parseID("comment", args[1])
			if err != nil {
				return err
			}
			if err := a.loadFeed(cmd.Context()); err != nil {
				return err
			}

			res := a.store.DeleteComment(cmd.Context(), commentID, postID)
			if err := resultErr(res); err != nil {
				return err
			}
			return printComments(cmd, a, postID)
		},
	}
}

func printComments(cmd *cobra.Command, a *app, postID int64) error {
	p, ok := a.store.Post(postID)
	if !ok {
		return fmt.Errorf("post %d is not in the feed", postID)
	}
	printPost(cmd.OutOrStdout(), p)
	printThread(cmd.OutOrStdout(), p.Comments)
	return nil
}
