package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"campusfeed/pkg/feed"
)

func newRootCmd() *cobra.Command {
	var (
		opts options
		a    app
	)

	rootCmd := &cobra.Command{
		Use:   "feed",
		Short: "Campus social feed client",
		Long: `feed reads and updates the campus social feed from the command line.

Likes are applied locally before the service confirms them; failed changes
are rolled back by reloading the feed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context(), opts, cmd.Flags().Changed("config"))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "campusfeed.toml", "Path to TOML config file")
	flags.StringVar(&opts.baseURL, "base-url", "", "Feed service base URL, e.g. 'https://feed.campus.edu'")
	flags.StringVar(&opts.tokenPath, "token-file", "", "Path to the session state file")
	flags.StringVar(&opts.logLevel, "log", "", "Log level: debug, info, warn, error")
	flags.IntVar(&opts.timeoutSec, "timeout", 0, "Request timeout in seconds")
	flags.StringVar(&opts.kafkaAddr, "kafka", "", "Kafka server address in the form 'host:port'")
	flags.StringVar(&opts.kafkaTopic, "topic", "", "Kafka topic for request logs")

	rootCmd.AddCommand(
		newListCmd(&a),
		newShowCmd(&a),
		newWatchCmd(&a),
		newLikeCmd(&a),
		newPostCmd(&a),
		newDeleteCmd(&a),
		newReportCmd(&a),
		newCommentCmd(&a),
		newEditCommentCmd(&a),
		newDeleteCommentCmd(&a),
		newLoginCmd(&a),
		newLogoutCmd(&a),
		newWhoamiCmd(&a),
	)

	return rootCmd
}

func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

// resultErr turns a rolled back mutation into the command's error.
func resultErr(res feed.Result) error {
	if res.OK() {
		return nil
	}
	return fmt.Errorf("%s failed: %w", res.Op, res.Err)
}
