package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	walk "github.com/TFMV/mdimg/internal/walk"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [options] <path>",
	Short: "Re-check index files as they change",
	Long: `Check the tree once, then watch it and re-check every matched file that is
created or written. Runs until interrupted.

Examples:
  mdimg watch ./content
  mdimg watch ./content --initial=false --format=json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("initial", true, "Check the whole tree before watching")
	watchCmd.Flags().String("format", "text", "Output format (text|json)")

	viper.BindPFlag("watch.initial", watchCmd.Flags().Lookup("initial"))
	viper.BindPFlag("watch.format", watchCmd.Flags().Lookup("format"))
}

func runWatch(ctx context.Context, root string, out io.Writer) error {
	logger := newLogger()
	defer logger.Sync()

	opts, err := checkOptions(logger)
	if err != nil {
		return err
	}
	c, err := newChecker(logger, opts, viper.GetString("watch.format"), out)
	if err != nil {
		return err
	}

	if viper.GetBool("watch.initial") {
		sum, err := c.Run(ctx, root)
		if err != nil {
			return err
		}
		logger.Info("initial check finished",
			zap.Int("files_matched", sum.FilesMatched),
			zap.Int64("problems", sum.Problems),
		)
	}

	fmt.Fprintf(os.Stderr, "Watching %s for changes...\n", root)
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit.")

	return walk.Watch(ctx, root, walk.WatchOptions{
		Match:      c.Match,
		SkipHidden: opts.Walk.SkipHidden,
		ExcludeDir: opts.Walk.ExcludeDir,
		Logger:     logger,
	}, func(ctx context.Context, msg walk.WatchMessage) error {
		fr, err := c.CheckFile(ctx, msg.Path)
		if err != nil {
			return err
		}
		logger.Debug("re-checked file",
			zap.String("path", msg.Path),
			zap.String("event", string(msg.Event)),
			zap.Int("lines", fr.Lines),
			zap.Int("problems", fr.Problems),
		)
		return nil
	})
}
