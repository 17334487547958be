package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TFMV/mdimg/internal/check"
	"github.com/TFMV/mdimg/internal/mdv"
	"github.com/TFMV/mdimg/internal/report"
	"github.com/TFMV/mdimg/internal/scan"
	walk "github.com/TFMV/mdimg/internal/walk"
)

var (
	cfgFile string
	version = "0.1.0"
)

// errProblemsFound is returned with --fail-on-problems so the process exits non-zero.
var errProblemsFound = errors.New("image problems found")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mdimg [options] <path>",
	Short: "Check image links in Markdown index files",
	Long: `mdimg walks a directory tree, finds every index.md file and checks each
line that mentions an image (jpeg, png, svg, gif, jpg) for missing alt text
and broken, duplicated or malformed anchors.

One line is printed per problem:

  <line> : <problem>

Examples:
  mdimg ./content
  mdimg ./content --format=json
  mdimg ./content --exclude-dir=node_modules --error-mode=stop
  mdimg ./content --pattern="*.md" --ext=png,webp`,
	Version:      version,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Flags shared by every subcommand
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mdimg.yaml)")
	flags.String("pattern", scan.DefaultPattern, "File name pattern to check")
	flags.StringSlice("ext", scan.DefaultExtensions, "Image extensions that mark a line for checking")
	flags.IntP("workers", "w", 0, "Number of concurrent workers (default: number of CPUs)")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.Bool("silent", false, "Disable all logging except errors")
	flags.Bool("debug", false, "Log every validator report")
	flags.StringSlice("exclude-dir", nil, "Directory name patterns to skip")
	flags.Bool("skip-hidden", false, "Skip files and directories starting with a dot")
	flags.Bool("follow-symlinks", true, "Follow symbolic links")
	flags.String("error-mode", "continue", "Unreadable directory handling (continue|stop|skip)")

	// Check-only flags
	rootCmd.Flags().String("format", "text", "Output format (text|json)")
	rootCmd.Flags().Bool("progress", false, "Show walk progress on stderr")
	rootCmd.Flags().Bool("fail-on-problems", false, "Exit with status 1 when any problem is reported")

	// Bind flags to viper
	for _, name := range []string{
		"pattern", "ext", "workers", "verbose", "silent", "debug",
		"exclude-dir", "skip-hidden", "follow-symlinks", "error-mode",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
	for _, name := range []string{"format", "progress", "fail-on-problems"} {
		viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err == nil {
			// Search config in home directory with name ".mdimg" (without extension).
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mdimg")
	}

	viper.SetEnvPrefix("MDIMG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in. Stdout is reserved for diagnostics.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the zap logger for the verbosity flags.
func newLogger() *zap.Logger {
	switch {
	case viper.GetBool("verbose"), viper.GetBool("debug"):
		return walk.NewLogger(walk.LogLevelDebug)
	case viper.GetBool("silent"):
		return walk.NewLogger(walk.LogLevelError)
	default:
		return walk.NewLogger(walk.LogLevelInfo)
	}
}

// checkOptions maps the bound configuration onto checker options.
func checkOptions(logger *zap.Logger) (check.Options, error) {
	errorMode := viper.GetString("error-mode")
	handling, ok := walk.ParseErrorHandling(errorMode)
	if !ok {
		return check.Options{}, fmt.Errorf("invalid error-mode: %s", errorMode)
	}

	workers := viper.GetInt("workers")
	if workers < 0 {
		return check.Options{}, fmt.Errorf("invalid workers value: %d", workers)
	}

	walkOpts := walk.Options{
		ErrorHandling:   handling,
		SymlinkHandling: walk.SymlinkIgnore,
		ExcludeDir:      viper.GetStringSlice("exclude-dir"),
		SkipHidden:      viper.GetBool("skip-hidden"),
		Logger:          logger,
	}
	if viper.GetBool("follow-symlinks") {
		walkOpts.SymlinkHandling = walk.SymlinkFollow
	}
	if workers > 0 {
		walkOpts.Workers = workers * 8
	}

	return check.Options{
		Walk: walkOpts,
		Scan: scan.Options{
			Pattern:    viper.GetString("pattern"),
			Extensions: viper.GetStringSlice("ext"),
		},
		Debug:   viper.GetBool("debug"),
		Workers: workers,
		Logger:  logger,
	}, nil
}

// newChecker wires a goldmark validator and a printer for format into a Checker.
func newChecker(logger *zap.Logger, opts check.Options, format string, out io.Writer) (*check.Checker, error) {
	printer, err := report.NewPrinter(format, out)
	if err != nil {
		return nil, err
	}
	return check.New(mdv.NewGoldmark(logger), printer, opts)
}

func runCheck(ctx context.Context, root string, out io.Writer) error {
	logger := newLogger()
	defer logger.Sync()

	opts, err := checkOptions(logger)
	if err != nil {
		return err
	}
	if viper.GetBool("progress") {
		opts.Walk.Progress = func(stats walk.Stats) {
			fmt.Fprintf(os.Stderr, "\rWalked: %d dirs, %d files, %.0f dirs/s",
				stats.DirsWalked, stats.FilesFound, stats.DirsPerSec)
		}
		defer fmt.Fprintln(os.Stderr)
	}

	c, err := newChecker(logger, opts, viper.GetString("format"), out)
	if err != nil {
		return err
	}

	sum, err := c.Run(ctx, root)
	if err != nil {
		return err
	}

	logger.Info("check finished",
		zap.String("root", root),
		zap.Int("files_walked", sum.FilesWalked),
		zap.Int("files_matched", sum.FilesMatched),
		zap.Int64("lines_checked", sum.LinesChecked),
		zap.Int64("problems", sum.Problems),
		zap.Int64("files_unread", sum.FilesUnread),
		zap.Int("inaccessible", sum.Inaccessible),
		zap.Duration("elapsed", sum.Elapsed),
	)
	if sum.WalkErrors != nil {
		logger.Warn("some directories could not be read", zap.Error(sum.WalkErrors))
	}

	if viper.GetBool("fail-on-problems") && sum.Problems > 0 {
		return fmt.Errorf("%w: %d", errProblemsFound, sum.Problems)
	}
	return nil
}
