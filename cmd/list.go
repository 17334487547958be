package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var listCmd = &cobra.Command{
	Use:   "list [options] <path>",
	Short: "List the files that would be checked",
	Long: `List every file below <path> whose name matches --pattern.
The walk uses the same exclusion, symlink and error-mode settings as a check.

Examples:
  mdimg list ./content
  mdimg list ./content --template="{rel}"
  mdimg list ./content --pattern="*.md" --template='{"dir"} {base}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("template", "{}", "Output template ({}, {base}, {dir}, {rel}; quoted forms like {\"base\"})")

	viper.BindPFlag("list.template", listCmd.Flags().Lookup("template"))
}

func runList(ctx context.Context, root string, out io.Writer) error {
	logger := newLogger()
	defer logger.Sync()

	opts, err := checkOptions(logger)
	if err != nil {
		return err
	}
	c, err := newChecker(logger, opts, "text", io.Discard)
	if err != nil {
		return err
	}

	matched, res, err := c.Matched(ctx, root)
	if err != nil {
		return err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	template := viper.GetString("list.template")
	for _, path := range matched {
		if _, err := fmt.Fprintln(out, formatPath(template, absRoot, path)); err != nil {
			return err
		}
	}

	logger.Debug("list finished",
		zap.String("root", root),
		zap.Int("files_walked", len(res.Files)),
		zap.Int("files_matched", len(matched)),
	)
	return res.Err()
}

// formatPath replaces placeholders in a template with parts of path
func formatPath(template, root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	base := filepath.Base(path)
	dir := filepath.Dir(path)

	// Quoted forms first so "{}" does not eat the inside of {""}
	str := template
	str = strings.ReplaceAll(str, `{""}`, strconv.Quote(path))
	str = strings.ReplaceAll(str, `{"base"}`, strconv.Quote(base))
	str = strings.ReplaceAll(str, `{"dir"}`, strconv.Quote(dir))
	str = strings.ReplaceAll(str, `{"rel"}`, strconv.Quote(rel))

	str = strings.ReplaceAll(str, "{}", path)
	str = strings.ReplaceAll(str, "{base}", base)
	str = strings.ReplaceAll(str, "{dir}", dir)
	str = strings.ReplaceAll(str, "{rel}", rel)
	return str
}
