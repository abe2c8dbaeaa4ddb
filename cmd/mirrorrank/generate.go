package main

import (
	"context"
	"fmt"
	"os"

	"github.com/BadgerOps/mirrorrank/internal/config"
	"github.com/BadgerOps/mirrorrank/internal/mirror"
	"github.com/BadgerOps/mirrorrank/internal/mirrorlist"
	"github.com/spf13/cobra"
)

var (
	flagCountry     string
	flagProtocols   []string
	flagRequireIPv4 bool
	flagRequireIPv6 bool
	flagMaxDelay    int64
	flagOutput      string
	flagLimit       int
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a ranked pacman mirrorlist",
		Long: `Fetch the mirror status feed, filter it by the configured criteria and any
flags given here, and write the surviving mirrors best-first as a pacman
mirrorlist. Output goes to stdout unless --output or output.path is set.

With --limit N only the first N Server lines are active; the rest are kept in
the file commented out.`,
		Example: `  mirrorrank generate --country DE
  mirrorrank generate --protocol https,rsync --require-ipv6
  mirrorrank generate --delay 1800 -o /etc/pacman.d/mirrorlist --limit 10`,
		RunE: generateRun,
	}

	addCriteriaFlags(cmd)
	addOutputFlags(cmd)

	return cmd
}

func addCriteriaFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagCountry, "country", "", "two-letter country code mirrors must be in")
	cmd.Flags().StringSliceVar(&flagProtocols, "protocol", nil, "allowed protocols (repeatable or comma-separated)")
	cmd.Flags().BoolVar(&flagRequireIPv4, "require-ipv4", true, "require IPv4 support")
	cmd.Flags().BoolVar(&flagRequireIPv6, "require-ipv6", false, "require IPv6 support")
	cmd.Flags().Int64Var(&flagMaxDelay, "delay", mirror.DefaultMaxDelay, "maximum sync delay in seconds")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the mirrorlist to this file instead of stdout")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "number of active Server lines (0 for all)")
}

// resolveCriteria overlays the criteria flags the user set on the configured criteria.
func resolveCriteria(cmd *cobra.Command, base config.CriteriaConfig) (mirror.Criteria, error) {
	cc := base
	f := cmd.Flags()

	if f.Changed("country") {
		cc.Country = flagCountry
	}
	if f.Changed("protocol") {
		cc.Protocols = flagProtocols
	}
	if f.Changed("require-ipv4") {
		cc.RequireIPv4 = flagRequireIPv4
	}
	if f.Changed("require-ipv6") {
		cc.RequireIPv6 = flagRequireIPv6
	}
	if f.Changed("delay") {
		delay := flagMaxDelay
		cc.MaxDelay = &delay
	}

	if err := config.ValidateCriteria(cc); err != nil {
		return mirror.Criteria{}, fmt.Errorf("invalid criteria: %w", err)
	}
	for _, w := range cc.Warnings() {
		logger.Warn(w)
	}
	return cc.Criteria(), nil
}

// resolveOutput returns the output path and active line limit, flags first.
func resolveOutput(cmd *cobra.Command, base config.OutputConfig) (string, int, error) {
	path, limit := base.Path, base.Limit
	if cmd.Flags().Changed("output") {
		path = flagOutput
	}
	if cmd.Flags().Changed("limit") {
		limit = flagLimit
	}
	if limit < 0 {
		return "", 0, fmt.Errorf("--limit must not be negative")
	}
	if path == "-" {
		path = ""
	}
	return path, limit, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func generateRun(cmd *cobra.Command, args []string) error {
	if globalGenerator == nil {
		return fmt.Errorf("generator not initialized")
	}

	criteria, err := resolveCriteria(cmd, globalCfg.Criteria)
	if err != nil {
		return err
	}
	path, limit, err := resolveOutput(cmd, globalCfg.Output)
	if err != nil {
		return err
	}

	res, err := globalGenerator.Generate(commandContext(cmd), criteria)
	if err != nil {
		return fmt.Errorf("generating mirrorlist: %w", err)
	}
	if len(res.Mirrors) == 0 {
		logger.Warn("no mirrors matched the criteria", "criteria", mirrorlist.Describe(criteria), "rejections", res.Rejections)
	}

	opts := mirrorlist.Options{
		Limit:       limit,
		Criteria:    res.Criteria,
		SourceURL:   res.SourceURL,
		GeneratedAt: res.GeneratedAt,
	}
	if path == "" {
		if err := mirrorlist.Write(os.Stdout, res.Mirrors, opts); err != nil {
			return err
		}
	} else {
		if err := mirrorlist.WriteFile(path, res.Mirrors, opts); err != nil {
			return err
		}
		logger.Info("mirrorlist written", "path", path, "mirrors", len(res.Mirrors), "limit", limit)
	}

	if err := globalGenerator.Record(res, path); err != nil {
		return err
	}
	return nil
}
