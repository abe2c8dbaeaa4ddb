package main

import (
	"fmt"
	"strings"

	"github.com/BadgerOps/mirrorrank/internal/mirror"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	speedTop        int
	speedCandidates int
)

func newSpeedTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speedtest",
		Short: "Measure live latency and throughput of the best ranked mirrors",
		Long: `Select mirrors the same way generate does, then probe the best ranked
candidates. Every candidate gets a latency check; only the --top fastest
responders are downloaded from to measure throughput.

Results are informational and do not change the ranking written by generate.`,
		Example: `  mirrorrank speedtest
  mirrorrank speedtest --country FR --candidates 30 --top 5`,
		RunE: speedTestRun,
	}

	addCriteriaFlags(cmd)
	cmd.Flags().IntVar(&speedTop, "top", 5, "number of lowest-latency mirrors to download from")
	cmd.Flags().IntVar(&speedCandidates, "candidates", 20, "number of ranked mirrors to probe")

	return cmd
}

func speedTestRun(cmd *cobra.Command, args []string) error {
	if globalGenerator == nil || globalDiscovery == nil {
		return fmt.Errorf("components not initialized")
	}
	if speedTop <= 0 || speedCandidates <= 0 {
		return fmt.Errorf("--top and --candidates must be positive")
	}

	criteria, err := resolveCriteria(cmd, globalCfg.Criteria)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	res, err := globalGenerator.Generate(ctx, criteria)
	if err != nil {
		return fmt.Errorf("selecting mirrors: %w", err)
	}

	candidates := res.Mirrors
	if len(candidates) > speedCandidates {
		candidates = candidates[:speedCandidates]
	}
	if len(candidates) == 0 {
		fmt.Println("No mirrors matched the criteria")
		return nil
	}

	probes := make([]string, 0, len(candidates))
	bases := make(map[string]string, len(candidates))
	for _, e := range candidates {
		u := mirror.ProbeURL(e.URL)
		probes = append(probes, u)
		bases[u] = e.URL
	}

	logger.Info("speed testing mirrors", "candidates", len(probes), "top", speedTop)
	results := globalDiscovery.SpeedTest(ctx, probes, speedTop)

	fmt.Printf("%-55s %10s %14s  %s\n", "Mirror", "Latency", "Throughput", "Error")
	fmt.Println(strings.Repeat("-", 90))
	for _, r := range results {
		latency := "-"
		if r.Error == "" || r.LatencyMs > 0 {
			latency = fmt.Sprintf("%d ms", r.LatencyMs)
		}
		throughput := "-"
		if r.ThroughputKBps > 0 {
			throughput = humanize.Bytes(uint64(r.ThroughputKBps*1024)) + "/s"
		}
		fmt.Printf("%-55s %10s %14s  %s\n", bases[r.URL], latency, throughput, r.Error)
	}

	return nil
}
