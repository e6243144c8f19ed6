package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pessolato/randmicroservice/pkg/osutil"
	"github.com/pessolato/randmicroservice/pkg/stats"
)

func main() {
	benchResDir := ""
	osutil.ExitOnErr(
		osutil.Load(
			osutil.NewEnvVar("BENCH_RESULTS_DIRECTORY", &benchResDir, true),
		))

	osutil.ExitOnErr(
		filepath.WalkDir(benchResDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, "logs.jsonl") {
				return nil
			}
			return printLogSummary(path)
		}),
	)
}

func printLogSummary(path string) error {
	fmt.Printf("Summarizing result logs from file: %s\n", path)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := stats.ReadLog(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	min, max, mean, median := stats.Summarize(res.ReqTimesNano)
	fmt.Printf(
		"Request Time:\n- Min: %s\n- Max: %s\n- Mean: %s\n- Median: %s\n\n",
		time.Duration(min),
		time.Duration(max),
		time.Duration(mean),
		time.Duration(median),
	)

	verdict := "uniform"
	if !res.Values.IsUniform(stats.Z999) {
		verdict = "NOT uniform"
	}
	fmt.Printf(
		"Values:\n- Samples: %d\n- Failed: %d\n- Chi-square: %.2f (critical %.2f)\n- Verdict: %s\n\n",
		res.Values.Total(),
		res.Failed,
		res.Values.ChiSquare(),
		stats.ChiSquareCritical(stats.Buckets-1, stats.Z999),
		verdict,
	)
	return nil
}
