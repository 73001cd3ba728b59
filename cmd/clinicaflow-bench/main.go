// Command clinicaflow-bench runs the deterministic triage benchmarks: the
// labeled vignette regression set (with an optional governance gate) or a
// seeded synthetic cohort. Exit status is nonzero when the gate fails, so
// CI can consume it directly.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/linnemanlabs/clinicaflow/internal/bench"
	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

var errGateFailed = errors.New("governance gate failed")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		mode      string
		path      string
		out       string
		casesOut  string
		markdown  bool
		gate      bool
		minRecall float64
		seed      int64
		n         int
	)
	flag.StringVar(&mode, "mode", "vignettes", "benchmark mode: vignettes or synthetic")
	flag.StringVar(&path, "path", "", "vignette JSONL path (empty = embedded default set)")
	flag.StringVar(&out, "out", "", "optional JSON output path for the summary")
	flag.StringVar(&casesOut, "cases-out", "", "optional JSON output path for per-case results (vignettes mode)")
	flag.BoolVar(&markdown, "markdown", false, "print the markdown table instead of JSON")
	flag.BoolVar(&gate, "gate", false, "evaluate the governance gate and fail on violation (vignettes mode)")
	flag.Float64Var(&minRecall, "min-red-flag-recall", 95.0, "gate floor for category-level red-flag recall, percent")
	flag.Int64Var(&seed, "seed", 17, "random seed (synthetic mode)")
	flag.IntVar(&n, "n", 220, "number of synthetic cases (synthetic mode)")
	flag.Parse()

	pipeline := triage.NewPipeline(triage.PipelineOptions{})
	ctx := context.Background()

	switch mode {
	case "vignettes":
		return runVignettes(ctx, pipeline, path, out, casesOut, markdown, gate, minRecall)
	case "synthetic":
		return runSynthetic(ctx, pipeline, out, markdown, seed, n)
	default:
		return fmt.Errorf("unknown mode %q (want vignettes or synthetic)", mode)
	}
}

func runVignettes(ctx context.Context, pipeline *triage.Pipeline, path, out, casesOut string, markdown, gate bool, minRecall float64) error {
	var (
		rows []bench.Vignette
		err  error
	)
	if path == "" {
		rows, err = bench.DefaultVignettes()
	} else {
		rows, err = bench.LoadVignettes(path)
	}
	if err != nil {
		return err
	}

	summary, results := bench.RunVignettes(ctx, pipeline, rows)

	if out != "" {
		var payload any = summary
		if gate {
			payload = bench.BuildGovernanceReport(summary, results, minRecall)
		}
		if err := writeJSON(out, payload); err != nil {
			return err
		}
	}
	if casesOut != "" {
		if err := writeJSON(casesOut, results); err != nil {
			return err
		}
	}

	if markdown {
		fmt.Println(summary.MarkdownTable())
	} else {
		if err := printJSON(summary); err != nil {
			return err
		}
	}

	if gate {
		g := bench.ComputeGate(summary, minRecall)
		if err := printJSON(g); err != nil {
			return err
		}
		if !g.OK {
			return errGateFailed
		}
	}
	return nil
}

func runSynthetic(ctx context.Context, pipeline *triage.Pipeline, out string, markdown bool, seed int64, n int) error {
	if n < 1 {
		return fmt.Errorf("-n must be at least 1, got %d", n)
	}
	summary := bench.RunSynthetic(ctx, pipeline, seed, n)

	if out != "" {
		if err := writeJSON(out, summary); err != nil {
			return err
		}
	}
	if markdown {
		fmt.Println(summary.MarkdownTable())
		return nil
	}
	return printJSON(summary)
}

func printJSON(payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = os.Stdout.Write(append(encoded, '\n'))
	return err
}

func writeJSON(path string, payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
