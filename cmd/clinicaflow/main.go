// Command clinicaflow runs the triage pipeline once on a JSON intake read
// from stdin or a file and prints the result. Useful for demos, benchmarks,
// and CI checks.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/linnemanlabs/clinicaflow/internal/auditbundle"
	"github.com/linnemanlabs/clinicaflow/internal/fhirexport"
	"github.com/linnemanlabs/clinicaflow/internal/policypack"
	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		input      string
		output     string
		pretty     bool
		fhir       bool
		redact     bool
		policyPath string
		auditDir   string
	)
	flag.StringVar(&input, "input", "-", "path to intake JSON file (\"-\" = stdin)")
	flag.StringVar(&output, "output", "", "optional output JSON path (default stdout)")
	flag.BoolVar(&pretty, "pretty", false, "pretty-print JSON output")
	flag.BoolVar(&fhir, "fhir", false, "emit a FHIR R4 bundle instead of the raw result")
	flag.BoolVar(&redact, "redact", false, "redact demographics and free text in the FHIR bundle")
	flag.StringVar(&policyPath, "policy-pack-path", "", "policy pack JSON path (empty = embedded default pack)")
	flag.StringVar(&auditDir, "audit-dir", "", "optional directory for a reviewable audit bundle with a sha256 manifest")
	flag.Parse()

	var data []byte
	var err error
	if input == "" || input == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return fmt.Errorf("read intake: %w", err)
	}

	var intake triage.PatientIntake
	if err := json.Unmarshal(data, &intake); err != nil {
		return fmt.Errorf("decode intake: %w", err)
	}

	pipeline := triage.NewPipeline(triage.PipelineOptions{
		PolicyAdvisor: &policypack.Advisor{Source: &policypack.Source{Path: policyPath}},
	})
	result := pipeline.Run(context.Background(), &intake, "")

	if auditDir != "" {
		if err := auditbundle.Write(auditDir, &intake, result, auditbundle.Options{Redact: redact}); err != nil {
			return fmt.Errorf("write audit bundle: %w", err)
		}
	}

	var out any = result
	if fhir {
		out = fhirexport.Build(&intake, result, fhirexport.Options{Redact: redact})
	}

	var encoded []byte
	if pretty {
		encoded, err = json.MarshalIndent(out, "", "  ")
	} else {
		encoded, err = json.Marshal(out)
	}
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	encoded = append(encoded, '\n')

	if output == "" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(output, encoded, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
