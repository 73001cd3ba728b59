// Package auditbundle renders one triage run as a reviewable file bundle
// for QA and compliance: the intake, the result, an action checklist, a
// clinician note, and a manifest with sha256 hashes of every file so the
// bundle is tamper-evident.
package auditbundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

// Options controls bundle contents.
type Options struct {
	// Redact drops demographics, prior notes, and image descriptions from
	// the intake copy. The result payload is kept as-is.
	Redact bool
}

// ChecklistItem is one actionable follow-up in the bundle.
type ChecklistItem struct {
	Step   int    `json:"step"`
	Action string `json:"action"`
	Done   bool   `json:"done"`
}

// Manifest pins the bundle to the exact run and rule set that produced it.
type Manifest struct {
	CreatedAt       time.Time         `json:"created_at"`
	RunID           string            `json:"run_id"`
	RequestID       string            `json:"request_id"`
	PipelineVersion string            `json:"pipeline_version"`
	RulesVersion    string            `json:"rules_version"`
	Redacted        bool              `json:"redacted"`
	FileHashes      map[string]string `json:"file_hashes_sha256"`
}

// BuildFiles renders the bundle as in-memory files keyed by name. The
// manifest entry hashes every other file.
func BuildFiles(intake *triage.PatientIntake, result *triage.Result, opts Options) (map[string][]byte, error) {
	intakeCopy := *intake
	if opts.Redact {
		intakeCopy.Demographics = nil
		intakeCopy.PriorNotes = nil
		intakeCopy.ImageDescriptions = nil
	}

	intakeBytes, err := jsonBytes(&intakeCopy)
	if err != nil {
		return nil, fmt.Errorf("encode intake: %w", err)
	}
	resultBytes, err := jsonBytes(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	checklistBytes, err := jsonBytes(checklist(result.RecommendedNextActions))
	if err != nil {
		return nil, fmt.Errorf("encode checklist: %w", err)
	}

	files := map[string][]byte{
		"intake.json":            intakeBytes,
		"triage_result.json":     resultBytes,
		"actions_checklist.json": checklistBytes,
		"note.md":                noteMarkdown(result),
	}

	manifest := Manifest{
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		RunID:           result.RunID,
		RequestID:       result.RequestID,
		PipelineVersion: result.PipelineVersion,
		RulesVersion:    triage.RulesVersion,
		Redacted:        opts.Redact,
		FileHashes:      make(map[string]string, len(files)),
	}
	for name, data := range files {
		sum := sha256.Sum256(data)
		manifest.FileHashes[name] = hex.EncodeToString(sum[:])
	}

	manifestBytes, err := jsonBytes(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	files["manifest.json"] = manifestBytes
	return files, nil
}

// Write renders the bundle into dir, creating it if needed. The bundle may
// contain patient information; callers own storage policy.
func Write(dir string, intake *triage.PatientIntake, result *triage.Result, opts Options) error {
	files, err := BuildFiles(intake, result, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func checklist(actions []string) []ChecklistItem {
	items := make([]ChecklistItem, 0, len(actions))
	for i, a := range actions {
		items = append(items, ChecklistItem{Step: i + 1, Action: a})
	}
	return items
}

func noteMarkdown(result *triage.Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Triage note %s\n\n", result.RunID)
	fmt.Fprintf(&b, "- Risk tier: **%s**\n", result.RiskTier)
	fmt.Fprintf(&b, "- Escalation required: %t\n", result.EscalationRequired)
	fmt.Fprintf(&b, "- Confidence: %.2f\n", result.Confidence)
	fmt.Fprintf(&b, "- Rules version: %s\n\n", triage.RulesVersion)

	if len(result.RedFlags) > 0 {
		b.WriteString("## Red flags\n\n")
		for _, f := range result.RedFlags {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommended next actions\n\n")
	for i, a := range result.RecommendedNextActions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a)
	}
	b.WriteString("\n## Clinician handoff\n\n")
	b.WriteString(result.ClinicianHandoff)
	b.WriteString("\n")
	return []byte(b.String())
}

func jsonBytes(payload any) ([]byte, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
