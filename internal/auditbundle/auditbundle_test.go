package auditbundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linnemanlabs/clinicaflow/internal/triage"
)

func sampleIntake() *triage.PatientIntake {
	return &triage.PatientIntake{
		ChiefComplaint: "chest pain",
		Demographics:   map[string]string{"age": "58", "sex": "female"},
		PriorNotes:     []string{"seen last week for cough"},
		Vitals:         triage.Vitals{HeartRate: triage.Float(96), SpO2: triage.Float(97)},
	}
}

func sampleResult() *triage.Result {
	return &triage.Result{
		RunID:                  "run-1",
		RequestID:              "req-1",
		PipelineVersion:        triage.PipelineVersion,
		RiskTier:               triage.TierUrgent,
		EscalationRequired:     true,
		RedFlags:               []string{"Potential acute coronary syndrome"},
		RecommendedNextActions: []string{"Urgent clinician review", "Obtain ECG"},
		ClinicianHandoff:       "Situation: urgent chest pain.",
		Confidence:             0.82,
	}
}

func TestBuildFiles(t *testing.T) {
	t.Parallel()

	files, err := BuildFiles(sampleIntake(), sampleResult(), Options{})
	if err != nil {
		t.Fatalf("BuildFiles: %v", err)
	}

	for _, name := range []string{"intake.json", "triage_result.json", "actions_checklist.json", "note.md", "manifest.json"} {
		if _, ok := files[name]; !ok {
			t.Errorf("bundle missing %s", name)
		}
	}
	if len(files) != 5 {
		t.Errorf("bundle has %d files, want 5", len(files))
	}
}

func TestBuildFiles_ManifestHashes(t *testing.T) {
	t.Parallel()

	files, err := BuildFiles(sampleIntake(), sampleResult(), Options{})
	if err != nil {
		t.Fatalf("BuildFiles: %v", err)
	}

	var m Manifest
	if err := json.Unmarshal(files["manifest.json"], &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.RunID != "run-1" || m.RequestID != "req-1" {
		t.Errorf("manifest ids = %q/%q, want run-1/req-1", m.RunID, m.RequestID)
	}
	if m.RulesVersion != triage.RulesVersion {
		t.Errorf("rules_version = %q, want %q", m.RulesVersion, triage.RulesVersion)
	}
	if m.Redacted {
		t.Error("redacted = true for an unredacted bundle")
	}

	if len(m.FileHashes) != 4 {
		t.Errorf("manifest hashes %d files, want 4", len(m.FileHashes))
	}
	for name, want := range m.FileHashes {
		data, ok := files[name]
		if !ok {
			t.Errorf("manifest references missing file %s", name)
			continue
		}
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != want {
			t.Errorf("%s hash = %s, want %s", name, got, want)
		}
	}
	if _, ok := m.FileHashes["manifest.json"]; ok {
		t.Error("manifest hashes itself")
	}
}

func TestBuildFiles_Redact(t *testing.T) {
	t.Parallel()

	files, err := BuildFiles(sampleIntake(), sampleResult(), Options{Redact: true})
	if err != nil {
		t.Fatalf("BuildFiles: %v", err)
	}

	var intake triage.PatientIntake
	if err := json.Unmarshal(files["intake.json"], &intake); err != nil {
		t.Fatalf("decode intake: %v", err)
	}
	if len(intake.Demographics) != 0 {
		t.Errorf("demographics = %v, want removed", intake.Demographics)
	}
	if len(intake.PriorNotes) != 0 {
		t.Errorf("prior notes = %v, want removed", intake.PriorNotes)
	}
	if intake.ChiefComplaint != "chest pain" {
		t.Errorf("chief complaint = %q, want kept", intake.ChiefComplaint)
	}

	var m Manifest
	if err := json.Unmarshal(files["manifest.json"], &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if !m.Redacted {
		t.Error("redacted = false for a redacted bundle")
	}
}

func TestBuildFiles_Checklist(t *testing.T) {
	t.Parallel()

	files, err := BuildFiles(sampleIntake(), sampleResult(), Options{})
	if err != nil {
		t.Fatalf("BuildFiles: %v", err)
	}

	var items []ChecklistItem
	if err := json.Unmarshal(files["actions_checklist.json"], &items); err != nil {
		t.Fatalf("decode checklist: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("checklist has %d items, want 2", len(items))
	}
	if items[0].Step != 1 || items[0].Action != "Urgent clinician review" || items[0].Done {
		t.Errorf("first item = %+v, want step 1, first action, not done", items[0])
	}
}

func TestBuildFiles_Note(t *testing.T) {
	t.Parallel()

	files, err := BuildFiles(sampleIntake(), sampleResult(), Options{})
	if err != nil {
		t.Fatalf("BuildFiles: %v", err)
	}

	note := string(files["note.md"])
	for _, want := range []string{
		"# Triage note run-1",
		"Risk tier: **urgent**",
		"Potential acute coronary syndrome",
		"1. Urgent clinician review",
		"Situation: urgent chest pain.",
	} {
		if !strings.Contains(note, want) {
			t.Errorf("note missing %q:\n%s", want, note)
		}
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "bundle")
	if err := Write(dir, sampleIntake(), sampleResult(), Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read bundle dir: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("bundle dir has %d files, want 5", len(entries))
	}
	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		t.Errorf("manifest.json missing: %v", err)
	}
}
