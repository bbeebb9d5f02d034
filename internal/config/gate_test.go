package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGateFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write gate file: %v", err)
	}
	return path
}

func TestLoadGate(t *testing.T) {
	t.Parallel()

	path := writeGateFile(t, `
image_path: resources/gate.png
welcome_caption: "Bienvenue! Prouvez que vous êtes humain."
button_options:
  - "Oui"
  - "Non"
  - "Peut-être"
correct_answer: "Oui"
best_answer: "Peut-être"
best_answer_follow_up: "Bien joué, {username}!"
banned_substrings:
  - "casino"
`)

	gate, err := LoadGate(path)
	if err != nil {
		t.Fatalf("load gate: %v", err)
	}
	if gate.CorrectAnswer != "Oui" {
		t.Fatalf("correct answer: got %q", gate.CorrectAnswer)
	}
	if len(gate.ButtonOptions) != 3 {
		t.Fatalf("button options: got %v", gate.ButtonOptions)
	}
	if got := gate.RenderFollowUp("Marie"); got != "Bien joué, Marie!" {
		t.Fatalf("rendered follow-up: got %q", got)
	}
}

func TestLoadGateRejectsAnswerOutsideOptions(t *testing.T) {
	t.Parallel()

	path := writeGateFile(t, `
button_options:
  - "Oui"
correct_answer: "Non"
`)
	if _, err := LoadGate(path); err == nil {
		t.Fatal("expected validation error for answer outside the options")
	}
}

func TestLoadGateRejectsEmptyOptions(t *testing.T) {
	t.Parallel()

	path := writeGateFile(t, `
image_path: resources/gate.png
`)
	if _, err := LoadGate(path); err == nil {
		t.Fatal("expected validation error for missing button options")
	}
}

func TestLoadGateMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadGate(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing gate file")
	}
}

func TestGateOptionResolvesIndex(t *testing.T) {
	t.Parallel()

	gate := &Gate{ButtonOptions: []string{"Oui", "Non"}}
	if label, ok := gate.Option(1); !ok || label != "Non" {
		t.Fatalf("Option(1) = (%q, %v)", label, ok)
	}
	if _, ok := gate.Option(-1); ok {
		t.Fatal("negative index should not resolve")
	}
	if _, ok := gate.Option(2); ok {
		t.Fatal("out of range index should not resolve")
	}
}
