package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Gate holds the chat-facing content of the join gate: the picture and
// caption shown to newcomers, the answer buttons, and the first-message
// spam policy. It is operator-maintained and loaded once at startup.
type Gate struct {
	ImagePath      string   `yaml:"image_path"`
	WelcomeCaption string   `yaml:"welcome_caption"`
	ButtonOptions  []string `yaml:"button_options"`
	CorrectAnswer  string   `yaml:"correct_answer"`

	// Optional distinguished answer. Picking it earns a follow-up message,
	// rendered with {username} substituted.
	BestAnswer         string `yaml:"best_answer"`
	BestAnswerFollowUp string `yaml:"best_answer_follow_up"`

	BannedSubstrings []string `yaml:"banned_substrings"`
}

func LoadGate(path string) (*Gate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gate config: %w", err)
	}
	gate := &Gate{}
	if err := yaml.Unmarshal(data, gate); err != nil {
		return nil, fmt.Errorf("unmarshal gate config: %w", err)
	}
	if err := gate.Validate(); err != nil {
		return nil, err
	}
	return gate, nil
}

func (g *Gate) Validate() error {
	if len(g.ButtonOptions) == 0 {
		return fmt.Errorf("gate config: no button options")
	}
	if g.CorrectAnswer != "" && !g.HasOption(g.CorrectAnswer) {
		return fmt.Errorf("gate config: correct answer %q is not among the button options", g.CorrectAnswer)
	}
	if g.BestAnswer != "" && !g.HasOption(g.BestAnswer) {
		return fmt.Errorf("gate config: best answer %q is not among the button options", g.BestAnswer)
	}
	return nil
}

func (g *Gate) HasOption(label string) bool {
	for _, option := range g.ButtonOptions {
		if option == label {
			return true
		}
	}
	return false
}

// Option resolves a button index back to its label. Callback payloads carry
// the index, not the label, to stay inside Telegram's 64-byte data limit.
func (g *Gate) Option(index int) (string, bool) {
	if index < 0 || index >= len(g.ButtonOptions) {
		return "", false
	}
	return g.ButtonOptions[index], true
}

// RenderFollowUp substitutes the joiner's name into the follow-up template.
func (g *Gate) RenderFollowUp(username string) string {
	return strings.ReplaceAll(g.BestAnswerFollowUp, "{username}", username)
}
