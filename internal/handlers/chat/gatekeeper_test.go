package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/damoclesbot/damocles/internal/config"
)

func TestKeyboardRowSizes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{1, []int{1}},
		{3, []int{3}},
		{4, []int{2, 2}},
		{5, []int{3, 2}},
		{6, []int{3, 3}},
		{7, []int{3, 3, 1}},
		{9, []int{3, 3, 3}},
	}
	for _, tc := range cases {
		got := keyboardRowSizes(tc.n)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("keyboardRowSizes(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestBuildKeyboardCarriesOptionIndexes(t *testing.T) {
	t.Parallel()

	g := &Gatekeeper{
		gate: &config.Gate{
			ButtonOptions: []string{"Oui", "Non", "Peut-être"},
		},
	}
	markup := g.buildKeyboard(777)

	if len(markup.InlineKeyboard) != 1 {
		t.Fatalf("expected a single row for three options, got %d", len(markup.InlineKeyboard))
	}
	row := markup.InlineKeyboard[0]
	if len(row) != 3 {
		t.Fatalf("expected three buttons, got %d", len(row))
	}
	for i, button := range row {
		want := fmt.Sprintf("gate;777;%d", i)
		if button.CallbackData == nil || *button.CallbackData != want {
			t.Fatalf("button %d callback data: got %v, want %q", i, button.CallbackData, want)
		}
		if len(*button.CallbackData) > 64 {
			t.Fatalf("callback data exceeds the 64-byte limit: %q", *button.CallbackData)
		}
	}
}

func TestParseGateCallbackData(t *testing.T) {
	t.Parallel()

	userID, option, err := parseGateCallbackData("gate;777;2")
	if err != nil {
		t.Fatalf("parse valid data: %v", err)
	}
	if userID != 777 || option != 2 {
		t.Fatalf("parsed (%d, %d), want (777, 2)", userID, option)
	}

	malformed := []string{
		"",
		"gate",
		"gate;777",
		"gate;777;2;extra",
		"other;777;2",
		"gate;not-a-number;2",
		"gate;777;not-a-number",
	}
	for _, data := range malformed {
		if _, _, err := parseGateCallbackData(data); !errors.Is(err, errInvalidCallbackData) {
			t.Errorf("parseGateCallbackData(%q): expected invalid data error, got %v", data, err)
		}
		if isGateCallbackData(data) {
			t.Errorf("isGateCallbackData(%q) should be false", data)
		}
	}

	if !isGateCallbackData("gate;777;2") {
		t.Fatal("valid payload should be recognized")
	}
}

func TestPolicyFromName(t *testing.T) {
	t.Parallel()

	gate := &config.Gate{
		ButtonOptions: []string{"Oui", "Non"},
		CorrectAnswer: "Oui",
	}

	exact := PolicyFromName("exact")
	if !exact(gate, "Oui") {
		t.Fatal("exact policy should accept the configured answer")
	}
	if exact(gate, "Non") {
		t.Fatal("exact policy should reject other options")
	}

	any := PolicyFromName("ANY")
	if !any(gate, "Non") {
		t.Fatal("any policy should accept every option")
	}

	fallback := PolicyFromName("bogus")
	if fallback(gate, "Non") {
		t.Fatal("unknown policy name should fall back to exact matching")
	}
}

func TestIsJoinTransition(t *testing.T) {
	t.Parallel()

	transition := func(oldStatus, newStatus string) *api.ChatMemberUpdated {
		return &api.ChatMemberUpdated{
			OldChatMember: api.ChatMember{Status: oldStatus},
			NewChatMember: api.ChatMember{Status: newStatus},
		}
	}

	cases := []struct {
		old, new string
		want     bool
	}{
		{"left", "member", true},
		{"kicked", "member", true},
		{"left", "restricted", true},
		{"member", "administrator", false},
		{"member", "left", false},
		{"restricted", "member", false},
	}
	for _, tc := range cases {
		if got := isJoinTransition(transition(tc.old, tc.new)); got != tc.want {
			t.Errorf("isJoinTransition(%s -> %s) = %v, want %v", tc.old, tc.new, got, tc.want)
		}
	}
}
