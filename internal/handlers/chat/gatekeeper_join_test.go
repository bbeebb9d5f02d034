package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
)

func stubGateImage(t *testing.T, g *Gatekeeper) {
	t.Helper()
	imagePath := filepath.Join(t.TempDir(), "gate.png")
	if err := os.WriteFile(imagePath, []byte("not really a png"), 0o600); err != nil {
		t.Fatalf("write gate image: %v", err)
	}
	g.gate.ImagePath = imagePath
}

func TestIssueChallengeRecordsDispatchedMessageID(t *testing.T) {
	t.Parallel()

	store := &fakeGateStore{}
	g, calls := newTestGatekeeper(t, store, ExactMatchPolicy)
	stubGateImage(t, g)

	chat := &api.Chat{ID: -100111, Type: "supergroup"}
	user := &api.User{ID: 777, FirstName: "Test"}
	if err := g.issueChallenge(context.Background(), chat, user, 54); err != nil {
		t.Fatalf("issue challenge: %v", err)
	}

	if store.challenge == nil {
		t.Fatal("challenge record missing after dispatch")
	}
	if store.challenge.ChallengeMessageID != 99 {
		t.Fatalf("challenge message id: got %d, want the dispatched one", store.challenge.ChallengeMessageID)
	}
	if got := g.scheduler.Pending(); got != 1 {
		t.Fatalf("armed expiry actions: got %d, want 1", got)
	}
	if got := calls.count("sendPhoto"); got != 1 {
		t.Fatalf("photo dispatches: got %d, want 1", got)
	}
}

func TestDispatchFailureBansJoinerAndRemovesRecord(t *testing.T) {
	t.Parallel()

	store := &fakeGateStore{}
	g, calls := newTestGatekeeper(t, store, ExactMatchPolicy)
	stubGateImage(t, g)
	calls.failMethod("sendPhoto")

	chat := &api.Chat{ID: -100111, Type: "supergroup"}
	user := &api.User{ID: 777, FirstName: "Test"}
	if err := g.issueChallenge(context.Background(), chat, user, 54); err == nil {
		t.Fatal("expected dispatch error")
	}

	if store.challenge != nil {
		t.Fatal("undispatched challenge record should be removed")
	}
	if got := calls.count("banChatMember"); got != 1 {
		t.Fatalf("bans: got %d, want 1", got)
	}
	if got := g.scheduler.Pending(); got != 0 {
		t.Fatalf("no expiry should be armed for a failed dispatch, pending: %d", got)
	}
}

func TestChallengeExpiryWithStaleTokenIsNoop(t *testing.T) {
	t.Parallel()

	store := &fakeGateStore{challenge: outstandingChallenge()}
	g, calls := newTestGatekeeper(t, store, ExactMatchPolicy)

	g.expireChallenge(context.Background(), -100111, 777, "superseded-token")

	if store.challenge == nil {
		t.Fatal("a stale expiry must not remove the current challenge")
	}
	if store.deleteCalls != 0 {
		t.Fatalf("record deletions: got %d, want 0", store.deleteCalls)
	}
	if got := calls.count("banChatMember"); got != 0 {
		t.Fatalf("bans: got %d, want 0", got)
	}
}

func TestChallengeExpiryAfterResolutionIsNoop(t *testing.T) {
	t.Parallel()

	store := &fakeGateStore{}
	g, calls := newTestGatekeeper(t, store, ExactMatchPolicy)

	g.expireChallenge(context.Background(), -100111, 777, "challenge-token")

	if got := calls.count("banChatMember"); got != 0 {
		t.Fatalf("bans after resolution: got %d, want 0", got)
	}
	if got := calls.count("deleteMessage"); got != 0 {
		t.Fatalf("message deletions after resolution: got %d, want 0", got)
	}
}

func TestChallengeExpiryBansOutstandingJoiner(t *testing.T) {
	t.Parallel()

	store := &fakeGateStore{challenge: outstandingChallenge()}
	g, calls := newTestGatekeeper(t, store, ExactMatchPolicy)

	g.expireChallenge(context.Background(), -100111, 777, "challenge-token")

	if store.challenge != nil {
		t.Fatal("expired challenge record should be removed")
	}
	if got := calls.count("banChatMember"); got != 1 {
		t.Fatalf("bans: got %d, want 1", got)
	}
	if got := calls.count("deleteMessage"); got != 2 {
		t.Fatalf("message deletions (challenge + join): got %d, want 2", got)
	}
}
