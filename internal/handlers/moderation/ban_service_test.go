package handlers

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func TestParseBanlistSkipsGarbageLines(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"123",
		"",
		"   456  ",
		"not-a-number",
		"789",
	}, "\n")

	ids, err := parseBanlist(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse banlist: %v", err)
	}
	want := []int64{123, 456, 789}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("parsed ids: got %v, want %v", ids, want)
	}
}

func TestParseBanlistEmptyInput(t *testing.T) {
	t.Parallel()

	ids, err := parseBanlist(strings.NewReader(""))
	if err != nil {
		t.Fatalf("parse banlist: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
}

func TestKnownBannedMergeAndLookup(t *testing.T) {
	t.Parallel()

	s := NewBanService().(*defaultBanService)
	s.mergeKnownBanned([]int64{1, 2, 3})
	s.mergeKnownBanned([]int64{3, 4})

	for _, id := range []int64{1, 2, 3, 4} {
		if !s.IsKnownBanned(id) {
			t.Errorf("user %d should be known banned", id)
		}
	}
	if s.IsKnownBanned(5) {
		t.Error("user 5 should not be known banned")
	}
}

func TestCheckBanUsesCacheWithoutNetwork(t *testing.T) {
	t.Parallel()

	// No HTTP client is needed for a cache hit; a nil client would panic if
	// the lookup went to the network.
	s := &defaultBanService{knownBanned: map[int64]struct{}{777: {}}}
	banned, err := s.CheckBan(context.Background(), 777)
	if err != nil {
		t.Fatalf("check ban: %v", err)
	}
	if !banned {
		t.Fatal("cached user should be reported banned")
	}
}

func TestKnownBannedConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := NewBanService().(*defaultBanService)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.mergeKnownBanned([]int64{int64(i)})
			s.IsKnownBanned(int64(i))
			s.markKnownBanned(int64(100 + i))
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		if !s.IsKnownBanned(int64(i)) || !s.IsKnownBanned(int64(100+i)) {
			t.Fatalf("user %d missing after concurrent merge", i)
		}
	}
}

func TestBanServiceStartStopIdempotent(t *testing.T) {
	t.Parallel()

	s := NewBanService()
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
