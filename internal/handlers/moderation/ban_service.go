package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	banlistURLHourly      = "https://lols.bot/spam/banlist-1h.txt"
	accountsAPIURLTemplate = "https://api.lols.bot/account?id=%v"

	// The per-join lookup must never stall admission; slow answers count as
	// clean (fail-open, handled by the caller).
	reputationTimeout = 3 * time.Second

	banlistRefreshInterval = time.Hour
	banlistHTTPTimeout     = 10 * time.Second
)

type BanService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	CheckBan(ctx context.Context, userID int64) (bool, error)
	IsKnownBanned(userID int64) bool
}

type defaultBanService struct {
	httpClient *http.Client

	knownBanned map[int64]struct{}
	mapMutex    sync.RWMutex

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func NewBanService() BanService {
	return &defaultBanService{
		httpClient:  &http.Client{Timeout: banlistHTTPTimeout},
		knownBanned: map[int64]struct{}{},
	}
}

func (s *defaultBanService) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	s.workersWg.Add(1)
	go func() {
		defer s.workersWg.Done()
		if err := s.refreshBanlist(runCtx); err != nil && !errorsIsCanceled(err) {
			log.WithError(err).Error("failed to bootstrap known banned users")
		}

		ticker := time.NewTicker(banlistRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := s.refreshBanlist(runCtx); err != nil && !errorsIsCanceled(err) {
					log.WithError(err).Error("failed to refresh known banned users")
				}
			}
		}
	}()

	s.started = true
	return nil
}

func (s *defaultBanService) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	if !s.started {
		s.runMutex.Unlock()
		return nil
	}
	s.started = false
	cancel := s.runCancel
	s.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *defaultBanService) IsKnownBanned(userID int64) bool {
	s.mapMutex.RLock()
	defer s.mapMutex.RUnlock()
	_, banned := s.knownBanned[userID]
	return banned
}

func (s *defaultBanService) CheckBan(ctx context.Context, userID int64) (bool, error) {
	if s.IsKnownBanned(userID) {
		return true, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, reputationTimeout)
	defer cancel()

	url := fmt.Sprintf(accountsAPIURLTemplate, userID)
	req, err := http.NewRequestWithContext(lookupCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "text/plain")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var banInfo struct {
		OK         bool    `json:"ok"`
		UserID     int64   `json:"user_id"`
		Banned     bool    `json:"banned"`
		When       string  `json:"when"`
		Offenses   int     `json:"offenses"`
		SpamFactor float64 `json:"spam_factor"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&banInfo); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	if banInfo.Banned {
		s.markKnownBanned(userID)
	}
	return banInfo.Banned, nil
}

func (s *defaultBanService) refreshBanlist(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, banlistURLHourly, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch banlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	ids, err := parseBanlist(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse banlist: %w", err)
	}
	s.mergeKnownBanned(ids)
	log.WithField("count", len(ids)).Debug("refreshed known banned users")
	return nil
}

func parseBanlist(r io.Reader) ([]int64, error) {
	var ids []int64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, scanner.Err()
}

func (s *defaultBanService) mergeKnownBanned(ids []int64) {
	s.mapMutex.Lock()
	defer s.mapMutex.Unlock()
	for _, id := range ids {
		s.knownBanned[id] = struct{}{}
	}
}

func (s *defaultBanService) markKnownBanned(userID int64) {
	s.mapMutex.Lock()
	s.knownBanned[userID] = struct{}{}
	s.mapMutex.Unlock()
}

func errorsIsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
