package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Dacada/simple-monitor/internal/config"
	"github.com/Dacada/simple-monitor/internal/telemetry"
)

// packageQuery counts pending package updates for one package manager.
type packageQuery func(ctx context.Context) (int, error)

// packageSampler reports the number of pending package updates. Queries
// run on the probe pool; between completions the last count is reported,
// and a new query may only start once the configured delay has passed
// since the previous one finished. Package managers are slow and often
// hit the network, so a delay of an hour or more is typical.
type packageSampler struct {
	title string
	query packageQuery
	pool  submitter
	delay time.Duration
	now   func() time.Time

	mu          sync.Mutex
	inflight    bool
	nextAllowed time.Time
	last        int

	log *slog.Logger
}

func newPackageSampler(manager config.PackageManager, delay time.Duration, pool submitter, title string, logger *slog.Logger) *packageSampler {
	s := &packageSampler{
		title: title,
		pool:  pool,
		delay: delay,
		now:   time.Now,
		log:   logger.With("monitor", title),
	}
	switch manager {
	case config.PackageManagerPacman:
		s.query = pacmanUpdates
	default:
		s.query = aptUpdates
	}
	return s
}

// aptUpdates counts the upgradable lines of `apt list --upgradeable`.
func aptUpdates(ctx context.Context) (int, error) {
	out, err := exec.CommandContext(ctx, "apt", "list", "--upgradeable").Output()
	if err != nil {
		return 0, err
	}
	return countAptUpgradable(string(out)), nil
}

func countAptUpgradable(out string) int {
	count := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "upgradable") {
			count++
		}
	}
	return count
}

// pacmanUpdates counts the lines printed by checkupdates.
func pacmanUpdates(ctx context.Context) (int, error) {
	out, err := exec.CommandContext(ctx, "checkupdates").Output()
	if err != nil {
		// checkupdates exits with 2 when no updates are pending.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 2 {
			return 0, nil
		}
		return 0, err
	}
	return countPacmanUpdates(string(out)), nil
}

func countPacmanUpdates(out string) int {
	count := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

func (s *packageSampler) Produce(ctx context.Context) float64 {
	s.startQuery()
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.last)
}

// startQuery submits a package manager query unless one is in flight or
// the minimum delay since the last completion has not elapsed.
func (s *packageSampler) startQuery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight || s.now().Before(s.nextAllowed) {
		return
	}
	s.inflight = true
	ok := s.pool.Submit(func(ctx context.Context) {
		count, err := s.query(ctx)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			// Keep reporting the previous count until a query succeeds.
			s.log.Warn("package update query failed", "error", err)
			telemetry.IncSamplerError(s.title)
		} else {
			s.last = count
		}
		s.nextAllowed = s.now().Add(s.delay)
		s.inflight = false
	})
	if !ok {
		s.inflight = false
	}
}

func (s *packageSampler) Unit() string { return "packages" }
