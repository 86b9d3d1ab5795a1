package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// SpamVerdict is the outcome of a content check.
type SpamVerdict struct {
	Valid  bool
	Reason string
}

// SpamFilter is a local, synchronous content classifier. It is always
// evaluated before the rate limiter so invalid content never burns
// rate-limit budget, and it never touches the network.
type SpamFilter interface {
	CheckMessage(userID, text string) SpamVerdict
}

type spamFilter struct {
	mu       sync.Mutex
	clock    clock.Clock
	maxLen   int
	horizon  time.Duration
	depth    int
	maxRun   int
	denylist []*regexp.Regexp
	history  map[string][]historyEntry
}

type historyEntry struct {
	body string
	at   time.Time
}

func NewSpamFilter(conf *config.Config, clk clock.Clock) (SpamFilter, error) {
	spam := conf.Spam
	denylist := make([]*regexp.Regexp, 0, len(spam.DenyPatterns))
	for _, p := range spam.DenyPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile deny pattern %q: %w", p, err)
		}
		denylist = append(denylist, re)
	}
	return &spamFilter{
		clock:    clk,
		maxLen:   spam.MaxMessageLength,
		horizon:  spam.RepetitionHorizon,
		depth:    spam.RepetitionDepth,
		maxRun:   spam.MaxCharRun,
		denylist: denylist,
		history:  make(map[string][]historyEntry),
	}, nil
}

func (f *spamFilter) CheckMessage(userID, text string) SpamVerdict {
	body := strings.TrimSpace(text)
	if body == "" {
		return SpamVerdict{Reason: "message is empty"}
	}
	if len(body) > f.maxLen {
		return SpamVerdict{Reason: fmt.Sprintf("message exceeds %d characters", f.maxLen)}
	}
	if run := longestRun(body); run > f.maxRun {
		return SpamVerdict{Reason: "excessive repeated characters"}
	}
	for _, re := range f.denylist {
		if re.MatchString(body) {
			return SpamVerdict{Reason: "message matches a disallowed pattern"}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	recent := f.pruneHistory(userID, now)
	normalized := strings.ToLower(body)
	for _, e := range recent {
		if e.body == normalized {
			return SpamVerdict{Reason: "message repeats a recent message"}
		}
	}

	recent = append(recent, historyEntry{body: normalized, at: now})
	if len(recent) > f.depth {
		recent = recent[len(recent)-f.depth:]
	}
	f.history[userID] = recent

	return SpamVerdict{Valid: true}
}

func (f *spamFilter) pruneHistory(userID string, now time.Time) []historyEntry {
	kept := f.history[userID][:0]
	for _, e := range f.history[userID] {
		if now.Sub(e.at) <= f.horizon {
			kept = append(kept, e)
		}
	}
	return kept
}

func longestRun(s string) int {
	longest, run := 0, 0
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = r
	}
	return longest
}
