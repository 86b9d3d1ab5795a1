package usecase

import (
	"context"
	"fmt"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/internal/repo/mongodb"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// AbusePolicy is the layered comment limiter. Three escalating levels:
// a per-target cooldown, a per-target restriction once a burst limit is
// hit inside the rolling window, and a global restriction once enough
// targets are simultaneously restricted. State is durable per user so
// penalties survive client restarts and device switches.
type AbusePolicy interface {
	// CheckComment returns nil when the action may proceed, otherwise a
	// *models.RateLimitError carrying the layer and remaining wait.
	CheckComment(ctx context.Context, userID, targetID string) error
	// RecordComment appends a committed action and applies any newly
	// earned restrictions. Callers check first, then record.
	RecordComment(ctx context.Context, userID, targetID string) error
}

type abusePolicy struct {
	states mongodb.AbuseStateRepository
	clock  clock.Clock
	limits config.LimitsConfig
}

func NewAbusePolicy(conf *config.Config, states mongodb.AbuseStateRepository, clk clock.Clock) AbusePolicy {
	return &abusePolicy{
		states: states,
		clock:  clk,
		limits: conf.Limits,
	}
}

func (p *abusePolicy) CheckComment(ctx context.Context, userID, targetID string) error {
	if targetID == "" {
		return &models.ValidationError{Field: "target", Reason: "must not be empty"}
	}

	state, err := p.states.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load abuse state: %w", err)
	}

	now := p.clock.Now()
	state.Prune(now, p.limits.CommentBurstWindow)

	if state.GlobalUntil != nil {
		return &models.RateLimitError{
			Level:      models.LevelGlobalRestricted,
			RetryAfter: state.GlobalUntil.Sub(now),
		}
	}
	if until, ok := state.TargetRestrictions[targetID]; ok {
		return &models.RateLimitError{
			Level:      models.LevelTargetRestricted,
			RetryAfter: until.Sub(now),
		}
	}
	if last, ok := state.LastActionOn(targetID); ok {
		if elapsed := now.Sub(last); elapsed < p.limits.CommentCooldown {
			return &models.RateLimitError{
				Level:      models.LevelNormal,
				RetryAfter: p.limits.CommentCooldown - elapsed,
			}
		}
	}
	return nil
}

func (p *abusePolicy) RecordComment(ctx context.Context, userID, targetID string) error {
	state, err := p.states.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load abuse state: %w", err)
	}

	now := p.clock.Now()
	state.Prune(now, p.limits.CommentBurstWindow)
	state.RecentActions = append(state.RecentActions, models.AbuseAction{TargetID: targetID, At: now})

	if state.CountActionsOn(targetID) >= p.limits.CommentBurstMax {
		if state.TargetRestrictions == nil {
			state.TargetRestrictions = make(map[string]time.Time)
		}
		state.TargetRestrictions[targetID] = now.Add(p.limits.TargetRestriction)
		log.Warnw(ctx, "target restriction applied",
			"user_id", userID,
			"target_id", targetID,
			"active_restrictions", len(state.TargetRestrictions))

		if len(state.TargetRestrictions) >= p.limits.SpamTargetCount {
			until := now.Add(p.limits.GlobalRestriction)
			state.GlobalUntil = &until
			log.Warnw(ctx, "global restriction applied",
				"user_id", userID,
				"until", until)
		}
	}

	state.UpdatedAt = now
	if err := p.states.Save(ctx, state); err != nil {
		return fmt.Errorf("save abuse state: %w", err)
	}
	return nil
}
