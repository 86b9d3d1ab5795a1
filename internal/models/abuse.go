package models

import "time"

// AbuseAction is one recorded comment action inside the rolling window.
type AbuseAction struct {
	TargetID string    `bson:"target_id" json:"target_id"`
	At       time.Time `bson:"at" json:"at"`
}

// AbuseState is the durable escalation state for one user. All three
// pieces are persisted together so a client restart or device switch
// does not reset penalties.
type AbuseState struct {
	UserID             string               `bson:"_id" json:"user_id"`
	RecentActions      []AbuseAction        `bson:"recent_actions" json:"recent_actions"`
	TargetRestrictions map[string]time.Time `bson:"target_restrictions" json:"target_restrictions"`
	GlobalUntil        *time.Time           `bson:"global_until,omitempty" json:"global_until,omitempty"`
	UpdatedAt          time.Time            `bson:"updated_at" json:"updated_at"`
}

func (AbuseState) CollectionName() string {
	return "abuse_states"
}

// Prune drops actions that fell out of the rolling window and
// restrictions that have expired.
func (s *AbuseState) Prune(now time.Time, window time.Duration) {
	kept := s.RecentActions[:0]
	for _, a := range s.RecentActions {
		if now.Sub(a.At) <= window {
			kept = append(kept, a)
		}
	}
	s.RecentActions = kept

	for target, until := range s.TargetRestrictions {
		if !now.Before(until) {
			delete(s.TargetRestrictions, target)
		}
	}
	if s.GlobalUntil != nil && !now.Before(*s.GlobalUntil) {
		s.GlobalUntil = nil
	}
}

// LastActionOn returns the most recent recorded action against target.
func (s *AbuseState) LastActionOn(target string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, a := range s.RecentActions {
		if a.TargetID == target && a.At.After(last) {
			last = a.At
			found = true
		}
	}
	return last, found
}

// CountActionsOn counts recorded actions against target still inside
// the window (callers prune first).
func (s *AbuseState) CountActionsOn(target string) int {
	n := 0
	for _, a := range s.RecentActions {
		if a.TargetID == target {
			n++
		}
	}
	return n
}
