package abuse

import (
	"strings"
	"time"
)

// Penalty is the graduated response to a spam score.
type Penalty int

const (
	PenaltyNone Penalty = iota
	PenaltyWarn
	PenaltyKick
	PenaltyTempBan
	PenaltyPermaBan
)

// Score thresholds for each penalty level.
const (
	WarnScore     = 5
	KickScore     = 10
	TempBanScore  = 20
	PermaBanScore = 35

	// TempBanDuration is how long a spam temp ban lasts.
	TempBanDuration = 10 * time.Minute

	burstCount  = 3
	burstWindow = 2 * time.Second
	mentionMin  = 3
	recentKeep  = 5
)

func (p Penalty) String() string {
	switch p {
	case PenaltyWarn:
		return "warn"
	case PenaltyKick:
		return "spam_kick"
	case PenaltyTempBan:
		return "spam_ban"
	case PenaltyPermaBan:
		return "spam_perma"
	default:
		return "none"
	}
}

// Counters is the per-session spam state. The zero value is ready to use.
type Counters struct {
	Score    int
	LastText string
	Recent   []time.Time
	// Applied is the highest penalty already enforced; a plateau never fires twice.
	Applied Penalty
}

// Observe scores one message and returns the updated total. The score never decreases.
func (c *Counters) Observe(text string, now time.Time) int {
	if text == c.LastText {
		c.Score++
	}

	c.Recent = append(c.Recent, now)
	if len(c.Recent) > recentKeep {
		c.Recent = c.Recent[len(c.Recent)-recentKeep:]
	}
	if n := len(c.Recent); n >= burstCount && c.Recent[n-1].Sub(c.Recent[n-burstCount]) < burstWindow {
		c.Score++
	}

	if strings.Count(text, "@") >= mentionMin {
		c.Score += 2
	}

	c.LastText = text
	return c.Score
}

// Assess maps a score to its penalty level.
func Assess(score int) Penalty {
	switch {
	case score >= PermaBanScore:
		return PenaltyPermaBan
	case score >= TempBanScore:
		return PenaltyTempBan
	case score >= KickScore:
		return PenaltyKick
	case score >= WarnScore:
		return PenaltyWarn
	default:
		return PenaltyNone
	}
}

// Escalate returns the penalty to enforce now, or PenaltyNone when the current
// level was already applied.
func (c *Counters) Escalate() Penalty {
	p := Assess(c.Score)
	if p <= c.Applied {
		return PenaltyNone
	}
	c.Applied = p
	return p
}
