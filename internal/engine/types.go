package engine

import (
	"context"
	"time"
)

// Clock abstracts wall time so age, day, and quiet-window decisions are
// testable without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ActivityEvent is a push notification delivered by the webhook.
type ActivityEvent struct {
	ObjectType string `json:"object_type"`
	AspectType string `json:"aspect_type"`
	ObjectID   int64  `json:"object_id"`
	OwnerID    int64  `json:"owner_id"`
}

// FeedEntry is one activity from the followed-athletes feed.
type FeedEntry struct {
	ActivityID int64
	AthleteID  int64
}

// API is the outbound surface the engine needs from the social-fitness
// service. Implementations live outside the engine (internal/strava).
type API interface {
	// EnsureAuth verifies a usable credential can be obtained. A failure
	// aborts the current poll or flush before any send is attempted.
	EnsureAuth(ctx context.Context) error

	// RelatedActivities returns the ids of other athletes' copies of the
	// same logged activity.
	RelatedActivities(ctx context.Context, activityID int64) ([]int64, error)

	FollowingFeed(ctx context.Context) ([]FeedEntry, error)

	GiveKudos(ctx context.Context, activityID int64) error
}

// Config is the resolved engine configuration. All fields are explicit;
// the engine never reads ambient environment state.
type Config struct {
	SelfAthleteID int64
	Location      *time.Location

	SizeThreshold int
	AgeThreshold  time.Duration
	MaxDrain      int
	SendDelay     time.Duration
	PollInterval  time.Duration

	// Quiet window: poll ticks whose reference-TZ hour falls in
	// [QuietStartHour, QuietEndHour) — wrapping midnight when start >
	// end — are no-ops. Equal hours disable the window.
	QuietStartHour int
	QuietEndHour   int

	// ResetOpenOnPartialDrain re-stamps the batch open timestamp when a
	// flush leaves ids behind. The default (false) preserves it, so the
	// age trigger bounds total time-to-flush from first insertion.
	ResetOpenOnPartialDrain bool
}

const (
	DefaultSizeThreshold  = 25
	DefaultAgeThreshold   = time.Hour
	DefaultMaxDrain       = 100
	DefaultSendDelay      = 1500 * time.Millisecond
	DefaultPollInterval   = 15 * time.Minute
	DefaultQuietStartHour = 23
	DefaultQuietEndHour   = 6
)

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.SizeThreshold <= 0 {
		c.SizeThreshold = DefaultSizeThreshold
	}
	if c.AgeThreshold <= 0 {
		c.AgeThreshold = DefaultAgeThreshold
	}
	if c.MaxDrain <= 0 {
		c.MaxDrain = DefaultMaxDrain
	}
	if c.SendDelay < 0 {
		c.SendDelay = DefaultSendDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// FlushResult reports what one flush did.
type FlushResult struct {
	Drained   int           `json:"drained"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Remaining int           `json:"remaining"`
	Took      time.Duration `json:"took"`
}

// Status is the read-only derived view for the status surface.
type Status struct {
	TotalSent     int64     `json:"total_sent"`
	ActiveDays    int64     `json:"active_days"`
	AvgPerDay     float64   `json:"avg_per_day"`
	QueueSize     int       `json:"queue_size"`
	BatchOpenedAt time.Time `json:"batch_opened_at,omitzero"`
	LastFlushAt   time.Time `json:"last_flush_at,omitzero"`
	LastPollAt    time.Time `json:"last_poll_at,omitzero"`
	NextPollAt    time.Time `json:"next_poll_at,omitzero"`
}
