// Package scheduler runs the bot's recurring jobs: the feed poll tick
// and the keep-alive self-ping. Specs are cron expressions or "@every"
// intervals, evaluated in the configured reference time zone so the
// quiet window and day-boundary behavior line up with the engine.
package scheduler
