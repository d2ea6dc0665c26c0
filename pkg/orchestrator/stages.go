package orchestrator

import (
	"context"
	"time"
)

// Stage is one cosmetic progress message shown while a capture runs. The
// stages are paced on their own and say nothing about actual progress.
type Stage struct {
	Title    string
	Detail   string
	Duration time.Duration
}

// LoadingStages are shown in order during classification
var LoadingStages = []Stage{
	{Title: "🔍 Analyzing image...", Detail: "Preprocessing image data...", Duration: 800 * time.Millisecond},
	{Title: "🤖 Running AI model...", Detail: "Neural network processing...", Duration: 800 * time.Millisecond},
	{Title: "🧠 Detecting patterns...", Detail: "Identifying leaf features...", Duration: 800 * time.Millisecond},
	{Title: "📊 Calculating confidence...", Detail: "Analyzing disease markers...", Duration: 800 * time.Millisecond},
	{Title: "✨ Finalizing results...", Detail: "Generating recommendations...", Duration: 800 * time.Millisecond},
	{Title: "🎯 Processing complete!", Detail: "Preparing results...", Duration: 500 * time.Millisecond},
}

// PlayStages calls show for each stage and waits its duration. It stops
// early when ctx is done and returns ctx.Err().
func PlayStages(ctx context.Context, stages []Stage, show func(i int, s Stage)) error {
	for i, s := range stages {
		show(i, s)

		timer := time.NewTimer(s.Duration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
