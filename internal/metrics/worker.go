package metrics

import "time"

// Outcomes recorded on mantlz_jobs_total.
const (
	JobOutcomeCompleted = "completed"
	JobOutcomeRetried   = "retried"
	JobOutcomeFailed    = "failed"
)

// TrackJob counts a job as in flight and returns the function that records
// how it ended. The returned function must be called exactly once.
func TrackJob(jobType string) func(outcome string) {
	JobsInFlight.Inc()
	start := time.Now()
	return func(outcome string) {
		JobsInFlight.Dec()
		JobsTotal.WithLabelValues(jobType, outcome).Inc()
		switch outcome {
		case JobOutcomeCompleted:
			JobDuration.WithLabelValues(jobType).Observe(time.Since(start).Seconds())
		case JobOutcomeRetried:
			JobRetriesTotal.WithLabelValues(jobType).Inc()
		}
	}
}
