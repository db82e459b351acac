package metrics

import "time"

// CronSkipped records a run that did nothing because of its date guard.
func CronSkipped(job string) {
	CronRunsTotal.WithLabelValues(job, "skipped").Inc()
}

// CronCompleted records a run that reached the end of its loop.
func CronCompleted(job string, duration time.Duration) {
	CronRunsTotal.WithLabelValues(job, "ok").Inc()
	CronDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// CronFailed records a run aborted by an error at the job boundary.
func CronFailed(job string) {
	CronRunsTotal.WithLabelValues(job, "error").Inc()
}

// CronItems adds n items with the given outcome ("reset", "email_failed", ...).
func CronItems(job, outcome string, n int) {
	if n > 0 {
		CronItemsTotal.WithLabelValues(job, outcome).Add(float64(n))
	}
}
