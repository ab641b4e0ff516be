package config

import "time"

// PollInterval returns the queue poll interval as a duration.
func (w Workflow) PollInterval() time.Duration {
	return time.Duration(w.QueuePollInterval) * time.Second
}

// RetryInterval returns the error backoff interval as a duration.
func (w Workflow) RetryInterval() time.Duration {
	return time.Duration(w.ErrorRetryInterval) * time.Second
}

// ExtractTimeoutDuration returns the audio extraction stage timeout.
func (w Workflow) ExtractTimeoutDuration() time.Duration {
	return time.Duration(w.ExtractTimeout) * time.Second
}

// TranscribeTimeoutDuration returns the speech recognition stage timeout.
func (w Workflow) TranscribeTimeoutDuration() time.Duration {
	return time.Duration(w.TranscribeTimeout) * time.Second
}

// PruneCutoff returns the retention window for terminal tasks.
func (w Workflow) PruneCutoff() time.Duration {
	return time.Duration(w.PruneAfterHours) * time.Hour
}

// Timeout returns the translation request timeout as a duration.
func (t Translator) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}
