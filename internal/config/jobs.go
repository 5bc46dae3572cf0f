package config

import (
	"time"

	"github.com/spf13/viper"
)

// Jobs holds the scheduling policy knobs: per-role concurrency quotas,
// priority defaults and bounds, the retry budget, retention and sweep
// intervals. None of these are hardcoded in the runtime.
type Jobs struct {
	QueueName string

	// Quotas maps role to the maximum number of concurrent
	// (pending+processing) jobs; 0 means unlimited.
	Quotas map[string]int

	// DefaultPriorities maps role to the priority assigned when the caller
	// does not supply one.
	DefaultPriorities map[string]int

	// MinPriority/MaxPriority bound caller-supplied priority overrides.
	MinPriority int
	MaxPriority int

	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	ErrorLimit int

	Workers int

	CacheTTL time.Duration
	Channel  string

	RetentionDays     int
	ArchiveInterval   time.Duration
	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
}

func getJobsConfig(v *viper.Viper) *Jobs {
	quotas := map[string]int{"USER": 3, "ADMIN": 0}
	for role, limit := range v.GetStringMap("jobs.quotas") {
		quotas[normalizeRole(role)] = toInt(limit)
	}

	defaults := map[string]int{"USER": 0, "ADMIN": 10}
	for role, prio := range v.GetStringMap("jobs.default_priorities") {
		defaults[normalizeRole(role)] = toInt(prio)
	}

	return &Jobs{
		QueueName:         getStringOrDefault(v, "jobs.queue", "jobstream.jobs"),
		Quotas:            quotas,
		DefaultPriorities: defaults,
		MinPriority:       getIntOrDefault(v, "jobs.min_priority", 0),
		MaxPriority:       getIntOrDefault(v, "jobs.max_priority", 10),
		MaxAttempts:       getIntOrDefault(v, "jobs.max_attempts", 3),
		BackoffInitial:    getDurationOrDefault(v, "jobs.backoff_initial", time.Second),
		BackoffMax:        getDurationOrDefault(v, "jobs.backoff_max", time.Minute),
		ErrorLimit:        getIntOrDefault(v, "jobs.error_limit", 2000),
		Workers:           getIntOrDefault(v, "jobs.workers", 4),
		CacheTTL:          getDurationOrDefault(v, "jobs.cache_ttl", time.Hour),
		Channel:           getStringOrDefault(v, "jobs.channel", "jobs:updates"),
		RetentionDays:     getIntOrDefault(v, "jobs.retention_days", 90),
		ArchiveInterval:   getDurationOrDefault(v, "jobs.archive_interval", 24*time.Hour),
		ReconcileInterval: getDurationOrDefault(v, "jobs.reconcile_interval", 10*time.Minute),
		ReconcileGrace:    getDurationOrDefault(v, "jobs.reconcile_grace", 15*time.Minute),
	}
}

// Quota returns the concurrency limit for a role; 0 means unlimited.
func (j *Jobs) Quota(role string) int {
	return j.Quotas[normalizeRole(role)]
}

// DefaultPriority returns the priority assigned to a role when the caller
// does not supply one.
func (j *Jobs) DefaultPriority(role string) int {
	return j.DefaultPriorities[normalizeRole(role)]
}

// ClampPriority bounds a caller-supplied priority override into policy range.
func (j *Jobs) ClampPriority(priority int) int {
	if priority < j.MinPriority {
		return j.MinPriority
	}
	if priority > j.MaxPriority {
		return j.MaxPriority
	}
	return priority
}

// Retention returns the archival threshold as a duration.
func (j *Jobs) Retention() time.Duration {
	return time.Duration(j.RetentionDays) * 24 * time.Hour
}
