package metrics

// Component label values used by app-level metrics.
const (
	ComponentKafka      = "kafka"
	ComponentRedis      = "redis"
	ComponentSubscriber = "subscriber"
	ComponentWatcher    = "watcher"
	ComponentProcessor  = "processor"
)

// Verdict label values used by sequence metrics.
const (
	VerdictFirstSeen = "first_seen"
	VerdictInOrder   = "in_order"
	VerdictGap       = "gap"
	VerdictRewind    = "rewind"
)
