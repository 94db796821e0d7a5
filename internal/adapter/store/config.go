package store

// Config contains connection and behavior options for the Redis-backed
// notification outbox. The struct is validated via go-playground/validator tags.
type Config struct {
	Host               string `validate:"required,hostname|ip"`
	Port               string `validate:"required,numeric"`
	Password           string
	DB                 int `validate:"gte=0"`
	UseTLS             bool
	PoolSize           int `validate:"gte=0"`
	MaxRetries         int `validate:"gte=0"`
	DialTimeoutSeconds int `validate:"gte=0"`
	Streams            StreamConfig
	Lock               LockConfig
}

// StreamConfig describes the outbox stream and its consumer group.
type StreamConfig struct {
	Key                     string `validate:"required"`
	ConsumerGroup           string `validate:"required"`
	ConsumerName            string `validate:"required"`
	ReadCount               int    `validate:"gte=1"`
	ReadBlockTimeoutSeconds int    `validate:"gte=0"`
	ClaimIdleSeconds        int    `validate:"gte=0"`
	// MaxLen caps the stream approximately; 0 leaves it unbounded.
	MaxLen int64 `validate:"gte=0"`
	// DeadLetterKey receives entries that cannot be published. Empty means
	// "{<tag>}:deadletter".
	DeadLetterKey string
}

// LockConfig holds the dedup and published marker keys.
type LockConfig struct {
	// DedupPrefix prefixes the idempotency SET key (e.g., "notif").
	DedupPrefix string `validate:"required"`
	TTLSeconds  int    `validate:"required,gte=1"`
	// PublishedPrefix prefixes the marker written after a Kafka publish.
	PublishedPrefix     string `validate:"required"`
	PublishedTTLSeconds int    `validate:"gte=0"`
}
