package publish

// Config captures the Kafka connectivity and retry behavior for the publisher.
type Config struct {
	Brokers               []string `validate:"required,min=1,dive,required"`
	Topic                 string   `validate:"required"`
	ClientID              string   `validate:"required"`
	TransactionalID       string   `validate:"omitempty"`
	MaxRetryAttempts      int      `validate:"omitempty,gte=1"`
	RetryInitialBackoffMS int      `validate:"omitempty,gte=0"`
	RetryMaxBackoffMS     int      `validate:"omitempty,gte=0"`
	RetryJitter           float64  `validate:"omitempty,gte=0,lte=1"`
	WriteTimeoutSeconds   int      `validate:"omitempty,gte=1"`
	// MaxMessageBytes bounds a single record and the producer batch. It must
	// not exceed the broker's max.message.bytes.
	MaxMessageBytes int `validate:"omitempty,gte=1024,lte=1073741824"`
	// TopicPerNotification appends ".<zmq topic>" to Topic, e.g. "ghost.rawtx".
	TopicPerNotification bool
}
