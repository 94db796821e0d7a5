package infra

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/bleach86/ghostcore-zmq/internal/adapter/store"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
)

// InitStoreLogger creates the Redis outbox writer from the "redis" block.
func InitStoreLogger(log applog.AppLogger, wg *sync.WaitGroup, v *validator.Validate) (*store.NotificationLogger, error) {
	cfg := loadStoreConfig()
	storeLogger, err := store.NewNotificationLogger(log, wg, v, &cfg)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init store logger: %w", err)
	}
	return storeLogger, nil
}

// InitNotificationStreamReader prepares the outbox reader from the same
// configuration block as the logger.
func InitNotificationStreamReader(log applog.AppLogger, wg *sync.WaitGroup, v *validator.Validate) (*store.NotificationStream, error) {
	cfg := loadStoreConfig()
	stream, err := store.NewNotificationStream(log, wg, v, &cfg)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init notification stream: %w", err)
	}
	return stream, nil
}

func loadStoreConfig() store.Config {
	return store.Config{
		Host:               viper.GetString("redis.host"),
		Port:               viper.GetString("redis.port"),
		Password:           viper.GetString("redis.password"),
		DB:                 viper.GetInt("redis.db"),
		UseTLS:             viper.GetBool("redis.use_tls"),
		PoolSize:           viper.GetInt("redis.pool_size"),
		MaxRetries:         viper.GetInt("redis.max_retries"),
		DialTimeoutSeconds: viper.GetInt("redis.dial_timeout_seconds"),
		Streams: store.StreamConfig{
			Key:                     viper.GetString("redis.streams.key"),
			ConsumerGroup:           viper.GetString("redis.streams.consumer_group"),
			ConsumerName:            viper.GetString("redis.streams.consumer_name"),
			ReadCount:               viper.GetInt("redis.streams.read_count"),
			ReadBlockTimeoutSeconds: viper.GetInt("redis.streams.read_block_timeout_seconds"),
			ClaimIdleSeconds:        viper.GetInt("redis.streams.claim_idle_seconds"),
			MaxLen:                  viper.GetInt64("redis.streams.max_len"),
			DeadLetterKey:           viper.GetString("redis.streams.dead_letter_key"),
		},
		Lock: store.LockConfig{
			DedupPrefix:         viper.GetString("redis.lock.dedup_prefix"),
			TTLSeconds:          viper.GetInt("redis.lock.ttl_seconds"),
			PublishedPrefix:     viper.GetString("redis.lock.published_prefix"),
			PublishedTTLSeconds: viper.GetInt("redis.lock.published_ttl_seconds"),
		},
	}
}
