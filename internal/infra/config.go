package infra

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GHOSTZMQ_REDIS_HOST.
const EnvPrefix = "GHOSTZMQ"

// LoadConfig reads configs/config.yml (or the file at path when given) into
// the global viper instance. A missing default file is not an error; defaults
// and environment overrides still apply.
func LoadConfig(path string) error {
	setDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("infra: failed to read config file %s: %w", path, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("infra: failed to read config file: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("service.name", "ghostcore-zmq")
	viper.SetDefault("service.instance", "local")
	viper.SetDefault("log.level", "info")

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("pprof.enabled", false)
	viper.SetDefault("pprof.addr", "127.0.0.1:6060")

	viper.SetDefault("zmq.endpoints", []string{"tcp://127.0.0.1:28332"})
	viper.SetDefault("zmq.topics", []string{})
	viper.SetDefault("zmq.dial_max_retry_attempts", 5)
	viper.SetDefault("zmq.dial_retry_initial_backoff_ms", 500)
	viper.SetDefault("zmq.dial_retry_max_backoff_ms", 5000)
	viper.SetDefault("zmq.dial_retry_jitter", 0.2)
	viper.SetDefault("zmq.delivery_buffer", 256)

	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.dial_timeout_seconds", 5)
	viper.SetDefault("redis.streams.key", "{notifications}:stream")
	viper.SetDefault("redis.streams.consumer_group", "relay")
	viper.SetDefault("redis.streams.consumer_name", "relay-1")
	viper.SetDefault("redis.streams.read_count", 50)
	viper.SetDefault("redis.streams.read_block_timeout_seconds", 5)
	viper.SetDefault("redis.streams.claim_idle_seconds", 60)
	viper.SetDefault("redis.streams.max_len", 100000)
	viper.SetDefault("redis.lock.dedup_prefix", "notif")
	viper.SetDefault("redis.lock.ttl_seconds", 86400)
	viper.SetDefault("redis.lock.published_prefix", "published")
	viper.SetDefault("redis.lock.published_ttl_seconds", 86400)

	viper.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	viper.SetDefault("kafka.topic", "ghost.notifications")
	viper.SetDefault("kafka.client_id", "ghostcore-zmq")
	viper.SetDefault("kafka.topic_per_notification", false)
	viper.SetDefault("kafka.max_message_bytes", 1048588)
}
