package kafka_client

import "os"

const DEFAULT_SCORES_TOPIC = "ariss.scores"

type KafkaConfig struct {
	Broker string
	Topic  string
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// WithDefaults fills empty fields from KAFKA_BROKER / KAFKA_SCORES_TOPIC and
// finally the local development defaults.
func (c KafkaConfig) WithDefaults() KafkaConfig {
	if c.Broker == "" {
		c.Broker = getEnv("KAFKA_BROKER", "localhost:29092")
	}
	if c.Topic == "" {
		c.Topic = getEnv("KAFKA_SCORES_TOPIC", DEFAULT_SCORES_TOPIC)
	}
	return c
}
