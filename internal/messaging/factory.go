package messaging

import "fmt"

// Kind тип потокового транспорта
type Kind string

const (
	KindInMemory Kind = "inmemory"
	KindNATS     Kind = "nats"
	KindKafka    Kind = "kafka"
)

// Config объединенная конфигурация транспорта
type Config struct {
	Kind  Kind
	NATS  NATSConfig
	Kafka KafkaConfig
}

// DefaultConfig возвращает конфигурацию транспорта по умолчанию
func DefaultConfig() Config {
	return Config{
		Kind:  KindInMemory,
		NATS:  DefaultNATSConfig(),
		Kafka: DefaultKafkaConfig(),
	}
}

// NewBus создает транспорт по конфигурации
func NewBus(config Config) (MessageBus, error) {
	switch config.Kind {
	case KindInMemory, "":
		return NewInMemoryBus(), nil
	case KindNATS:
		return NewNATSBus(config.NATS)
	case KindKafka:
		return NewKafkaBus(config.Kafka)
	default:
		return nil, fmt.Errorf("unknown message bus kind: %s", config.Kind)
	}
}
