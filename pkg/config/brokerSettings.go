package config

const (
	BrokerRabbitMQ = "rabbitmq"
	BrokerPubSub   = "gcp-pubsub"
)

// BrokerSettings selects and tunes the message broker backend.
type BrokerSettings struct {
	Type              string `mapstructure:"type" validate:"oneof=rabbitmq gcp-pubsub"`
	ProjectID         string `mapstructure:"project_id" validate:"required_if=Type gcp-pubsub"` // Only for GCP Pub/Sub
	PublisherConfirms bool   `mapstructure:"publisher_confirms"`
}
