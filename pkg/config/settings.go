package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// DefaultPath is where the settings file is looked up when no path is given.
const DefaultPath = "./config.toml"

// envPrefix namespaces environment overrides, e.g. MESSENGER_QUEUE_NAME.
const envPrefix = "MESSENGER"

// ErrConfig is returned when the settings file cannot be read, parsed or validated.
var ErrConfig = errors.New("failed to load settings")

// Settings is the configuration of a single messenger run.
type Settings struct {
	AMQPAddress   string         `mapstructure:"amqp_address" validate:"required"`
	QueueName     string         `mapstructure:"queue_name" validate:"required"`
	Broker        BrokerSettings `mapstructure:"broker"`
	Observability Observability  `mapstructure:"observability"`
}

func (c *Settings) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// WithQueueOverride returns a copy of the settings using queue instead of the
// configured queue name. An empty queue is kept as given: RabbitMQ then names
// the queue itself.
func (c Settings) WithQueueOverride(queue string) Settings {
	c.QueueName = queue
	return c
}

// LoadFromFile reads the TOML settings file at filePath, applies environment
// overrides and validates the result.
func LoadFromFile(filePath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("toml")

	v.SetDefault("broker.type", BrokerRabbitMQ)
	v.SetDefault("broker.publisher_confirms", false)
	v.SetDefault("observability.service_name", DefaultServiceName)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	bindEnv(v)

	cfg := &Settings{}
	// Reject values of the wrong type instead of coercing them. Environment
	// values are always strings, so "true"/"false" may still fill a bool.
	strict := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = false
		dc.DecodeHook = mapstructure.StringToBoolHookFunc()
	})
	if err := v.Unmarshal(cfg, strict); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // env vars like MESSENGER_BROKER_TYPE

	v.BindEnv("amqp_address")
	v.BindEnv("queue_name")
	v.BindEnv("broker.type")
	v.BindEnv("broker.project_id")
	v.BindEnv("broker.publisher_confirms")
	v.BindEnv("observability.service_name")
	v.BindEnv("observability.tracing_url")
}
