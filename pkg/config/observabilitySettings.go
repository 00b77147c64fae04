package config

const DefaultServiceName = "go-messenger"

type Observability struct {
	ServiceName string `mapstructure:"service_name" validate:"required_with=TracingURL"`
	TracingURL  string `mapstructure:"tracing_url" validate:"omitempty,hostname_port"`
}

// TracingEnabled reports whether spans should be exported.
func (o Observability) TracingEnabled() bool {
	return o.TracingURL != ""
}
