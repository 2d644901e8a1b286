package config

type Telemetry struct {
	otelEndpoint string
}

var _ TelemetryConfig = Telemetry{}

// GetOTelEndpoint is the OTLP/HTTP collector URL. Empty disables export.
func (t Telemetry) GetOTelEndpoint() string {
	return t.otelEndpoint
}
