package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/tenantbill/internal/config"
	"github.com/spf13/viper"
)

// Config holds observability settings. Environment variables override the
// app config; see LoadConfig for the keys.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel             string
	LogFormat            string
	SlowRequestThreshold time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("HTTP_SLOW_REQUEST_THRESHOLD", "2s")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "tenantbill"
	}

	protocol := lowerString(v, "OTEL_EXPORTER_OTLP_PROTOCOL")
	if traces := lowerString(v, "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"); traces != "" {
		protocol = traces
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             orDefault(lowerString(v, "LOG_LEVEL"), "info"),
		LogFormat:            orDefault(lowerString(v, "LOG_FORMAT"), "json"),
		SlowRequestThreshold: v.GetDuration("HTTP_SLOW_REQUEST_THRESHOLD"),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    min(max(v.GetFloat64("OTEL_SAMPLING_RATIO"), 0), 1),
	}
}

// Debug is on for debug logging and for dev/test deployments.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lowerString(v *viper.Viper, key string) string {
	return strings.ToLower(strings.TrimSpace(v.GetString(key)))
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
