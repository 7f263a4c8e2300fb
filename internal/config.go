package internal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	GatewayModeHTTP = "http"
	GatewayModeHost = "host"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080" validate:"min=1,max=65535"`
	GRPCPort int    `env:"GRPC_PORT,default=9090" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`

	JWTSecret      string        `env:"JWT_SECRET,required=true" validate:"min=32"`
	JWTIssuer      string        `env:"JWT_ISSUER,required=true" validate:"required"`
	JWTAudience    string        `env:"JWT_AUDIENCE,required=true" validate:"required"`
	JWTClockSkew   time.Duration `env:"JWT_CLOCK_SKEW,default=5m" validate:"min=0"`
	AllowAnonymous bool          `env:"ALLOW_ANONYMOUS,default=false"`

	BroadcastInterval    time.Duration `env:"BROADCAST_INTERVAL,default=30s" validate:"gt=0"`
	BroadcastGrace       time.Duration `env:"BROADCAST_GRACE,default=5s" validate:"min=0"`
	SendTimeout          time.Duration `env:"SEND_TIMEOUT,default=2s" validate:"gt=0"`
	FanoutConcurrency    int           `env:"FANOUT_CONCURRENCY,default=16" validate:"min=1"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"min=2"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=8" validate:"min=0"`

	GatewayMode    string        `env:"GATEWAY_MODE,default=host" validate:"oneof=http host"`
	GatewayURL     string        `env:"GATEWAY_URL" validate:"omitempty,url"`
	GatewayToken   string        `env:"GATEWAY_TOKEN"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT,default=5s" validate:"gt=0"`
	DiskPath       string        `env:"DISK_PATH,default=/"`

	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/agents" validate:"required"`
	AgentManifest  string `env:"AGENT_MANIFEST"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081" validate:"min=1,max=65535"`

	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=10s" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

// Validate checks the struct tags and the cross-field rules the tags cannot express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.GatewayMode == GatewayModeHTTP && c.GatewayURL == "" {
		return fmt.Errorf("GATEWAY_URL is required when GATEWAY_MODE=%s", GatewayModeHTTP)
	}
	if c.BroadcastGrace >= c.BroadcastInterval {
		return fmt.Errorf("BROADCAST_GRACE (%s) must be shorter than BROADCAST_INTERVAL (%s)",
			c.BroadcastGrace, c.BroadcastInterval)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
