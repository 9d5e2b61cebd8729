package sh

import (
	"flag"
	"os"
	"time"

	"github.com/robotalks/pwmlink/pkg/l1/host"
)

// Config provides options of the host console.
type Config struct {
	// Transport is the stream URL of the device, see package transport.
	Transport string
	// MQTTURL is used to discover devices publishing telemetry.
	MQTTURL string
	// Timeout bounds the wait for each echo or ack.
	Timeout time.Duration
	// KeepAlive resends the last command at this interval so the device
	// fail-safe doesn't trip. 0 disables.
	KeepAlive time.Duration
	// AutoRecover sends the escape sequence when a command gets no ack.
	// Without it the device stays in fail-safe until "resync".
	AutoRecover bool
}

var defaultConfig = Config{
	MQTTURL:   "mqtt://localhost:1883/",
	Timeout:   host.DefaultTimeout,
	KeepAlive: 250 * time.Millisecond,
}

func init() {
	if val := os.Getenv("PWMLINK_TRANSPORT"); val != "" {
		defaultConfig.Transport = val
	}
	if val := os.Getenv("PWMLINK_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Transport, "transport", defaultConfig.Transport, "Device stream URL to connect.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for discovery.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Reply timeout.")
	flag.DurationVar(&defaultConfig.KeepAlive, "keepalive", defaultConfig.KeepAlive, "Resend interval of the last command, 0 to disable.")
	flag.BoolVar(&defaultConfig.AutoRecover, "auto-recover", defaultConfig.AutoRecover, "Leave device fail-safe automatically when a command gets no ack.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}
