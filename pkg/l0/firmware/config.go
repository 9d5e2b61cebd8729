package firmware

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/pwmlink/pkg/l0/failsafe"
	"github.com/robotalks/pwmlink/pkg/l0/link"
	"github.com/robotalks/pwmlink/pkg/l0/pwm"
)

// Config defines the configurations of the firmware daemon.
type Config struct {
	// File is an optional YAML file loaded on top of flags.
	File string `yaml:"-"`

	// ID identifies the device in telemetry topics.
	ID string `yaml:"id"`
	// Transport is the URL of the command stream,
	// e.g. serial:///dev/ttyUSB0?baud=9600, tcp-listen://:7400.
	Transport string `yaml:"transport"`
	// EscapeMode is "latched" or "strict".
	EscapeMode string `yaml:"escape_mode"`
	// FailSafeTimeout is the silence allowed before actuators go neutral.
	FailSafeTimeout time.Duration `yaml:"fail_safe_timeout"`
	// Period is the PWM period, setpoints are committed on its boundary.
	Period time.Duration `yaml:"period"`
	// MQTTURL enables telemetry when not empty,
	// e.g. mqtt://host:port/topic-prefix/.
	MQTTURL string `yaml:"mqtt_url"`
	// MetricsAddr enables Prometheus metrics when not empty, e.g. :9400.
	MetricsAddr string `yaml:"metrics_addr"`
}

const defaultID = "pwmlink"

var defaultConfig = Config{
	ID:              defaultID,
	Transport:       "serial:///dev/ttyUSB0?baud=9600",
	EscapeMode:      link.EscapeLatched.String(),
	FailSafeTimeout: failsafe.DefaultTimeout,
	Period:          pwm.Period,
}

func init() {
	if id, err := machineid.ID(); err == nil {
		defaultConfig.ID = id
	}
	if val := os.Getenv("PWMLINK_ID"); val != "" {
		defaultConfig.ID = val
	}
	if val := os.Getenv("PWMLINK_TRANSPORT"); val != "" {
		defaultConfig.Transport = val
	}
	if val := os.Getenv("PWMLINK_ESCAPE_MODE"); val != "" {
		defaultConfig.EscapeMode = val
	}
	if val := os.Getenv("PWMLINK_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("PWMLINK_METRICS_ADDR"); val != "" {
		defaultConfig.MetricsAddr = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.File, "config", defaultConfig.File, "YAML config file")
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Device ID")
	flag.StringVar(&defaultConfig.Transport, "transport", defaultConfig.Transport, "Command stream URL")
	flag.StringVar(&defaultConfig.EscapeMode, "escape", defaultConfig.EscapeMode, "Escape recognition: latched or strict")
	flag.DurationVar(&defaultConfig.FailSafeTimeout, "failsafe-timeout", defaultConfig.FailSafeTimeout, "Silence before fail-safe")
	flag.DurationVar(&defaultConfig.Period, "period", defaultConfig.Period, "PWM period")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for telemetry")
	flag.StringVar(&defaultConfig.MetricsAddr, "metrics", defaultConfig.MetricsAddr, "Listen address for Prometheus metrics")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load reads YAML from r. Keys present override current values.
func (c *Config) Load(r io.Reader) error {
	if err := yaml.NewDecoder(r).Decode(c); err != nil && err != io.EOF {
		return fmt.Errorf("decode config error: %v", err)
	}
	return nil
}

// LoadFile loads c.File if specified.
func (c *Config) LoadFile() error {
	if c.File == "" {
		return nil
	}
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()
	glog.V(2).Infof("loading config %s", c.File)
	return c.Load(f)
}

// Validate checks configuration correctness.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("device id must be specified")
	}
	if c.Transport == "" {
		return fmt.Errorf("transport must be specified")
	}
	if _, err := link.ParseEscapeMode(c.EscapeMode); err != nil {
		return err
	}
	if c.FailSafeTimeout <= 0 {
		return fmt.Errorf("invalid fail-safe timeout %v", c.FailSafeTimeout)
	}
	if c.Period <= 0 {
		return fmt.Errorf("invalid PWM period %v", c.Period)
	}
	return nil
}

// NewController creates a controller on the stream driving out.
func (c *Config) NewController(rw io.ReadWriter, out pwm.Output) (*Controller, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	mode, _ := link.ParseEscapeMode(c.EscapeMode)
	engine := pwm.NewEngine(out)
	engine.Period = c.Period
	ctl := New(rw, engine)
	ctl.Watchdog = failsafe.New(c.FailSafeTimeout)
	ctl.EscapeMode = mode
	return ctl, nil
}
