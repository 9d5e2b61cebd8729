package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	fx "github.com/robotalks/pwmlink/pkg/framework"
	"github.com/robotalks/pwmlink/pkg/l0/firmware"
	"github.com/robotalks/pwmlink/pkg/l0/pwm"
	"github.com/robotalks/pwmlink/pkg/l1/telemetry"
	"github.com/robotalks/pwmlink/pkg/metrics"
	"github.com/robotalks/pwmlink/pkg/transport"
)

// logOutput stands in for the timer and port registers.
type logOutput struct{}

func (logOutput) SetCompare(channel int, value uint16) error {
	glog.V(2).Infof("CH%d compare %d", channel, value)
	return nil
}

func (logOutput) SetDigital(out pwm.DigitalOutput, on bool) error {
	glog.V(2).Infof("OUT%s %v", out, on)
	return nil
}

func init() {
	firmware.SetupFlags()
}

func main() {
	flag.Parse()

	conf := firmware.NewConfig()
	if err := conf.LoadFile(); err != nil {
		glog.Fatalf("load config error: %v", err)
	}
	if err := conf.Validate(); err != nil {
		glog.Fatalln(err)
	}

	runner := fx.NewRunner().HandleSignals()
	glog.Infof("opening %s", conf.Transport)
	stream, err := transport.Open(runner.Context(), conf.Transport)
	if err != nil {
		glog.Fatalf("open %s error: %v", conf.Transport, err)
	}

	ctl, err := conf.NewController(stream, logOutput{})
	if err != nil {
		glog.Fatalln(err)
	}
	notifiers := &firmware.NotifierMux{}
	ctl.Notifier = notifiers
	var runnables []fx.Runnable

	if conf.MQTTURL != "" {
		pub, err := telemetry.NewPublisher(conf.MQTTURL, telemetry.Meta{
			ID:         conf.ID,
			Transport:  conf.Transport,
			EscapeMode: conf.EscapeMode,
			Channels:   pwm.Channels,
		})
		if err != nil {
			glog.Fatalf("telemetry error: %v", err)
		}
		notifiers.Add(pub)
		runnables = append(runnables, fx.NamedRun("telemetry", pub))
	}

	if conf.MetricsAddr != "" {
		reg := metrics.NewRegistry()
		notifiers.Add(metrics.NewLinkMetrics(reg))
		runnables = append(runnables, fx.NamedRun("metrics", &metrics.Server{
			Addr:    conf.MetricsAddr,
			Handler: metrics.Handler(reg),
		}))
	}

	runner.Go(runnables...).Go(
		fx.NamedRun("controller", fx.CloseOnDone(stream, ctl)),
		fx.NamedRun("pwm", ctl.Engine),
	)

	if err := runner.Wait(); err != nil {
		glog.Exitln(err)
	}
}
