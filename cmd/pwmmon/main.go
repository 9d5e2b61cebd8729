package main

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/pwmlink/pkg/l1/telemetry"
)

var (
	mqttURL = "mqtt://localhost:1883/"
	device  = "+"
)

func init() {
	if val := os.Getenv("PWMLINK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&device, "device", device, "Device ID to watch, + for all.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	mon, err := telemetry.NewMonitor(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	mon.WatchMeta(device, func(id string, meta *telemetry.Meta) {
		if meta == nil {
			log.Printf("%s: gone", id)
			return
		}
		log.Printf("%s: %s channels=%d escape=%s", id, meta.Transport, meta.Channels, meta.EscapeMode)
	})
	mon.WatchStatus(device, func(id string, s *telemetry.Status) {
		log.Printf("%s: [%s] %s", id, s.Event, s.String())
	})
	if err := mon.Connect(); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
