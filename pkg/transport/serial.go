package transport

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// DefaultBaudRate is the UART setting of the device.
const DefaultBaudRate = 9600

// SerialMode parses serial options from URL query.
func SerialMode(q url.Values) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if val := q.Get("baud"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil || baud <= 0 {
			return nil, &InvalidOptionError{Name: "baud", Value: val}
		}
		mode.BaudRate = baud
	}
	switch val := strings.ToLower(q.Get("parity")); val {
	case "", "none", "n":
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "even", "e":
		mode.Parity = serial.EvenParity
	default:
		return nil, &InvalidOptionError{Name: "parity", Value: val}
	}
	switch val := q.Get("stopbits"); val {
	case "", "1":
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, &InvalidOptionError{Name: "stopbits", Value: val}
	}
	return mode, nil
}

func openSerial(ctx context.Context, u *url.URL) (Stream, error) {
	mode, err := SerialMode(u.Query())
	if err != nil {
		return nil, err
	}
	dev := u.Path
	if u.Host != "" {
		// serial://ttyUSB0
		dev = "/dev/" + u.Host + u.Path
	}
	glog.V(2).Infof("open serial %s baud %d", dev, mode.BaudRate)
	return serial.Open(dev, mode)
}
