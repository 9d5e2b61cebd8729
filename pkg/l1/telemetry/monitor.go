package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"
)

// StatusHandler receives decoded status.
type StatusHandler func(id string, s *Status)

// MetaHandler receives device meta. A nil meta means the device is gone.
type MetaHandler func(id string, m *Meta)

// Monitor watches devices.
type Monitor struct {
	Queue *Queue
}

// NewMonitor creates a Monitor from a broker URL.
func NewMonitor(brokerURL string) (*Monitor, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Monitor{Queue: q}, nil
}

// Connect connects and waits for the result.
func (m *Monitor) Connect() error {
	token := m.Queue.Connect()
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (m *Monitor) Close() error {
	return m.Queue.Close()
}

// WatchStatus subscribes status of device id, or all with "+".
func (m *Monitor) WatchStatus(id string, h StatusHandler) *Subscription {
	return m.Queue.Sub(Topic(id, KindStatus), func(topic string, payload []byte) {
		devID, _, ok := ParseTopic(topic)
		if !ok || len(payload) == 0 {
			return
		}
		s, err := DecodeStatus(payload)
		if err != nil {
			glog.Warningf("%s: bad status: %v", topic, err)
			return
		}
		h(devID, s)
	})
}

// WatchMeta subscribes meta of device id, or all with "+".
func (m *Monitor) WatchMeta(id string, h MetaHandler) *Subscription {
	return m.Queue.Sub(Topic(id, KindMeta), func(topic string, payload []byte) {
		devID, _, ok := ParseTopic(topic)
		if !ok {
			return
		}
		if len(payload) == 0 {
			h(devID, nil)
			return
		}
		var meta Meta
		if err := json.Unmarshal(payload, &meta); err != nil {
			glog.Warningf("%s: bad meta: %v", topic, err)
			return
		}
		h(devID, &meta)
	})
}

// Discover collects devices announcing meta within timeout.
func (m *Monitor) Discover(ctx context.Context, timeout time.Duration) ([]*Meta, error) {
	metaCh := make(chan *Meta, 16)
	sub := m.WatchMeta("+", func(id string, meta *Meta) {
		if meta == nil {
			return
		}
		select {
		case metaCh <- meta:
		case <-time.After(timeout):
		}
	})
	defer sub.Close()

	var res []*Meta
	expire := time.After(timeout)
	for {
		select {
		case meta := <-metaCh:
			res = append(res, meta)
		case <-expire:
			return res, nil
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}
