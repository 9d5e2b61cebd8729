// Package telemetry publishes controller status over MQTT.
//
// Topics, relative to the prefix in the broker URL:
//
//	pwmlink/<id>/status  retained Status in protobuf
//	pwmlink/<id>/meta    retained Meta in JSON, emptied when the device leaves
package telemetry

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/pwmlink/pkg/l0/firmware"
)

// Topic kinds.
const (
	TopicRoot   = "pwmlink"
	KindStatus  = "status"
	KindMeta    = "meta"
	pubTimeout  = time.Second
	clientIDTag = "pwmlink:"
)

// Topic builds the topic of a device, id may be a wildcard.
func Topic(id, kind string) string {
	return TopicRoot + "/" + id + "/" + kind
}

// ParseTopic extracts device id and kind.
func ParseTopic(topic string) (id, kind string, ok bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 || items[0] != TopicRoot {
		return "", "", false
	}
	return items[1], items[2], true
}

// Publisher implements firmware.Notifier.
type Publisher struct {
	Queue *Queue
	Meta  Meta

	metaJSON []byte
	now      func() time.Time
}

// NewPublisher creates a Publisher. The meta topic is emptied by the broker
// if the connection is lost.
func NewPublisher(brokerURL string, meta Meta) (*Publisher, error) {
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(prefix+Topic(meta.ID, KindMeta), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID(clientIDTag + meta.ID)
	}
	p := &Publisher{
		Queue:    NewQueue(opts, prefix),
		Meta:     meta,
		metaJSON: metaJSON,
		now:      time.Now,
	}
	p.Queue.OnConnect = func(q *Queue) {
		q.PubWith(Topic(p.Meta.ID, KindMeta), p.metaJSON, 1, true)
	}
	return p, nil
}

// Notify implements firmware.Notifier. It doesn't wait for delivery.
func (p *Publisher) Notify(ctx context.Context, ev firmware.Event) {
	payload, err := EncodeStatus(NewStatus(p.Meta.ID, ev, p.now()))
	if err != nil {
		glog.Errorf("encode status error: %v", err)
		return
	}
	p.Queue.PubWith(Topic(p.Meta.ID, KindStatus), payload, 0, true)
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	token := p.Queue.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			glog.Errorf("MQTT connect error: %v", err)
		}
	}()
	<-ctx.Done()
	if p.Queue.Client.IsConnected() {
		p.Queue.PubWith(Topic(p.Meta.ID, KindMeta), nil, 1, true).WaitTimeout(pubTimeout)
	}
	p.Queue.Close()
	return nil
}
