package telemetry

import (
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/pwmlink/pkg/l0/firmware"
	"github.com/robotalks/pwmlink/pkg/l0/link"
)

// Status is published retained on <prefix>pwmlink/<id>/status.
type Status struct {
	ID           string   `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Event        string   `protobuf:"bytes,2,opt,name=event,proto3" json:"event,omitempty"`
	Synchronized bool     `protobuf:"varint,3,opt,name=synchronized,proto3" json:"synchronized,omitempty"`
	Failed       bool     `protobuf:"varint,4,opt,name=failed,proto3" json:"failed,omitempty"`
	Pending      []uint32 `protobuf:"varint,5,rep,packed,name=pending,proto3" json:"pending,omitempty"`
	Applied      []uint32 `protobuf:"varint,6,rep,packed,name=applied,proto3" json:"applied,omitempty"`
	OutputA      bool     `protobuf:"varint,7,opt,name=output_a,proto3" json:"output_a,omitempty"`
	OutputB      bool     `protobuf:"varint,8,opt,name=output_b,proto3" json:"output_b,omitempty"`
	Stats        *Stats   `protobuf:"bytes,9,opt,name=stats,proto3" json:"stats,omitempty"`
	// Timestamp is in Unix nanoseconds.
	Timestamp int64 `protobuf:"varint,10,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Status) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Status) Reset() { *m = Status{} }

// String implements proto.Message.
func (m *Status) String() string { return proto.CompactTextString(m) }

// Stats are the controller counters.
type Stats struct {
	Accepted       uint64 `protobuf:"varint,1,opt,name=accepted,proto3" json:"accepted,omitempty"`
	ChecksumErrors uint64 `protobuf:"varint,2,opt,name=checksum_errors,proto3" json:"checksum_errors,omitempty"`
	SyncErrors     uint64 `protobuf:"varint,3,opt,name=sync_errors,proto3" json:"sync_errors,omitempty"`
	FailSafeTrips  uint64 `protobuf:"varint,4,opt,name=fail_safe_trips,proto3" json:"fail_safe_trips,omitempty"`
	Resyncs        uint64 `protobuf:"varint,5,opt,name=resyncs,proto3" json:"resyncs,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Stats) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Stats) Reset() { *m = Stats{} }

// String implements proto.Message.
func (m *Stats) String() string { return proto.CompactTextString(m) }

// Meta is published retained on <prefix>pwmlink/<id>/meta in JSON.
// An empty payload means the device is gone.
type Meta struct {
	ID         string `json:"id"`
	Transport  string `json:"transport,omitempty"`
	EscapeMode string `json:"escape_mode,omitempty"`
	Channels   int    `json:"channels"`
}

// NewStatus converts a controller event.
func NewStatus(id string, ev firmware.Event, at time.Time) *Status {
	s := ev.Status
	m := &Status{
		ID:           id,
		Event:        ev.Kind.String(),
		Synchronized: s.State == link.Synchronized,
		Failed:       s.Failed,
		Pending:      make([]uint32, len(s.Engine.Pending)),
		Applied:      make([]uint32, len(s.Engine.Applied)),
		OutputA:      s.Engine.OutputA,
		OutputB:      s.Engine.OutputB,
		Stats: &Stats{
			Accepted:       s.Stats.Accepted,
			ChecksumErrors: s.Stats.ChecksumErrors,
			SyncErrors:     s.Stats.SyncErrors,
			FailSafeTrips:  s.Stats.FailSafeTrips,
			Resyncs:        s.Stats.Resyncs,
		},
		Timestamp: at.UnixNano(),
	}
	for i, v := range s.Engine.Pending {
		m.Pending[i] = uint32(v)
	}
	for i, v := range s.Engine.Applied {
		m.Applied[i] = uint32(v)
	}
	return m
}

// EncodeStatus serializes a Status.
func EncodeStatus(m *Status) ([]byte, error) {
	return proto.Marshal(m)
}

// DecodeStatus parses a Status.
func DecodeStatus(payload []byte) (*Status, error) {
	var m Status
	if err := proto.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
