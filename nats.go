package fwsnd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"
)

// NATSBridge republishes the events of a unit on NATS, CBOR encoded, and
// publishes periodic JSON stats.
type NATSBridge struct {
	log  hclog.Logger
	u    *Unit
	id   string
	conn *nats.Conn

	unsubscribe func()
}

// NewNATSBridge connects to url. An empty id uses the unit's ULID.
func NewNATSBridge(log hclog.Logger, u *Unit, url, id string) (*NATSBridge, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	if id == "" {
		id = u.ID().String()
	}

	nb := &NATSBridge{
		log:  log.Named("nats"),
		u:    u,
		id:   id,
		conn: conn,
	}

	return nb, nil
}

func (n *NATSBridge) Start(ctx context.Context) error {
	n.unsubscribe = n.u.Subscribe(n.forward)

	go n.startPeriodic(ctx, 1*time.Minute)

	go func() {
		<-ctx.Done()
		n.unsubscribe()
	}()

	return nil
}

func (n *NATSBridge) Close() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}

	n.conn.Close()
}

func (n *NATSBridge) subj(which string) string {
	return fmt.Sprintf("fwsnd.unit.%s.%s", n.id, which)
}

func (n *NATSBridge) forward(ev Event) {
	err := n.publish(n.subj(ev.Name()), ev)
	if err != nil {
		bridgeErrors.Inc()
		n.log.Error("error publishing event", "event", ev.Name(), "error", err)
	}
}

func (n *NATSBridge) startPeriodic(ctx context.Context, dur time.Duration) {
	ticker := time.NewTicker(dur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := n.publishStats()
			if err != nil {
				n.log.Error("error publishing periodic stats", "error", err)
			}
		}
	}
}

func (n *NATSBridge) publishStats() error {
	data, err := json.Marshal(&StatsMessage{
		Id:            n.id,
		PublishTime:   time.Now(),
		Locked:        n.u.Locked(),
		Disconnected:  n.u.Disconnected(),
		RecordsRead:   counterValue(recordsRead),
		RecordsDrop:   counterValue(recordsDropped),
		UnitsOpen:     gaugeValue(unitsOpen),
		PublishErrors: counterValue(bridgeErrors),
	})

	if err != nil {
		return err
	}

	return n.conn.Publish(n.subj("stats"), data)
}

func (n *NATSBridge) publish(subject string, value any) error {
	data, err := cbor.Marshal(value)
	if err != nil {
		return err
	}

	return n.conn.Publish(subject, data)
}

type StatsMessage struct {
	Id            string    `json:"id" cbor:"10,keyasint"`
	PublishTime   time.Time `json:"published_at" cbor:"1,keyasint"`
	Locked        bool      `json:"locked" cbor:"2,keyasint"`
	Disconnected  bool      `json:"disconnected" cbor:"3,keyasint"`
	RecordsRead   int64     `json:"records_read" cbor:"4,keyasint"`
	RecordsDrop   int64     `json:"records_dropped" cbor:"5,keyasint"`
	UnitsOpen     int64     `json:"units_open" cbor:"6,keyasint"`
	PublishErrors int64     `json:"publish_errors" cbor:"7,keyasint"`
}
