// Package publish forwards switch button states to message brokers.
package publish

import (
	"time"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/ptm215b"
)

// Payloads published for button states on MQTT.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// Publisher creates observers bound to one switch button.
type Publisher interface {
	Observer(addr advertisement.Address, button ptm215b.Button) ptm215b.Observer
}

// Event is the JSON document published for a button state change.
type Event struct {
	Address advertisement.Address `json:"address"`
	Button  string                `json:"button"`
	State   bool                  `json:"state"`
	Time    time.Time             `json:"time"`
}

// Fanout notifies every observer in order.
type Fanout []ptm215b.Observer

// PublishState implements ptm215b.Observer.
func (f Fanout) PublishState(state bool) {
	for _, o := range f {
		o.PublishState(state)
	}
}

// Observers builds one observer per button, fanning out to every publisher.
// A nil map is returned when there are no publishers.
func Observers(addr advertisement.Address, buttons []ptm215b.Button, publishers ...Publisher) map[ptm215b.Button]ptm215b.Observer {
	if len(publishers) == 0 {
		return nil
	}

	m := make(map[ptm215b.Button]ptm215b.Observer, len(buttons))
	for _, b := range buttons {
		var f Fanout
		for _, p := range publishers {
			f = append(f, p.Observer(addr, b))
		}
		if len(f) == 1 {
			m[b] = f[0]
		} else {
			m[b] = f
		}
	}
	return m
}

func statePayload(state bool) string {
	if state {
		return PayloadOn
	}
	return PayloadOff
}
