package keystore

import (
	"fmt"

	"github.com/majkrzak/esphome-ptm215b/pkg/ptm215b"
	"github.com/pion/logging"
)

// Sink persists keys learned by a ptm215b.Device into a Store.
type Sink struct {
	store Store
	log   logging.LeveledLogger
}

// NewSink creates a Sink writing to store.
func NewSink(store Store, loggerFactory logging.LoggerFactory) *Sink {
	s := &Sink{store: store}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("keystore")
	}
	return s
}

// LearnKey implements ptm215b.KeySink. The key is stored under the
// address of the device that accepted the commissioning telegram.
func (s *Sink) LearnKey(k ptm215b.LearnedKey) error {
	if old, ok, err := s.store.LoadKey(k.Device); err == nil && ok && old == k.Key {
		if s.log != nil {
			s.log.Debugf("%s: learned key already stored", k.Device)
		}
		return nil
	}

	if err := s.store.SaveKey(k.Device, k.Key); err != nil {
		return fmt.Errorf("keystore: save %s: %w", k.Device, err)
	}

	if s.log != nil {
		s.log.Infof("%s: stored key learned at sequence %d", k.Device, k.Sequence)
	}
	return nil
}
