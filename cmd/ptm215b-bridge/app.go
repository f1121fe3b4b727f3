package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/bridge"
	"github.com/majkrzak/esphome-ptm215b/pkg/config"
	"github.com/majkrzak/esphome-ptm215b/pkg/discovery"
	"github.com/majkrzak/esphome-ptm215b/pkg/keystore"
	"github.com/majkrzak/esphome-ptm215b/pkg/ptm215b"
	"github.com/majkrzak/esphome-ptm215b/pkg/publish"
	"github.com/majkrzak/esphome-ptm215b/pkg/transport"
	"github.com/pion/logging"
)

// deviceConfigs converts the YAML device list into bridge device configs.
func deviceConfigs(cfg *config.Config) ([]bridge.DeviceConfig, error) {
	devices := make([]bridge.DeviceConfig, 0, len(cfg.Devices))
	for i := range cfg.Devices {
		d := &cfg.Devices[i]

		addr, err := d.Address()
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		key, err := d.Key()
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.DisplayName(), err)
		}
		buttons, err := d.ParsedButtons()
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.DisplayName(), err)
		}

		devices = append(devices, bridge.DeviceConfig{
			Name:                 d.DisplayName(),
			Address:              addr,
			Key:                  key,
			Buttons:              buttons,
			AdoptCommissionedKey: d.AdoptCommissionedKey,
		})
	}
	return devices, nil
}

func openKeystore(cfg *config.Config, lf logging.LoggerFactory) (keystore.Store, error) {
	if cfg.Keystore.Path == "" {
		return keystore.NewMemoryStore(), nil
	}
	return keystore.OpenFileStore(keystore.FileConfig{
		Path:          cfg.Keystore.Path,
		Passphrase:    cfg.Keystore.Passphrase,
		Iterations:    cfg.Keystore.Iterations,
		LoggerFactory: lf,
	})
}

// publishers connects every configured publisher. The returned function
// closes them.
func publishers(cfg *config.Config, lf logging.LoggerFactory) ([]publish.Publisher, func(), error) {
	var (
		pubs    []publish.Publisher
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.MQTT.Broker != "" {
		m, err := publish.NewMQTT(publish.MQTTConfig{
			Broker:        cfg.MQTT.Broker,
			ClientID:      cfg.MQTT.ClientID,
			Username:      cfg.MQTT.Username,
			Password:      cfg.MQTT.Password,
			TopicPrefix:   cfg.MQTT.TopicPrefix,
			QoS:           cfg.MQTT.QoS,
			Timeout:       cfg.MQTT.Timeout,
			LoggerFactory: lf,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := m.Connect(); err != nil {
			return nil, nil, err
		}
		pubs = append(pubs, m)
		closers = append(closers, func() { m.Close() })
	}

	if cfg.NATS.URL != "" {
		n, err := publish.NewNATS(publish.NATSConfig{
			URL:           cfg.NATS.URL,
			Username:      cfg.NATS.Username,
			Password:      cfg.NATS.Password,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			LoggerFactory: lf,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		pubs = append(pubs, n)
		closers = append(closers, n.Close)
	}

	return pubs, closeAll, nil
}

func newBridge(cfg *config.Config, store keystore.Store, pubs []publish.Publisher, lf logging.LoggerFactory) (*bridge.Bridge, error) {
	devices, err := deviceConfigs(cfg)
	if err != nil {
		return nil, err
	}
	return bridge.New(bridge.Config{
		Devices:       devices,
		Store:         store,
		Publishers:    pubs,
		LoggerFactory: lf,
	})
}

// replay runs a capture file through a bridge without publishers and
// writes one line per advertisement to w.
func replay(cfg *config.Config, lf logging.LoggerFactory, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := newBridge(cfg, keystore.NewMemoryStore(), nil, lf)
	if err != nil {
		return err
	}

	err = b.Replay(f, func(lineNo int, adv advertisement.Advertisement, res ptm215b.Result) {
		if res.Telegram != nil {
			fmt.Fprintf(w, "%d\t%s\t%v\t%v\n", lineNo, adv.Address, res.Outcome, res.Telegram)
		} else {
			fmt.Fprintf(w, "%d\t%s\t%v\n", lineNo, adv.Address, res.Outcome)
		}
	})
	if err != nil {
		return err
	}

	s := b.Stats()
	fmt.Fprintf(w, "# %d advertisements", s.Advertisements)
	for _, o := range ptm215b.Outcomes {
		if n := s.Outcomes[o]; n > 0 {
			fmt.Fprintf(w, ", %v=%d", o, n)
		}
	}
	fmt.Fprintln(w)
	return nil
}

// run serves the UDP ingest until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, lf logging.LoggerFactory) error {
	logger := lf.NewLogger("main")

	store, err := openKeystore(cfg, lf)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}

	pubs, closePublishers, err := publishers(cfg, lf)
	if err != nil {
		return fmt.Errorf("connect publishers: %w", err)
	}
	defer closePublishers()

	b, err := newBridge(cfg, store, pubs, lf)
	if err != nil {
		return err
	}

	udp, err := transport.NewUDP(transport.UDPConfig{
		ListenAddr:    cfg.Listen,
		Handler:       b.Ingest,
		LoggerFactory: lf,
	})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := udp.Start(); err != nil {
		return err
	}
	defer udp.Stop()

	logger.Infof("Listening on %v for %d devices", udp.LocalAddr(), b.Len())

	if cfg.MDNS.Enabled {
		port := transport.DefaultPort
		if ua, ok := udp.LocalAddr().(*net.UDPAddr); ok {
			port = ua.Port
		}

		adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Instance:      cfg.MDNS.Instance,
			Port:          port,
			LoggerFactory: lf,
		})
		if err != nil {
			return err
		}
		if err := adv.Start(discovery.BridgeTXT{Version: discovery.TXTVersion, Devices: b.Len()}); err != nil {
			return fmt.Errorf("mdns: %w", err)
		}
		defer adv.Close()
	}

	<-ctx.Done()

	s := b.Stats()
	logger.Infof("Shutting down after %d advertisements (%d accepted, %d dropped frames)",
		s.Advertisements, s.Outcomes[ptm215b.Accepted], udp.Stats().Malformed)
	return nil
}
