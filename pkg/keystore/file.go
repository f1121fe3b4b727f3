package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/crypto"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

const (
	fileVersion = 1

	// sealNonceSize and sealTagSize parameterize AES-CCM for stored keys.
	sealNonceSize = 13
	sealTagSize   = 16

	saltSize = 16
)

// FileConfig configures a FileStore.
type FileConfig struct {
	// Path of the YAML key file. Required.
	Path string

	// Passphrase seals keys at rest. Empty stores keys as plain hex.
	Passphrase string

	// Iterations is the PBKDF2 iteration count for new files.
	// Zero uses crypto.StorageKeyIterationsDefault.
	Iterations int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// fileFormat is the on-disk YAML layout.
type fileFormat struct {
	Version int         `yaml:"version"`
	KDF     *fileKDF    `yaml:"kdf,omitempty"`
	Keys    []fileEntry `yaml:"keys"`
}

type fileKDF struct {
	Salt       string `yaml:"salt"`
	Iterations int    `yaml:"iterations"`
}

type fileEntry struct {
	Address string `yaml:"address"`
	Key     string `yaml:"key,omitempty"`
	Sealed  string `yaml:"sealed,omitempty"`
}

// FileStore is a Store backed by a YAML file. When a passphrase is set,
// every key is sealed with AES-CCM under a PBKDF2-SHA256 derived key and
// bound to its address as associated data.
type FileStore struct {
	path string
	log  logging.LeveledLogger

	mu         sync.Mutex
	keys       map[advertisement.Address]Key
	salt       []byte
	iterations int
	aead       *crypto.CCM
}

// OpenFileStore loads the key file at config.Path. A missing file yields
// an empty store; the file is created on the first SaveKey.
func OpenFileStore(config FileConfig) (*FileStore, error) {
	if config.Path == "" {
		return nil, ErrNoPath
	}

	s := &FileStore{
		path:       config.Path,
		keys:       make(map[advertisement.Address]Key),
		iterations: config.Iterations,
	}
	if s.iterations == 0 {
		s.iterations = crypto.StorageKeyIterationsDefault
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("keystore")
	}

	data, err := os.ReadFile(config.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if s.log != nil {
			s.log.Infof("key file %s does not exist, starting empty", config.Path)
		}
	case err != nil:
		return nil, fmt.Errorf("keystore: read %s: %w", config.Path, err)
	}

	var ff fileFormat
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &ff); err != nil {
			return nil, fmt.Errorf("keystore: parse %s: %w", config.Path, err)
		}
		if ff.Version > fileVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, ff.Version)
		}
		if ff.KDF != nil {
			salt, err := hex.DecodeString(ff.KDF.Salt)
			if err != nil {
				return nil, fmt.Errorf("%w: kdf salt: %v", ErrInvalidEntry, err)
			}
			s.salt = salt
			s.iterations = ff.KDF.Iterations
		}
	}

	if config.Passphrase != "" {
		if s.salt == nil {
			s.salt = make([]byte, saltSize)
			if _, err := rand.Read(s.salt); err != nil {
				return nil, fmt.Errorf("keystore: generate salt: %w", err)
			}
		}
		dk, err := crypto.DeriveStorageKey([]byte(config.Passphrase), s.salt, s.iterations)
		if err != nil {
			return nil, fmt.Errorf("keystore: derive key: %w", err)
		}
		s.aead, err = crypto.NewCCM(dk, sealNonceSize, sealTagSize)
		if err != nil {
			return nil, err
		}
	}

	for i, e := range ff.Keys {
		addr, key, err := s.decodeEntry(e)
		if err != nil {
			return nil, fmt.Errorf("keystore: entry %d: %w", i, err)
		}
		s.keys[addr] = key
	}

	if s.log != nil {
		s.log.Debugf("loaded %d keys from %s (sealed: %v)", len(s.keys), s.path, s.aead != nil)
	}

	return s, nil
}

// LoadKey implements Store.
func (s *FileStore) LoadKey(addr advertisement.Address) (Key, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[addr]
	return k, ok, nil
}

// SaveKey implements Store. The whole file is rewritten.
func (s *FileStore) SaveKey(addr advertisement.Address, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.keys[addr]
	s.keys[addr] = key

	if err := s.writeLocked(); err != nil {
		if had {
			s.keys[addr] = prev
		} else {
			delete(s.keys, addr)
		}
		return err
	}
	return nil
}

// Addresses returns the addresses with a stored key, sorted.
func (s *FileStore) Addresses() []advertisement.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAddressesLocked()
}

func (s *FileStore) sortedAddressesLocked() []advertisement.Address {
	addrs := make([]advertisement.Address, 0, len(s.keys))
	for a := range s.keys {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Uint64() < addrs[j].Uint64() })
	return addrs
}

func (s *FileStore) decodeEntry(e fileEntry) (advertisement.Address, Key, error) {
	var key Key

	addr, err := advertisement.ParseAddress(e.Address)
	if err != nil {
		return addr, key, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	switch {
	case e.Sealed != "":
		if s.aead == nil {
			return addr, key, ErrPassphraseRequired
		}
		sealed, err := hex.DecodeString(e.Sealed)
		if err != nil || len(sealed) != sealNonceSize+len(key)+sealTagSize {
			return addr, key, fmt.Errorf("%w: sealed key for %s", ErrInvalidEntry, addr)
		}
		plain, err := s.aead.Open(sealed[:sealNonceSize], sealed[sealNonceSize:], addr[:])
		if err != nil {
			return addr, key, ErrWrongPassphrase
		}
		copy(key[:], plain)
	case e.Key != "":
		raw, err := hex.DecodeString(e.Key)
		if err != nil || len(raw) != len(key) {
			return addr, key, fmt.Errorf("%w: key for %s", ErrInvalidEntry, addr)
		}
		copy(key[:], raw)
	default:
		return addr, key, fmt.Errorf("%w: no key for %s", ErrInvalidEntry, addr)
	}

	return addr, key, nil
}

func (s *FileStore) encodeEntry(addr advertisement.Address, key Key) (fileEntry, error) {
	e := fileEntry{Address: addr.String()}

	if s.aead == nil {
		e.Key = hex.EncodeToString(key[:])
		return e, nil
	}

	nonce := make([]byte, sealNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return e, fmt.Errorf("keystore: generate nonce: %w", err)
	}
	ct, err := s.aead.Seal(nonce, key[:], addr[:])
	if err != nil {
		return e, err
	}
	e.Sealed = hex.EncodeToString(append(nonce, ct...))
	return e, nil
}

// writeLocked writes the file through a temporary file and a rename so a
// crash never leaves a truncated key file. Caller must hold s.mu.
func (s *FileStore) writeLocked() error {
	ff := fileFormat{Version: fileVersion}
	if s.aead != nil {
		ff.KDF = &fileKDF{Salt: hex.EncodeToString(s.salt), Iterations: s.iterations}
	}

	for _, addr := range s.sortedAddressesLocked() {
		e, err := s.encodeEntry(addr, s.keys[addr])
		if err != nil {
			return err
		}
		ff.Keys = append(ff.Keys, e)
	}

	data, err := yaml.Marshal(&ff)
	if err != nil {
		return fmt.Errorf("keystore: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("keystore: write %s: %w", s.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("keystore: write %s: %w", s.path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("keystore: write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keystore: write %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("keystore: write %s: %w", s.path, err)
	}

	if s.log != nil {
		s.log.Debugf("wrote %d keys to %s", len(ff.Keys), s.path)
	}
	return nil
}
