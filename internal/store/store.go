// Package store persists the addresses set at runtime so they survive a
// restart of the daemon.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"firestige.xyz/ethmqtt/internal/core"
)

const FileName = "persisted.yml"

// Persisted holds the stored addresses. A nil field was never stored and the
// configured value applies.
type Persisted struct {
	IP       *core.IPv4Addr
	BrokerIP *core.IPv4Addr
}

// Store reads and writes persisted addresses.
type Store interface {
	Load() (Persisted, error)
	SaveIP(ip core.IPv4Addr) error
	SaveBrokerIP(ip core.IPv4Addr) error
}

// document is the on-disk layout.
type document struct {
	IP        string    `yaml:"ip,omitempty"`
	BrokerIP  string    `yaml:"broker_ip,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// FileStore keeps a YAML document in a directory.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore stores under dir, creating it on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, FileName)}
}

func (s *FileStore) Path() string { return s.path }

// Load returns the stored addresses. A missing file stores nothing.
func (s *FileStore) Load() (Persisted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return Persisted{}, err
	}
	return doc.persisted()
}

func (s *FileStore) SaveIP(ip core.IPv4Addr) error {
	return s.update(func(doc *document) { doc.IP = ip.String() })
}

func (s *FileStore) SaveBrokerIP(ip core.IPv4Addr) error {
	return s.update(func(doc *document) { doc.BrokerIP = ip.String() })
}

func (s *FileStore) update(fn func(doc *document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	fn(&doc)
	doc.UpdatedAt = time.Now().UTC()

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", s.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// write-then-rename keeps the previous document on a crash
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) read() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return doc, nil
}

func (d document) persisted() (Persisted, error) {
	var p Persisted
	if d.IP != "" {
		ip, err := core.ParseIPv4Addr(d.IP)
		if err != nil {
			return p, fmt.Errorf("stored ip: %w", err)
		}
		p.IP = &ip
	}
	if d.BrokerIP != "" {
		ip, err := core.ParseIPv4Addr(d.BrokerIP)
		if err != nil {
			return p, fmt.Errorf("stored broker ip: %w", err)
		}
		p.BrokerIP = &ip
	}
	return p, nil
}

// Memory is an in-process Store.
type Memory struct {
	mu sync.Mutex
	p  Persisted
}

func (m *Memory) Load() (Persisted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p, nil
}

func (m *Memory) SaveIP(ip core.IPv4Addr) error {
	m.mu.Lock()
	m.p.IP = &ip
	m.mu.Unlock()
	return nil
}

func (m *Memory) SaveBrokerIP(ip core.IPv4Addr) error {
	m.mu.Lock()
	m.p.BrokerIP = &ip
	m.mu.Unlock()
	return nil
}
