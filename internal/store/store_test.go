package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ethmqtt/internal/core"
)

func TestFileStoreMissingFile(t *testing.T) {
	s := NewFileStore(t.TempDir())
	p, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, p.IP)
	assert.Nil(t, p.BrokerIP)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s := NewFileStore(dir)

	require.NoError(t, s.SaveIP(core.IPv4Addr{10, 0, 0, 20}))
	p, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, p.IP)
	assert.Equal(t, core.IPv4Addr{10, 0, 0, 20}, *p.IP)
	assert.Nil(t, p.BrokerIP, "broker ip not stored yet")

	require.NoError(t, s.SaveBrokerIP(core.IPv4Addr{10, 0, 0, 2}))

	// a fresh store sees both values
	p, err = NewFileStore(dir).Load()
	require.NoError(t, err)
	require.NotNil(t, p.IP)
	require.NotNil(t, p.BrokerIP)
	assert.Equal(t, core.IPv4Addr{10, 0, 0, 20}, *p.IP)
	assert.Equal(t, core.IPv4Addr{10, 0, 0, 2}, *p.BrokerIP)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "broker_ip: 10.0.0.2")
}

func TestFileStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("ip: [not, an, ip]"), 0644))
	_, err := NewFileStore(dir).Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("ip: 300.1.2.3\n"), 0644))
	_, err = NewFileStore(dir).Load()
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestMemory(t *testing.T) {
	var m Memory
	p, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, p.IP)

	require.NoError(t, m.SaveBrokerIP(core.IPv4Addr{1, 2, 3, 4}))
	p, _ = m.Load()
	require.NotNil(t, p.BrokerIP)
	assert.Equal(t, "1.2.3.4", p.BrokerIP.String())
}

var _ Store = (*FileStore)(nil)
var _ Store = (*Memory)(nil)
