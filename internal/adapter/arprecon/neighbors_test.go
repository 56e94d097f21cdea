package arprecon

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeARP struct {
	mu      sync.Mutex
	table   map[netip.Addr]net.HardwareAddr
	asked   []netip.Addr
	closed  bool
	dlCalls int
}

func (f *fakeARP) Resolve(ip netip.Addr) (net.HardwareAddr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, ip)
	if mac, ok := f.table[ip]; ok {
		return mac, nil
	}
	return nil, errors.New("i/o timeout")
}

func (f *fakeARP) SetDeadline(time.Time) error {
	f.dlCalls++
	return nil
}

func (f *fakeARP) Close() error {
	f.closed = true
	return nil
}

func loopback(t *testing.T) string {
	t.Helper()
	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, i := range ifaces {
		if i.Flags&net.FlagLoopback != 0 {
			return i.Name
		}
	}
	t.Skip("no loopback interface")
	return ""
}

func newNeighbors(t *testing.T, client *fakeARP) *Neighbors {
	n := New(config.ARPOpts{Interface: loopback(t)}, testutil.Logger())
	n.prefixes = func(*net.Interface) ([]netip.Prefix, error) {
		return []netip.Prefix{netip.MustParsePrefix("10.0.0.0/24")}, nil
	}
	n.dial = func(*net.Interface) (arpClient, error) { return client, nil }
	return n
}

func TestEnrichResolvesOnLinkHosts(t *testing.T) {
	mac, _ := net.ParseMAC("02:42:ac:11:00:02")
	client := &fakeARP{table: map[netip.Addr]net.HardwareAddr{
		netip.MustParseAddr("10.0.0.5"): mac,
	}}
	n := newNeighbors(t, client)

	targets, findings, err := n.Enrich(context.Background(), []domain.Target{
		{IP: "10.0.0.5", Port: 80},
		{IP: "10.0.0.5", Port: 443},
		{IP: "10.0.0.9", Port: 22},
		{IP: "192.168.1.1", Port: 80},
		{IP: "not-an-ip"},
	})
	require.NoError(t, err)

	assert.Empty(t, targets)
	require.Len(t, findings, 1)
	assert.Equal(t, "arp", findings[0].Type)
	assert.Contains(t, findings[0].Description, "02:42:ac:11:00:02")
	assert.Equal(t, "02:42:ac:11:00:02", findings[0].Metadata["mac"])

	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.5"), netip.MustParseAddr("10.0.0.9")}, client.asked)
	assert.Equal(t, 2, client.dlCalls)
	assert.True(t, client.closed)
}

func TestEnrichSkipsDialWithoutOnLinkHosts(t *testing.T) {
	n := newNeighbors(t, nil)
	n.dial = func(*net.Interface) (arpClient, error) {
		t.Fatal("dial should not be called")
		return nil, nil
	}

	_, findings, err := n.Enrich(context.Background(), []domain.Target{{IP: "8.8.8.8", Port: 53}})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestEnrichUnknownInterface(t *testing.T) {
	n := New(config.ARPOpts{Interface: "does-not-exist0"}, testutil.Logger())

	_, _, err := n.Enrich(context.Background(), []domain.Target{{IP: "10.0.0.5"}})
	assert.ErrorContains(t, err, "does-not-exist0")
}

func TestEnrichHonoursCancellation(t *testing.T) {
	n := newNeighbors(t, &fakeARP{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := n.Enrich(ctx, []domain.Target{{IP: "10.0.0.5"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestName(t *testing.T) {
	assert.Equal(t, "arp", New(config.ARPOpts{}, nil).Name())
}
