// Package arprecon reports the hardware address of on-link targets.
package arprecon

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"

	"github.com/mdlayher/arp"
	log "github.com/sirupsen/logrus"
)

type arpClient interface {
	Resolve(ip netip.Addr) (net.HardwareAddr, error)
	SetDeadline(t time.Time) error
	Close() error
}

// Neighbors resolves targets that share a subnet with Interface.
type Neighbors struct {
	Interface string
	Timeout   time.Duration
	Log       *log.Entry

	// dial and prefixes are replaced in tests.
	dial     func(iface *net.Interface) (arpClient, error)
	prefixes func(iface *net.Interface) ([]netip.Prefix, error)
}

func New(opts config.ARPOpts, l *log.Entry) *Neighbors {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Neighbors{Interface: opts.Interface, Timeout: timeout, Log: l}
}

func (n *Neighbors) Name() string { return "arp" }

// Enrich adds one finding per on-link host. Off-link hosts are ignored and a
// host that does not answer is only logged.
func (n *Neighbors) Enrich(ctx context.Context, targets []domain.Target) ([]domain.Target, []domain.Finding, error) {
	iface, err := net.InterfaceByName(n.Interface)
	if err != nil {
		return nil, nil, fmt.Errorf("interface %s: %w", n.Interface, err)
	}
	nets, err := n.subnets(iface)
	if err != nil {
		return nil, nil, err
	}

	hosts := onLink(targets, nets)
	if len(hosts) == 0 {
		return nil, nil, nil
	}

	client, err := n.dialer()(iface)
	if err != nil {
		return nil, nil, fmt.Errorf("arp dial %s: %w", n.Interface, err)
	}
	defer client.Close()

	l := n.logger()
	var findings []domain.Finding
	for _, addr := range hosts {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if err := client.SetDeadline(time.Now().Add(n.Timeout)); err != nil {
			return nil, nil, err
		}
		mac, err := client.Resolve(addr)
		if err != nil {
			l.WithFields(log.Fields{
				"ip":    addr.String(),
				"error": err,
			}).Debug("ARP resolve failed")
			continue
		}
		findings = append(findings, domain.Finding{
			Type:        "arp",
			Description: fmt.Sprintf("%s is on-link at %s via %s", addr, mac, iface.Name),
			Severity:    domain.LevelLow,
			Confidence:  domain.LevelHigh,
			Metadata:    map[string]any{"source": "arp", "mac": mac.String(), "interface": iface.Name},
		})
	}
	return nil, findings, nil
}

func onLink(targets []domain.Target, nets []netip.Prefix) []netip.Addr {
	seen := map[netip.Addr]bool{}
	var out []netip.Addr
	for _, t := range targets {
		addr, err := netip.ParseAddr(t.IP)
		if err != nil || !addr.Is4() || seen[addr] {
			continue
		}
		seen[addr] = true
		for _, p := range nets {
			if p.Contains(addr) {
				out = append(out, addr)
				break
			}
		}
	}
	return out
}

func (n *Neighbors) subnets(iface *net.Interface) ([]netip.Prefix, error) {
	if n.prefixes != nil {
		return n.prefixes(iface)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("interface %s addresses: %w", iface.Name, err)
	}
	var out []netip.Prefix
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		p, err := netip.ParsePrefix(ipnet.String())
		if err != nil || !p.Addr().Is4() {
			continue
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func (n *Neighbors) dialer() func(iface *net.Interface) (arpClient, error) {
	if n.dial != nil {
		return n.dial
	}
	return func(iface *net.Interface) (arpClient, error) {
		c, err := arp.Dial(iface)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (n *Neighbors) logger() *log.Entry {
	if n.Log == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return n.Log
}
