// Package dnsrecon enriches mission targets with reverse DNS names.
package dnsrecon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"
)

type Resolver struct {
	// Server is host:port. Empty reads /etc/resolv.conf.
	Server string
	client *dns.Client
	log    *log.Entry
}

func New(opts config.DNSOpts, l *log.Entry) *Resolver {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if l == nil {
		l = log.NewEntry(log.StandardLogger())
	}
	return &Resolver{Server: opts.Server, client: &dns.Client{Timeout: timeout}, log: l}
}

func (r *Resolver) Name() string { return "dns" }

// Enrich annotates targets with their PTR name. Hosts without a PTR record
// are skipped; only a missing resolver is an error.
func (r *Resolver) Enrich(ctx context.Context, targets []domain.Target) ([]domain.Target, []domain.Finding, error) {
	server, err := r.server()
	if err != nil {
		return nil, nil, err
	}

	names := map[string]string{}
	var findings []domain.Finding
	for _, t := range targets {
		if _, done := names[t.IP]; done || net.ParseIP(t.IP) == nil {
			continue
		}
		name, err := r.lookupPTR(ctx, server, t.IP)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			r.log.WithFields(log.Fields{
				"ip":    t.IP,
				"error": err,
			}).Debug("Reverse lookup failed")
			names[t.IP] = ""
			continue
		}
		names[t.IP] = name
		findings = append(findings, domain.Finding{
			Type:        "dns",
			Description: fmt.Sprintf("%s resolves to %s", t.IP, name),
			Severity:    domain.LevelLow,
			Confidence:  domain.LevelMedium,
			Metadata:    map[string]any{"source": "dns", "ptr": name},
		})
	}

	var out []domain.Target
	for _, t := range targets {
		if name := names[t.IP]; name != "" {
			out = append(out, domain.Target{IP: t.IP, Port: t.Port, Annotation: name})
		}
	}
	return out, findings, nil
}

func (r *Resolver) lookupPTR(ctx context.Context, server, ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}
	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return "", err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", errors.New("no PTR record")
}

func (r *Resolver) server() (string, error) {
	if r.Server != "" {
		return r.Server, nil
	}
	cc, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return "", fmt.Errorf("read resolv.conf: %w", err)
	}
	if len(cc.Servers) == 0 {
		return "", errors.New("no nameserver configured")
	}
	return net.JoinHostPort(cc.Servers[0], cc.Port), nil
}
