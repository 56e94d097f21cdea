// Package nmapscan enriches mission targets with an nmap service scan.
package nmapscan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"

	nmap "github.com/Ullaakut/nmap/v3"
	log "github.com/sirupsen/logrus"
)

type Scanner struct {
	Ports   []string
	Timing  string
	Timeout time.Duration
	Log     *log.Entry
}

func New(opts config.NmapOpts, l *log.Entry) *Scanner {
	return &Scanner{Ports: opts.Ports, Timing: opts.Timing, Timeout: opts.Timeout, Log: l}
}

func (s *Scanner) Name() string { return "nmap" }

// Enrich scans every distinct host of targets and returns one target per
// open port, annotated with the detected service.
func (s *Scanner) Enrich(ctx context.Context, targets []domain.Target) ([]domain.Target, []domain.Finding, error) {
	hosts := uniqueHosts(targets)
	if len(hosts) == 0 {
		return nil, nil, nil
	}
	l := s.logger()

	opts := []nmap.Option{
		nmap.WithTargets(hosts...),
		nmap.WithDisabledDNSResolution(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithOpenOnly(),
		nmap.WithServiceInfo(),
		nmap.WithVersionLight(),
	}
	if len(s.Ports) != 0 {
		opts = append(opts, nmap.WithPorts(strings.Join(s.Ports, ",")))
	} else if ports := knownPorts(targets); ports != "" {
		opts = append(opts, nmap.WithPorts(ports))
	}
	if t, ok := timing(s.Timing); ok {
		opts = append(opts, nmap.WithTimingTemplate(t))
	} else if s.Timing != "" {
		l.Errorf("Wrong timing for scanner: %s", s.Timing)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	l.WithFields(log.Fields{
		"hosts": hosts,
		"ports": s.Ports,
	}).Info("Starting nmap scan")

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("run nmap: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		l.WithField("warnings", *warnings).Warn("Nmap scan produced warnings")
	}

	found, findings := fromRun(result)
	l.WithFields(log.Fields{
		"hosts":    len(result.Hosts),
		"services": len(found),
	}).Info("Nmap scan complete")
	return found, findings, nil
}

func fromRun(result *nmap.Run) ([]domain.Target, []domain.Finding) {
	if result == nil {
		return nil, nil
	}
	var (
		targets  []domain.Target
		findings []domain.Finding
	)
	for _, h := range result.Hosts {
		host := pickHostAddress(h)
		if host == "" {
			continue
		}
		for _, p := range h.Ports {
			if !strings.HasPrefix(strings.ToLower(p.State.State), "open") {
				continue
			}
			t := domain.Target{IP: host, Port: int(p.ID), Annotation: describe(p)}
			targets = append(targets, t)
			findings = append(findings, domain.Finding{
				Type:        "service",
				Description: fmt.Sprintf("%s/%s open: %s", t.Label(), p.Protocol, t.Annotation),
				Severity:    domain.LevelLow,
				Confidence:  domain.LevelHigh,
				Metadata: map[string]any{
					"source":   "nmap",
					"protocol": p.Protocol,
					"service":  p.Service.Name,
					"product":  p.Service.Product,
					"version":  p.Service.Version,
					"tunnel":   p.Service.Tunnel,
				},
			})
		}
	}
	return targets, findings
}

func describe(p nmap.Port) string {
	var parts []string
	name := p.Service.Name
	if p.Service.Tunnel == "ssl" && name != "" {
		name = "ssl/" + name
	}
	for _, s := range []string{name, p.Service.Product, p.Service.Version} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " ")
}

func pickHostAddress(h nmap.Host) string {
	for _, a := range h.Addresses {
		if a.AddrType == "ipv4" {
			return a.Addr
		}
	}
	for _, a := range h.Addresses {
		if a.AddrType == "ipv6" {
			return a.Addr
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}

func uniqueHosts(targets []domain.Target) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range targets {
		ip := strings.TrimSpace(t.IP)
		if ip == "" {
			continue
		}
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		out = append(out, ip)
	}
	return out
}

// knownPorts restricts the scan to the ports the work item names.
func knownPorts(targets []domain.Target) string {
	seen := map[int]struct{}{}
	var out []string
	for _, t := range targets {
		if t.Port <= 0 {
			return ""
		}
		if _, ok := seen[t.Port]; ok {
			continue
		}
		seen[t.Port] = struct{}{}
		out = append(out, fmt.Sprint(t.Port))
	}
	return strings.Join(out, ",")
}

func timing(name string) (nmap.Timing, bool) {
	switch strings.ToUpper(name) {
	case "T0":
		return nmap.TimingSlowest, true
	case "T1":
		return nmap.TimingSneaky, true
	case "T2":
		return nmap.TimingPolite, true
	case "T3":
		return nmap.TimingNormal, true
	case "T4":
		return nmap.TimingAggressive, true
	case "T5":
		return nmap.TimingFastest, true
	}
	return 0, false
}

func (s *Scanner) logger() *log.Entry {
	if s.Log == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return s.Log
}
