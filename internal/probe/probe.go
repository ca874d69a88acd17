// Package probe answers whether a target is worth a connection attempt. A
// probe resolves the target and checks basic connectivity; it reports a
// verdict, never an error, so an unreachable host is an ordinary result.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Probe methods reported in Result.Method.
const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
)

// Config controls how targets are probed. ICMP echo is tried first when
// enabled; a TCP dial against Port covers networks that filter ICMP.
type Config struct {
	ICMPEnabled bool
	Privileged  bool
	Packets     int
	Port        int
	Timeout     time.Duration
}

// Result is the outcome of one reachability probe.
type Result struct {
	Addr      string // resolved address, empty when resolution failed
	Reachable bool
	Method    string
	RTT       time.Duration
}

// Prober performs reachability checks ahead of session connects.
type Prober struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a prober. Zero-value config fields get sane defaults.
func New(cfg Config, logger *slog.Logger) *Prober {
	if cfg.Packets <= 0 {
		cfg.Packets = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{cfg: cfg, logger: logger}
}

// Probe resolves host and checks connectivity. It never returns an error; a
// host that cannot be resolved or contacted simply yields Reachable false.
func (p *Prober) Probe(ctx context.Context, host string) Result {
	var res Result

	ip, err := p.resolve(ctx, host)
	if err != nil {
		p.logger.DebugContext(ctx, "Target did not resolve",
			slog.String("host", host),
			slog.String("error", err.Error()),
		)
		return res
	}
	res.Addr = ip.String()

	if p.cfg.ICMPEnabled {
		if rtt, ok := p.ping(ctx, res.Addr); ok {
			res.Reachable = true
			res.Method = MethodICMP
			res.RTT = rtt
			return res
		}
	}

	if rtt, ok := p.dial(res.Addr); ok {
		res.Reachable = true
		res.Method = MethodTCP
		res.RTT = rtt
		return res
	}

	p.logger.DebugContext(ctx, "Target unreachable",
		slog.String("host", host),
		slog.String("addr", res.Addr),
	)
	return res
}

// resolve turns host into an IP, preferring IPv4. Literal addresses skip the
// resolver entirely.
func (p *Prober) resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return addrs[0].IP, nil
}

// ping sends ICMP echo requests and reports whether any reply came back.
func (p *Prober) ping(ctx context.Context, addr string) (time.Duration, bool) {
	pr := probing.New(addr)
	if err := pr.Resolve(); err != nil {
		return 0, false
	}

	pr.RecordRtts = false
	pr.Count = p.cfg.Packets
	pr.Timeout = p.cfg.Timeout
	if p.cfg.Packets > 1 {
		pr.Interval = p.cfg.Timeout / time.Duration(p.cfg.Packets)
	}
	pr.SetPrivileged(p.cfg.Privileged)
	pr.SetLogger(nil)

	if err := pr.RunWithContext(ctx); err != nil {
		p.logger.DebugContext(ctx, "ICMP probe failed",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	stats := pr.Statistics()
	return stats.AvgRtt, stats.PacketsRecv > 0
}

// dial attempts a plain TCP connection to the configured port.
func (p *Prober) dial(addr string) (time.Duration, bool) {
	started := time.Now()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, strconv.Itoa(p.cfg.Port)), p.cfg.Timeout)
	if err != nil {
		return 0, false
	}
	conn.Close()
	return time.Since(started), true
}
