package probe

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func testProber(port int) *Prober {
	return New(Config{
		ICMPEnabled: false, // tests must not need raw sockets
		Port:        port,
		Timeout:     2 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestProbeReachableViaTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	p := testProber(port)

	res := p.Probe(context.Background(), "127.0.0.1")
	if !res.Reachable {
		t.Fatal("Probe() reported a listening port as unreachable")
	}
	if res.Method != MethodTCP {
		t.Errorf("Method = %q, want %q", res.Method, MethodTCP)
	}
	if res.Addr != "127.0.0.1" {
		t.Errorf("Addr = %q, want 127.0.0.1", res.Addr)
	}
}

func TestProbeClosedPortUnreachable(t *testing.T) {
	// Grab a free port, then close the listener so nothing answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	p := testProber(port)
	res := p.Probe(context.Background(), "127.0.0.1")
	if res.Reachable {
		t.Error("Probe() reported a closed port as reachable")
	}
	if res.Addr != "127.0.0.1" {
		t.Errorf("Addr = %q, resolution should still succeed", res.Addr)
	}
}

func TestProbeUnresolvableHost(t *testing.T) {
	p := testProber(22)

	res := p.Probe(context.Background(), "host.that.does.not.resolve.invalid")
	if res.Reachable {
		t.Error("Probe() reported an unresolvable host as reachable")
	}
	if res.Addr != "" {
		t.Errorf("Addr = %q, want empty for failed resolution", res.Addr)
	}
}

func TestResolveLiteralAddress(t *testing.T) {
	p := testProber(22)

	ip, err := p.resolve(context.Background(), "192.0.2.10")
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if ip.String() != "192.0.2.10" {
		t.Errorf("resolve() = %s, want 192.0.2.10", ip)
	}
}

func TestIdentifyDisabled(t *testing.T) {
	if _, ok := Identify("192.0.2.1", SNMPConfig{Enabled: false, Community: "public"}); ok {
		t.Error("Identify() ran while disabled")
	}
	if _, ok := Identify("192.0.2.1", SNMPConfig{Enabled: true}); ok {
		t.Error("Identify() ran without a community string")
	}
}
