package health

import (
	"bufio"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// redisPing is the exact RESP frame the prober sends, and redisPong the
// exact first bytes a healthy Redis answers with.
const (
	redisPing = "*1\r\n$4\r\nPING\r\n"
	redisPong = "+PONG\r\n"
)

// probe dispatches to the wire-level check matching cfg.Kind. Every probe
// owns its own dial and deadline; the scheduler never blocks on one.
func (c *Checker) probe(b *backendTarget) bool {
	switch c.cfg.Kind {
	case ProbeHTTP:
		return c.probeHTTP(b, false)
	case ProbeHTTPS:
		return c.probeHTTP(b, true)
	case ProbeMySQL:
		return c.probeMySQL(b)
	case ProbePostgres:
		return c.probePostgres(b)
	case ProbeRedis:
		return c.probeRedis(b)
	default:
		return c.probeTCP(b)
	}
}

func (c *Checker) dial(b *backendTarget) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", b.backend.Addr(), c.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	return conn, nil
}

func (c *Checker) probeTCP(b *backendTarget) bool {
	conn, err := c.dial(b)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// probeHTTP sends the OPTIONS liveness request and accepts either a status
// in [200,400) or one of the explicitly configured expected codes.
func (c *Checker) probeHTTP(b *backendTarget, useTLS bool) bool {
	conn, err := c.dial(b)
	if err != nil {
		return false
	}
	defer conn.Close()

	if useTLS {
		var tcfg *tls.Config
		if c.cfg.TLS != nil {
			tcfg = c.cfg.TLS.New().TlsConfig(b.backend.Host)
		} else {
			tcfg = &tls.Config{ServerName: b.backend.Host}
		}
		if c.cfg.TLSSkipVerify {
			tcfg.InsecureSkipVerify = true
		}
		tc := tls.Client(conn, tcfg)
		if err := tc.Handshake(); err != nil {
			return false
		}
		conn = tc
	}

	uri := c.cfg.HTTPPath
	if uri == "" {
		uri = "/"
	}
	req := "OPTIONS " + uri + " HTTP/1.1\r\n" +
		"Host: " + b.backend.Host + "\r\n" +
		"User-Agent: UltraBalancer/1.0\r\n" +
		"Connection: close\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		return false
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return false
	}
	return c.acceptStatusLine(line)
}

// acceptStatusLine parses "HTTP/1.x NNN ..." and applies the configured
// expectation, defaulting to the [200,400) window.
func (c *Checker) acceptStatusLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return false
	}
	if len(c.cfg.ExpectStatus) > 0 {
		for _, want := range c.cfg.ExpectStatus {
			if code == want {
				return true
			}
		}
		return false
	}
	return code >= 200 && code < 400
}

// probeMySQL passively reads the server's initial handshake: a packet
// header carrying a 24-bit little-endian length of at least 4, sequence
// number 0, then a protocol version byte of 9 or 10.
func (c *Checker) probeMySQL(b *backendTarget) bool {
	conn, err := c.dial(b)
	if err != nil {
		return false
	}
	defer conn.Close()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return false
	}
	length := int(buf[0]) | int(buf[1])<<8 | int(buf[2])<<16
	seq := buf[3]
	protocol := buf[4]
	return length >= 4 && seq == 0 && (protocol == 9 || protocol == 10)
}

// probePostgres treats TCP readiness as sufficient by default. A richer
// lag-aware mode runs through the injected LagProber (wired by the CLI
// against the real driver) which both proves the server answers queries
// and feeds ReplicationLagMS for read routing.
func (c *Checker) probePostgres(b *backendTarget) bool {
	if c.lagProber != nil {
		ms, err := c.lagProber(b.backend)
		if err != nil {
			return false
		}
		b.backend.SetReplicationLagMS(ms)
		return true
	}
	return c.probeTCP(b)
}

// probeRedis sends one PING frame and requires the answer to start with
// exactly +PONG\r\n.
func (c *Checker) probeRedis(b *backendTarget) bool {
	conn, err := c.dial(b)
	if err != nil {
		return false
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(redisPing)); err != nil {
		return false
	}
	buf := make([]byte, len(redisPong))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return false
	}
	return string(buf) == redisPong
}

// ReplicationLagQuery is the statement a lag prober runs against a
// replica to measure how far it trails its primary, in milliseconds.
const ReplicationLagQuery = "SELECT EXTRACT(EPOCH FROM (now() - pg_last_xact_replay_timestamp())) * 1000"
