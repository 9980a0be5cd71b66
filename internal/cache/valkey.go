package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// ValkeyProvider speaks the minimal subset of RESP2 needed for GET/SET/DEL. Each call
// opens its own connection so the provider is safe for concurrent use without a pool.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// NewValkeyProvider validates cfg and pings the server so bad credentials fail at startup.
func NewValkeyProvider(ctx context.Context, cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	applyValkeyDefaults(&cfg)

	p := &ValkeyProvider{cfg: cfg}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	reply, err := p.do(pingCtx, "PING")
	if err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	if reply.kind != respSimple || string(reply.data) != "PONG" {
		return nil, fmt.Errorf("valkey ping: unexpected reply %q", reply.data)
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := p.do(ctx, "GET", p.key(key))
	if err != nil {
		return nil, err
	}
	switch reply.kind {
	case respNil:
		return nil, ErrCacheMiss
	case respBulk:
		return reply.data, nil
	default:
		return nil, fmt.Errorf("valkey GET: unexpected reply type %q", reply.kind)
	}
}

// Set stores bytes with a millisecond TTL when ttl is positive.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{p.key(key), string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	reply, err := p.do(ctx, "SET", args...)
	if err != nil {
		return err
	}
	if reply.kind != respSimple || string(reply.data) != "OK" {
		return fmt.Errorf("valkey SET: unexpected reply %q", reply.data)
	}
	return nil
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, "DEL", p.key(key))
	return err
}

// Close is a no-op; connections are not retained between calls.
func (p *ValkeyProvider) Close() error { return nil }

func (p *ValkeyProvider) key(k string) string {
	return p.cfg.KeyPrefix + k
}

func (p *ValkeyProvider) do(ctx context.Context, command string, args ...string) (respReply, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return respReply{}, err
		}
		reply, err := p.roundTrip(ctx, command, args)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			return respReply{}, ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return respReply{}, lastErr
}

func (p *ValkeyProvider) roundTrip(ctx context.Context, command string, args []string) (respReply, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return respReply{}, err
	}
	defer conn.Close()

	rw := &respConn{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
		cfg:  p.cfg,
	}
	if err := p.handshake(rw); err != nil {
		return respReply{}, err
	}
	if err := rw.send(append([]string{command}, args...)...); err != nil {
		return respReply{}, err
	}
	return rw.receive()
}

func (p *ValkeyProvider) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}
	if !p.cfg.TLS {
		return dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	host, _, err := net.SplitHostPort(p.cfg.Addr)
	if err != nil {
		host = p.cfg.Addr
	}
	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}}
	return tlsDialer.DialContext(ctx, "tcp", p.cfg.Addr)
}

func (p *ValkeyProvider) handshake(rw *respConn) error {
	if p.cfg.Password != "" {
		cmd := []string{"AUTH", p.cfg.Password}
		if p.cfg.Username != "" {
			cmd = []string{"AUTH", p.cfg.Username, p.cfg.Password}
		}
		if err := rw.expectOK(cmd...); err != nil {
			return fmt.Errorf("valkey auth: %w", err)
		}
	}
	if p.cfg.DB > 0 {
		if err := rw.expectOK("SELECT", strconv.Itoa(p.cfg.DB)); err != nil {
			return fmt.Errorf("valkey select: %w", err)
		}
	}
	return nil
}

type respKind string

const (
	respSimple  respKind = "+"
	respBulk    respKind = "$"
	respInteger respKind = ":"
	respNil     respKind = "_"
)

type respReply struct {
	kind respKind
	data []byte
}

type respConn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	cfg  ValkeyConfig
}

func (c *respConn) send(parts ...string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	fmt.Fprintf(c.w, "*%d\r\n", len(parts))
	for _, part := range parts {
		fmt.Fprintf(c.w, "$%d\r\n%s\r\n", len(part), part)
	}
	return c.w.Flush()
}

func (c *respConn) expectOK(parts ...string) error {
	if err := c.send(parts...); err != nil {
		return err
	}
	reply, err := c.receive()
	if err != nil {
		return err
	}
	if reply.kind != respSimple || !strings.EqualFold(string(reply.data), "OK") {
		return fmt.Errorf("unexpected reply %q", reply.data)
	}
	return nil
}

func (c *respConn) receive() (respReply, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return respReply{}, err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return respReply{}, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return respReply{}, errors.New("empty RESP line")
	}

	payload := line[1:]
	switch line[0] {
	case '+':
		return respReply{kind: respSimple, data: []byte(payload)}, nil
	case '-':
		return respReply{}, errors.New(payload)
	case ':':
		return respReply{kind: respInteger, data: []byte(payload)}, nil
	case '$':
		size, err := strconv.Atoi(payload)
		if err != nil {
			return respReply{}, fmt.Errorf("bulk length: %w", err)
		}
		if size < 0 {
			return respReply{kind: respNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(c.r, buf); err != nil {
			return respReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return respReply{}, errors.New("invalid bulk termination")
		}
		return respReply{kind: respBulk, data: buf[:size]}, nil
	default:
		return respReply{}, fmt.Errorf("unexpected RESP prefix %q", line[0])
	}
}

func applyValkeyDefaults(cfg *ValkeyConfig) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 25 * time.Millisecond
}

func retryable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
