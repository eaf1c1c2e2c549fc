package adb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// DefaultAddr is where the adb server listens unless told otherwise
const DefaultAddr = "127.0.0.1:5037"

var (
	// ErrDegradedStartup means no candidate executable could start the adb server.
	// Callers log it and keep going; the server may still come up later.
	ErrDegradedStartup = errors.New("adb server could not be started")

	// ErrProtocol is returned for malformed replies from the adb server
	ErrProtocol = errors.New("adb protocol error")
)

// Client speaks the adb host protocol over TCP. Every call opens its own
// connection, so a Client is safe for concurrent use.
type Client struct {
	Addr       string
	Candidates []string // executables tried by EnsureServerRunning

	dialer net.Dialer
}

// NewClient creates a client for the adb server at addr
func NewClient(addr string, candidates []string) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	return &Client{
		Addr:       addr,
		Candidates: candidates,
		dialer:     net.Dialer{Timeout: 5 * time.Second},
	}
}

// FailError carries the message of a FAIL reply
type FailError struct {
	Message string
}

func (e *FailError) Error() string {
	return "adb: " + e.Message
}

// dial opens a connection bound to ctx: the deadline is applied to the
// socket and cancellation closes it.
func (c *Client) dial(ctx context.Context) (net.Conn, func(), error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial adb server %s: %w", c.Addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	release := func() {
		stop()
		conn.Close()
	}
	return conn, release, nil
}

// request sends one length-prefixed service request and waits for OKAY
func request(conn net.Conn, service string) error {
	if _, err := fmt.Fprintf(conn, "%04x%s", len(service), service); err != nil {
		return fmt.Errorf("send %q: %w", service, err)
	}
	return readStatus(conn)
}

func readStatus(r io.Reader) error {
	status := make([]byte, 4)
	if _, err := io.ReadFull(r, status); err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	switch string(status) {
	case "OKAY":
		return nil
	case "FAIL":
		msg, err := readHexString(r)
		if err != nil {
			return fmt.Errorf("read failure message: %w", err)
		}
		return &FailError{Message: msg}
	default:
		return fmt.Errorf("%w: unexpected status %q", ErrProtocol, status)
	}
}

// readHexString reads a payload prefixed by a 4-digit hex length
func readHexString(r io.Reader) (string, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(string(header), 16, 16)
	if err != nil {
		return "", fmt.Errorf("%w: bad length %q", ErrProtocol, header)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", err
	}
	return string(body), nil
}

// hostQuery runs a host service that replies with one length-prefixed string
func (c *Client) hostQuery(ctx context.Context, service string) (string, error) {
	conn, release, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if err := request(conn, service); err != nil {
		return "", err
	}
	return readHexString(conn)
}

// transport opens a connection already switched to the given device
func (c *Client) transport(ctx context.Context, serial string) (net.Conn, func(), error) {
	conn, release, err := c.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := request(conn, "host:transport:"+serial); err != nil {
		release()
		return nil, nil, fmt.Errorf("select device %s: %w", serial, err)
	}
	return conn, release, nil
}

// Version returns the adb server protocol version
func (c *Client) Version(ctx context.Context) (int, error) {
	s, err := c.hostQuery(ctx, "host:version")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad version %q", ErrProtocol, s)
	}
	return int(v), nil
}

// Connect asks the server to attach a network device. The server's reply
// text is returned but not interpreted; callers confirm via ListDevices.
func (c *Client) Connect(ctx context.Context, host string, port int) (string, error) {
	return c.hostQuery(ctx, fmt.Sprintf("host:connect:%s:%d", host, port))
}

// State returns the transport state of one device (device, offline, ...)
func (c *Client) State(ctx context.Context, serial string) (string, error) {
	return c.hostQuery(ctx, "host-serial:"+serial+":get-state")
}

// Shell runs a command on the device and returns its combined output
func (c *Client) Shell(ctx context.Context, serial, command string) (string, error) {
	conn, release, err := c.transport(ctx, serial)
	if err != nil {
		return "", err
	}
	defer release()

	if err := request(conn, "shell:"+command); err != nil {
		return "", fmt.Errorf("shell %q: %w", command, err)
	}
	out, err := io.ReadAll(conn)
	if err != nil {
		return string(out), fmt.Errorf("read shell output: %w", err)
	}
	return string(out), nil
}
