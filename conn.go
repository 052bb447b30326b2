package faktory

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
)

const protocolVersion = 2

// dialAttempts bounds the reconnect loop inside a single checkout; the pool
// itself never retries.
const dialAttempts = 3

// serverHello is the greeting payload the server sends on connect
// (+HI {"v":2,...}). Salt and Iterations are present only when the server
// requires a password.
type serverHello struct {
	Version    int    `json:"v"`
	Salt       string `json:"s,omitempty"`
	Iterations int    `json:"i,omitempty"`
}

// clientHello is the HELLO payload identifying this client.
type clientHello struct {
	Hostname     string   `json:"hostname"`
	WID          string   `json:"wid"`
	PID          int      `json:"pid"`
	Labels       []string `json:"labels"`
	Version      int      `json:"v"`
	PasswordHash string   `json:"pwdhash,omitempty"`
}

// clientConn is the shipped Conn implementation: a single TCP channel
// speaking the server's line-oriented text protocol. It performs the connect
// handshake once and then serves one command round-trip per Call. It holds no
// locking of its own; exclusivity is the pool's job.
type clientConn struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer
	wid  string
}

type dialConfig struct {
	addr     string
	password string
	timeout  time.Duration
	labels   []string
}

// netDialer returns the Dialer the pool uses when no custom dialer is
// configured. It retries transient dial failures with jittered backoff, up to
// dialAttempts, but never retries a server rejection (bad password, protocol
// mismatch).
func netDialer(cfg dialConfig) Dialer {
	return func(ctx context.Context) (Conn, error) {
		b := &backoff.Backoff{Min: 50 * time.Millisecond, Max: time.Second, Jitter: true}
		var lastErr error
		for attempt := 0; attempt < dialAttempts; attempt++ {
			conn, err := dialConn(ctx, cfg)
			if err == nil {
				return conn, nil
			}
			lastErr = err
			var pe *ProtocolError
			if errors.As(err, &pe) {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.Duration()):
			}
		}
		return nil, lastErr
	}
}

func dialConn(ctx context.Context, cfg dialConfig) (*clientConn, error) {
	d := net.Dialer{Timeout: cfg.timeout}
	raw, err := d.DialContext(ctx, "tcp", cfg.addr)
	if err != nil {
		return nil, errors.Wrapf(err, "faktory: dial %s", cfg.addr)
	}
	c := &clientConn{
		conn: raw,
		br:   bufio.NewReader(raw),
		bw:   bufio.NewWriter(raw),
		wid:  uuid.NewString(),
	}
	if cfg.timeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(cfg.timeout))
	}
	if err := c.handshake(cfg); err != nil {
		_ = raw.Close()
		return nil, err
	}
	_ = raw.SetDeadline(time.Time{})
	return c, nil
}

// handshake consumes the +HI greeting and answers with HELLO, solving the
// password challenge when the greeting carries a salt.
func (c *clientConn) handshake(cfg dialConfig) error {
	line, err := c.readLine()
	if err != nil {
		return errors.Wrap(err, "faktory: read greeting")
	}
	if !strings.HasPrefix(line, "+HI ") {
		return errors.Errorf("faktory: unexpected greeting %q", line)
	}
	var hi serverHello
	if err := json.Unmarshal([]byte(line[len("+HI "):]), &hi); err != nil {
		return errors.Wrap(err, "faktory: parse greeting")
	}
	if hi.Version > protocolVersion {
		return errors.Errorf("faktory: server speaks protocol v%d, this client speaks v%d", hi.Version, protocolVersion)
	}

	hostname, _ := os.Hostname()
	hello := clientHello{
		Hostname: hostname,
		WID:      c.wid,
		PID:      os.Getpid(),
		Labels:   cfg.labels,
		Version:  protocolVersion,
	}
	if hi.Salt != "" {
		if cfg.password == "" {
			return errors.New("faktory: server requires a password and none is configured")
		}
		hello.PasswordHash = hashPassword(cfg.password, hi.Salt, hi.Iterations)
	}
	body, err := json.Marshal(hello)
	if err != nil {
		return errors.Wrap(err, "faktory: marshal HELLO")
	}
	if err := c.writeCommand(Command{Verb: "HELLO", Body: body}); err != nil {
		return err
	}
	_, err = c.readReply("HELLO")
	return err
}

// hashPassword computes the iterated sha256 challenge response:
// sha256(password+salt), re-hashed iterations-1 further times, hex-encoded.
func hashPassword(password, salt string, iterations int) string {
	sum := sha256.Sum256([]byte(password + salt))
	for i := 1; i < iterations; i++ {
		sum = sha256.Sum256(sum[:])
	}
	return hex.EncodeToString(sum[:])
}

// Call sends one command and blocks for its reply. The context deadline, when
// set, bounds the whole round-trip via the socket deadline; there is no way
// to abandon a round-trip midway without tearing down the connection.
func (c *clientConn) Call(ctx context.Context, cmd Command) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}
	if err := c.writeCommand(cmd); err != nil {
		return nil, err
	}
	return c.readReply(cmd.Verb)
}

// Close sends a best-effort END and tears down the socket.
func (c *clientConn) Close() error {
	_ = c.conn.SetDeadline(time.Now().Add(time.Second))
	_, _ = c.bw.WriteString("END\r\n")
	_ = c.bw.Flush()
	return c.conn.Close()
}

func (c *clientConn) writeCommand(cmd Command) error {
	if _, err := c.bw.WriteString(cmd.Verb); err != nil {
		return errors.Wrapf(err, "faktory: write %s", cmd.Verb)
	}
	if len(cmd.Body) > 0 {
		if err := c.bw.WriteByte(' '); err != nil {
			return errors.Wrapf(err, "faktory: write %s", cmd.Verb)
		}
		if _, err := c.bw.Write(cmd.Body); err != nil {
			return errors.Wrapf(err, "faktory: write %s", cmd.Verb)
		}
	}
	if _, err := c.bw.WriteString("\r\n"); err != nil {
		return errors.Wrapf(err, "faktory: write %s", cmd.Verb)
	}
	if err := c.bw.Flush(); err != nil {
		return errors.Wrapf(err, "faktory: write %s", cmd.Verb)
	}
	return nil
}

// readReply decodes one server reply:
//
//	+OK          bare acknowledgement, nil payload
//	$N\r\n<N>    N-byte payload
//	$-1          nil payload
//	-ERR msg     *ProtocolError
func (c *clientConn) readReply(verb string) ([]byte, error) {
	line, err := c.readLine()
	if err != nil {
		return nil, errors.Wrapf(err, "faktory: read %s reply", verb)
	}
	if line == "" {
		return nil, errors.Errorf("faktory: empty %s reply", verb)
	}
	switch line[0] {
	case '+':
		return nil, nil
	case '-':
		return nil, &ProtocolError{Verb: verb, Message: strings.TrimSpace(strings.TrimPrefix(line[1:], "ERR "))}
	case '$':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return nil, errors.Errorf("faktory: malformed %s reply %q", verb, line)
		}
		if n < 0 {
			return nil, nil
		}
		payload := make([]byte, n+2)
		if _, err := io.ReadFull(c.br, payload); err != nil {
			return nil, errors.Wrapf(err, "faktory: read %s payload", verb)
		}
		return payload[:n], nil
	default:
		return nil, errors.Errorf("faktory: unexpected %s reply %q", verb, line)
	}
}

func (c *clientConn) readLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
