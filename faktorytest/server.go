// Package faktorytest provides an in-process fake job server for testing
// code built on the faktory client.
//
// The fake speaks the real wire protocol over a loopback listener, records
// every command it receives, and answers with scripted or default replies.
// No real job server is needed:
//
//	func TestNightlyReport(t *testing.T) {
//	    srv := faktorytest.NewServer(t)
//	    client := srv.Client(t)
//	    // use client in production code under test
//	    faktorytest.AssertCommand(t, srv, "BATCH NEW")
//	}
package faktorytest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	faktory "github.com/criticalbh/faktory-worker"
)

// verbs the fake recognizes, longest first so two-word verbs match before
// their one-word prefixes.
var knownVerbs = []string{
	"BATCH COMMIT",
	"BATCH STATUS",
	"QUEUE RESUME",
	"QUEUE PAUSE",
	"BATCH OPEN",
	"BATCH NEW",
	"HELLO",
	"PUSH",
	"INFO",
	"END",
}

// Server is a fake job server bound to a loopback address.
type Server struct {
	ln       net.Listener
	password string

	mu       sync.Mutex
	commands []faktory.Command
	statuses map[string]map[string]any
	failNext map[string]string
	delays   map[string]time.Duration
	nextBid  int
	dials    int
}

// Option configures the fake server.
type Option func(*Server)

// WithPassword makes the fake require the connect password challenge.
func WithPassword(password string) Option {
	return func(s *Server) {
		s.password = password
	}
}

// NewServer starts a fake server and shuts it down when the test finishes.
func NewServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("faktorytest: listen: %v", err)
	}
	s := &Server{
		ln:       ln,
		statuses: make(map[string]map[string]any),
		failNext: make(map[string]string),
		delays:   make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

// Addr returns the address clients should dial.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Client creates a faktory.Client connected to the fake.
func (s *Server) Client(t *testing.T, opts ...faktory.ClientOption) *faktory.Client {
	t.Helper()
	if s.password != "" {
		opts = append([]faktory.ClientOption{faktory.WithPassword(s.password)}, opts...)
	}
	client, err := faktory.NewClient(s.Addr(), opts...)
	if err != nil {
		t.Fatalf("faktorytest: NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Commands returns every command received so far, handshake included.
func (s *Server) Commands() []faktory.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]faktory.Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// LastCommand returns the most recent command with the given verb.
func (s *Server) LastCommand(verb string) (faktory.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.commands) - 1; i >= 0; i-- {
		if s.commands[i].Verb == verb {
			return s.commands[i], true
		}
	}
	return faktory.Command{}, false
}

// Dials reports how many connections have completed the handshake.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// SetStatus scripts the BATCH STATUS reply for a bid.
func (s *Server) SetStatus(bid string, record map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[bid] = record
}

// FailNext makes the next command with the given verb fail with an -ERR
// reply carrying message.
func (s *Server) FailNext(verb, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[verb] = message
}

// Delay makes every command with the given verb stall before replying. Used
// to create pool contention in tests.
func (s *Server) Delay(verb string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[verb] = d
}

// AssertCommand fails the test unless the fake received a command with the
// given verb; it returns the most recent one.
func AssertCommand(t *testing.T, s *Server, verb string) faktory.Command {
	t.Helper()
	cmd, ok := s.LastCommand(verb)
	if !ok {
		t.Fatalf("faktorytest: expected a %s command, got none", verb)
	}
	return cmd
}

// RefuteCommand fails the test if the fake received any command with the
// given verb.
func RefuteCommand(t *testing.T, s *Server, verb string) {
	t.Helper()
	if cmd, ok := s.LastCommand(verb); ok {
		t.Fatalf("faktorytest: expected no %s command, got %+v", verb, cmd)
	}
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	hi := map[string]any{"v": 2}
	salt := ""
	if s.password != "" {
		salt = "fakesalt"
		hi["s"] = salt
		hi["i"] = 10
	}
	greeting, _ := json.Marshal(hi)
	fmt.Fprintf(bw, "+HI %s\r\n", greeting)
	bw.Flush()

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		verb, body := splitCommand(strings.TrimRight(line, "\r\n"))
		s.record(verb, body)

		if d := s.delayFor(verb); d > 0 {
			time.Sleep(d)
		}
		if msg := s.takeFailure(verb); msg != "" {
			fmt.Fprintf(bw, "-ERR %s\r\n", msg)
			bw.Flush()
			continue
		}

		switch verb {
		case "HELLO":
			if !s.checkHello(body, salt) {
				fmt.Fprintf(bw, "-ERR Invalid password\r\n")
				bw.Flush()
				return
			}
			s.mu.Lock()
			s.dials++
			s.mu.Unlock()
			fmt.Fprintf(bw, "+OK\r\n")
		case "BATCH NEW":
			bid := s.newBid()
			fmt.Fprintf(bw, "$%d\r\n%s\r\n", len(bid), bid)
		case "BATCH STATUS":
			record := s.statusFor(strings.TrimSpace(string(body)))
			payload, _ := json.Marshal(record)
			fmt.Fprintf(bw, "$%d\r\n%s\r\n", len(payload), payload)
		case "INFO":
			payload, _ := json.Marshal(map[string]any{"server": map[string]any{"description": "faktorytest"}})
			fmt.Fprintf(bw, "$%d\r\n%s\r\n", len(payload), payload)
		case "END":
			bw.Flush()
			return
		default:
			fmt.Fprintf(bw, "+OK\r\n")
		}
		bw.Flush()
	}
}

func (s *Server) record(verb string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := faktory.Command{Verb: verb}
	if body != nil {
		cmd.Body = append([]byte(nil), body...)
	}
	s.commands = append(s.commands, cmd)
}

func (s *Server) newBid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBid++
	return fmt.Sprintf("b-%04d", s.nextBid)
}

func (s *Server) statusFor(bid string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.statuses[bid]; ok {
		return record
	}
	return map[string]any{"bid": bid, "total": 0, "pending": 0, "failed": 0}
}

func (s *Server) delayFor(verb string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delays[verb]
}

func (s *Server) takeFailure(verb string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.failNext[verb]
	delete(s.failNext, verb)
	return msg
}

func (s *Server) checkHello(body []byte, salt string) bool {
	if s.password == "" {
		return true
	}
	var hello struct {
		PasswordHash string `json:"pwdhash"`
	}
	if err := json.Unmarshal(body, &hello); err != nil {
		return false
	}
	sum := sha256.Sum256([]byte(s.password + salt))
	for i := 1; i < 10; i++ {
		sum = sha256.Sum256(sum[:])
	}
	return hello.PasswordHash == hex.EncodeToString(sum[:])
}

func splitCommand(line string) (string, []byte) {
	for _, verb := range knownVerbs {
		if line == verb {
			return verb, nil
		}
		if strings.HasPrefix(line, verb+" ") {
			return verb, []byte(line[len(verb)+1:])
		}
	}
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i], []byte(line[i+1:])
	}
	return line, nil
}
