package ftp

import (
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockServer scripts server replies on a real TCP connection.
// Commands without a handler get a default reply.
type mockServer struct {
	listener net.Listener
	addr     string

	// greeting is sent on connect
	greeting string

	// handlers maps an upper-cased command to its scripted reply.
	// Set them before start.
	handlers map[string]func(conn *textproto.Conn, args string)

	// dataListener serves passive data connections. The default EPSV
	// handler points the client at it.
	dataListener net.Listener

	mu       sync.Mutex
	received []string

	done chan struct{}
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dl, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		l.Close()
		t.Fatal(err)
	}

	return &mockServer{
		listener:     l,
		addr:         l.Addr().String(),
		greeting:     "220 Service ready",
		handlers:     make(map[string]func(*textproto.Conn, string)),
		dataListener: dl,
		done:         make(chan struct{}),
	}
}

func (s *mockServer) start(t *testing.T) {
	t.Helper()

	go s.serve()
	t.Cleanup(s.stop)
}

func (s *mockServer) serve() {
	defer close(s.done)

	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	fmt.Fprintf(conn, "%s\r\n", s.greeting)

	text := textproto.NewConn(conn)
	defer text.Close()

	for {
		line, err := text.ReadLine()
		if err != nil {
			return
		}

		cmd, args, _ := strings.Cut(line, " ")
		cmd = strings.ToUpper(cmd)

		s.mu.Lock()
		s.received = append(s.received, line)
		s.mu.Unlock()

		if handler, ok := s.handlers[cmd]; ok {
			handler(text, args)
			continue
		}

		switch cmd {
		case "USER":
			_ = text.PrintfLine("331 User name okay, need password.")
		case "PASS":
			_ = text.PrintfLine("230 User logged in, proceed.")
		case "TYPE", "NOOP":
			_ = text.PrintfLine("200 Command okay.")
		case "EPSV":
			_, port, _ := net.SplitHostPort(s.dataListener.Addr().String())
			_ = text.PrintfLine("229 Entering Extended Passive Mode (|||%s|)", port)
		case "QUIT":
			_ = text.PrintfLine("221 Service closing control connection.")
			return
		default:
			_ = text.PrintfLine("502 Command not implemented.")
		}
	}
}

func (s *mockServer) stop() {
	s.listener.Close()
	s.dataListener.Close()
	<-s.done
}

// commands returns the command lines received so far.
func (s *mockServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// count returns how many received commands start with verb.
func (s *mockServer) count(verb string) int {
	n := 0
	for _, line := range s.commands() {
		if cmd, _, _ := strings.Cut(line, " "); cmd == verb {
			n++
		}
	}
	return n
}

// login dials the server and logs in. The client is closed on cleanup.
func (s *mockServer) login(t *testing.T, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{WithTimeout(2 * time.Second)}, opts...)
	c, err := Dial(s.addr, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Quit() })

	if err := c.Login("anonymous", "anonymous@"); err != nil {
		t.Fatal(err)
	}
	return c
}

// sendLines returns a handler that transfers lines over the passive data
// connection, framed by 150 and 226 replies.
func (s *mockServer) sendLines(t *testing.T, lines ...string) func(*textproto.Conn, string) {
	return func(c *textproto.Conn, _ string) {
		_ = c.PrintfLine("150 Opening data connection.")

		dconn, err := s.dataListener.Accept()
		if err != nil {
			t.Errorf("mock server failed to accept data conn: %v", err)
			return
		}
		for _, line := range lines {
			fmt.Fprintf(dconn, "%s\r\n", line)
		}
		dconn.Close()

		_ = c.PrintfLine("226 Transfer complete.")
	}
}

// sendLinesCompleted is like sendLines but skips the 150. Some servers
// answer a short listing with the 226 alone.
func (s *mockServer) sendLinesCompleted(t *testing.T, lines ...string) func(*textproto.Conn, string) {
	return func(c *textproto.Conn, _ string) {
		dconn, err := s.dataListener.Accept()
		if err != nil {
			t.Errorf("mock server failed to accept data conn: %v", err)
			return
		}
		for _, line := range lines {
			fmt.Fprintf(dconn, "%s\r\n", line)
		}
		dconn.Close()

		_ = c.PrintfLine("226 Transfer complete.")
	}
}

// refuseData returns a handler that accepts the pending data connection,
// drops it, and rejects the command.
func (s *mockServer) refuseData(reply string) func(*textproto.Conn, string) {
	return func(c *textproto.Conn, _ string) {
		if dconn, err := s.dataListener.Accept(); err == nil {
			dconn.Close()
		}
		_ = c.PrintfLine("%s", reply)
	}
}

// reply returns a handler that always sends the same reply.
func reply(line string) func(*textproto.Conn, string) {
	return func(c *textproto.Conn, _ string) {
		_ = c.PrintfLine("%s", line)
	}
}
