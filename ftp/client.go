package ftp

import (
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gonzalop/ftptree/internal/ratelimit"
)

// Client is one FTP control connection. It is safe to send commands from
// several goroutines, but a listing in progress holds the data channel, so
// callers that walk trees concurrently should use one Client per goroutine.
type Client struct {
	// conn is the control connection
	conn net.Conn

	// text frames commands and multi-line replies on conn
	text *textproto.Conn

	// timeout applies to dialing and to every read or write
	timeout time.Duration

	// idleTimeout triggers a NOOP when no command was sent for that long.
	// Zero disables the keep-alive.
	idleTimeout time.Duration

	logger *slog.Logger
	dialer *net.Dialer

	host string
	port string

	// features caches the FEAT reply
	features map[string]string

	activeMode  bool
	disableEPSV bool

	// currentType avoids resending the same TYPE command
	currentType string

	// limiter paces commands; nil means unlimited
	limiter *ratelimit.Limiter

	// mu guards lastCommand and activeDataConn, and serializes commands
	mu          sync.Mutex
	lastCommand time.Time

	quitChan       chan struct{}
	activeDataConn net.Conn
}

// Dial connects to an FTP server at addr ("host:port") and reads the
// greeting. The session is not logged in yet.
//
// Example:
//
//	client, err := ftp.Dial("ftp.example.com:21", ftp.WithTimeout(10*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
//
//	if err := client.Login("anonymous", "anonymous@"); err != nil {
//	    log.Fatal(err)
//	}
func Dial(addr string, options ...Option) (*Client, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	c := &Client{
		host:    host,
		port:    port,
		timeout: 30 * time.Second,
		dialer:  &net.Dialer{},
		logger:  slog.New(slog.DiscardHandler),
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	c.dialer.Timeout = c.timeout

	if err := c.connect(); err != nil {
		return nil, err
	}

	c.lastCommand = time.Now()
	c.startKeepAlive()

	return c, nil
}

// Connect dials and logs in using an ftp:// URL of the form
// ftp://[user:password@]host[:port][/path]. Without credentials it logs in
// as anonymous. A path, when present, becomes the working directory.
func Connect(urlStr string, options ...Option) (*Client, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "ftp") {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	port := u.Port()
	if port == "" {
		port = "21"
	}

	c, err := Dial(net.JoinHostPort(u.Hostname(), port), options...)
	if err != nil {
		return nil, err
	}

	user := u.User.Username()
	pass, _ := u.User.Password()
	if user == "" {
		user = "anonymous"
		pass = "anonymous@"
	}

	if err := c.Login(user, pass); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("login failed: %w", err)
	}

	if u.Path != "" && u.Path != "/" {
		if err := c.ChangeDir(u.Path); err != nil {
			_ = c.Quit()
			return nil, fmt.Errorf("failed to change directory: %w", err)
		}
	}

	return c, nil
}

func (c *Client) connect() error {
	addr := net.JoinHostPort(c.host, c.port)
	c.logger.Debug("connecting to ftp server", "addr", addr)

	conn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.text = textproto.NewConn(conn)

	resp, err := c.readResponse()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	if resp.Code != 220 {
		conn.Close()
		return newProtocolError("CONNECT", resp)
	}

	return nil
}

// Login authenticates with USER and, when asked for it, PASS.
func (c *Client) Login(username, password string) error {
	resp, err := c.sendCommand("USER", username)
	if err != nil {
		return err
	}

	// 230: no password required
	if resp.Code == 230 {
		return nil
	}
	if resp.Code != 331 {
		return newProtocolError("USER", resp)
	}

	_, err = c.expectCode(230, "PASS", password)
	return err
}

// Quit sends QUIT and closes the connection. A listing in progress is
// aborted by closing its data connection.
func (c *Client) Quit() error {
	if c.conn == nil {
		return nil
	}

	if c.quitChan != nil {
		close(c.quitChan)
		c.quitChan = nil
	}

	c.mu.Lock()
	if c.activeDataConn != nil {
		c.activeDataConn.Close()
		c.activeDataConn = nil
	}
	c.mu.Unlock()

	// The connection is going away either way.
	_, _ = c.sendCommand("QUIT")

	return c.text.Close()
}

// Type sets the transfer type ("A" or "I"). SIZE depends on it: many
// servers refuse SIZE in ASCII mode.
func (c *Client) Type(transferType string) error {
	if c.currentType == transferType {
		return nil
	}

	if _, err := c.expectCode(200, "TYPE", transferType); err != nil {
		return err
	}
	c.currentType = transferType
	return nil
}

// Features returns the FEAT reply as a map of upper-cased feature names to
// their parameters. The result is cached for the life of the connection.
//
// Example:
//
//	feats, err := client.Features()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, ok := feats["SIZE"]; ok {
//	    fmt.Println("server reports file sizes")
//	}
func (c *Client) Features() (map[string]string, error) {
	if c.features != nil {
		return c.features, nil
	}

	resp, err := c.expectCode(211, "FEAT")
	if err != nil {
		return nil, err
	}

	c.features = parseFeatureLines(resp.Body())
	return c.features, nil
}

// InvalidateFeatures drops the cached FEAT reply so the next call to
// Features asks the server again.
func (c *Client) InvalidateFeatures() {
	c.features = nil
}

// parseFeatureLines turns FEAT body lines ("SIZE", "REST STREAM") into a
// map. Names are upper-cased; parameters are kept as sent.
func parseFeatureLines(lines []string) map[string]string {
	features := make(map[string]string)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name, params, _ := strings.Cut(line, " ")
		features[strings.ToUpper(name)] = strings.TrimSpace(params)
	}
	return features
}

// HasFeature reports whether FEAT listed feature. Any error reads as no.
func (c *Client) HasFeature(feature string) bool {
	feats, err := c.Features()
	if err != nil {
		return false
	}
	_, ok := feats[strings.ToUpper(feature)]
	return ok
}

// Syst returns the SYST reply text, e.g. "UNIX Type: L8".
func (c *Client) Syst() (string, error) {
	resp, err := c.expect2xx("SYST")
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// SiteHelp returns the body of the server's HELP reply: the list of
// commands it recognizes. With a command argument, the reply describes
// that command instead.
func (c *Client) SiteHelp(command string) ([]string, error) {
	var (
		resp *Response
		err  error
	)
	if command == "" {
		resp, err = c.expect2xx("HELP")
	} else {
		resp, err = c.expect2xx("HELP", command)
	}
	if err != nil {
		return nil, err
	}

	if body := resp.Body(); len(body) > 0 {
		return body, nil
	}
	return []string{resp.Message}, nil
}

// Noop sends NOOP. The keep-alive loop uses it, and so can callers that
// pause between operations.
func (c *Client) Noop() error {
	_, err := c.expect2xx("NOOP")
	return err
}
