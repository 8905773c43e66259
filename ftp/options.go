package ftp

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gonzalop/ftptree/internal/ratelimit"
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithTimeout sets the timeout for connecting and for every read or write
// on the control and data connections.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.timeout = timeout
		return nil
	}
}

// WithIdleTimeout sends NOOP whenever the connection has been idle for
// timeout, to keep servers from dropping it between long operations.
// Zero disables the keep-alive.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.idleTimeout = timeout
		return nil
	}
}

// WithLogger enables debug logging using the provided logger.
// All FTP commands and responses will be logged at debug level.
//
// Example:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	client, _ := ftp.Dial("ftp.example.com:21", ftp.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithDialer sets a custom net.Dialer for the control and data connections.
func WithDialer(dialer *net.Dialer) Option {
	return func(c *Client) error {
		c.dialer = dialer
		return nil
	}
}

// WithActiveMode makes the server connect back to the client for data
// (PORT/EPRT) instead of the default passive mode (EPSV/PASV).
func WithActiveMode() Option {
	return func(c *Client) error {
		c.activeMode = true
		return nil
	}
}

// WithDisableEPSV skips EPSV and always uses PASV in passive mode.
func WithDisableEPSV() Option {
	return func(c *Client) error {
		c.disableEPSV = true
		return nil
	}
}

// WithCommandRate limits the control channel to perSecond commands per
// second. Operations like DirSize issue one SIZE per file, which some
// servers treat as abuse when sent back to back.
func WithCommandRate(perSecond float64) Option {
	return func(c *Client) error {
		if perSecond < 0 {
			return fmt.Errorf("command rate must not be negative: %v", perSecond)
		}
		c.limiter = ratelimit.New(perSecond)
		return nil
	}
}
