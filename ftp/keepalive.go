package ftp

import "time"

// startKeepAlive sends NOOP whenever the control connection has been idle
// for idleTimeout. Long client-side walks spend most of their time on the
// data channel, and some servers drop a control connection that stays
// quiet meanwhile.
func (c *Client) startKeepAlive() {
	if c.idleTimeout == 0 {
		return
	}

	c.quitChan = make(chan struct{})
	quit := c.quitChan

	// Check at half the idle timeout so a NOOP goes out before the deadline.
	ticker := time.NewTicker(c.idleTimeout / 2)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.keepAlive()
			case <-quit:
				return
			}
		}
	}()
}

// keepAlive sends one NOOP unless a command went out recently or a data
// transfer is open. The check and the NOOP happen under c.mu, so a listing
// cannot start in between and have its completion reply read here.
func (c *Client) keepAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeDataConn != nil || time.Since(c.lastCommand) < c.idleTimeout {
		return false
	}

	c.logger.Debug("sending keep-alive NOOP")
	// The connection may be closing.
	_, _ = c.sendLocked("NOOP", "NOOP")
	return true
}
