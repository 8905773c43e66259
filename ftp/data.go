package ftp

import (
	"bufio"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"
)

var (
	// pasvRegex matches the PASV response format: 227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)
	pasvRegex = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

	// epsvRegex matches the EPSV response format: 229 Entering Extended Passive Mode (|||port|)
	epsvRegex = regexp.MustCompile(`\(\|\|\|(\d+)\|\)`)
)

// parsePASV returns the "host:port" a 227 reply points at.
// "(192,168,1,1,195,149)" yields "192.168.1.1:50069".
func parsePASV(response string) (string, error) {
	matches := pasvRegex.FindStringSubmatch(response)
	if len(matches) != 7 {
		return "", fmt.Errorf("invalid PASV response: %s", response)
	}

	var h [4]int
	for i := range 4 {
		val, err := strconv.Atoi(matches[i+1])
		if err != nil || val < 0 || val > 255 {
			return "", fmt.Errorf("invalid PASV IP part: %s", matches[i+1])
		}
		h[i] = val
	}
	host := fmt.Sprintf("%d.%d.%d.%d", h[0], h[1], h[2], h[3])

	p1, err1 := strconv.Atoi(matches[5])
	p2, err2 := strconv.Atoi(matches[6])
	if err1 != nil || err2 != nil || p1 < 0 || p1 > 255 || p2 < 0 || p2 > 255 {
		return "", fmt.Errorf("invalid PASV port parts: %s, %s", matches[5], matches[6])
	}

	return net.JoinHostPort(host, strconv.Itoa(p1*256+p2)), nil
}

// parseEPSV returns the port of a 229 reply: "(|||6446|)" yields "6446".
func parseEPSV(response string) (string, error) {
	matches := epsvRegex.FindStringSubmatch(response)
	if len(matches) != 2 {
		return "", fmt.Errorf("invalid EPSV response: %s", response)
	}

	port, err := strconv.Atoi(matches[1])
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port: %s", matches[1])
	}

	return matches[1], nil
}

// formatPORT converts "192.168.1.100:50000" to "192,168,1,100,195,80".
func formatPORT(addr string) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("invalid IP address: %s", host)
	}
	ip = ip.To4()
	if ip == nil {
		return "", fmt.Errorf("PORT requires IPv4 address")
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid port: %s", portStr)
	}

	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3], port/256, port%256), nil
}

// formatEPRT formats an address as |net-prt|net-addr|tcp-port| where
// net-prt is 1 for IPv4 and 2 for IPv6.
func formatEPRT(addr string) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("invalid IP address: %s", host)
	}

	netPrt := 2
	if ip.To4() != nil {
		netPrt = 1
	}

	return fmt.Sprintf("|%d|%s|%s|", netPrt, host, portStr), nil
}

// resolveDataAddr replaces an unspecified 0.0.0.0 host in a PASV reply
// with the control connection host.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}

	if host == "0.0.0.0" {
		return net.JoinHostPort(controlHost, port)
	}

	return pasvAddr
}

func (c *Client) openDataConn() (net.Conn, error) {
	if c.activeMode {
		return c.openActiveDataConn()
	}
	return c.openPassiveDataConn()
}

// openActiveDataConn listens locally and announces the address with PORT,
// or EPRT for IPv6. The server connects once the listing command is sent.
func (c *Client) openActiveDataConn() (net.Conn, error) {
	host, _, err := net.SplitHostPort(c.conn.LocalAddr().String())
	if err != nil {
		host = "127.0.0.1"
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		listener, err = net.Listen("tcp", ":0")
		if err != nil {
			return nil, fmt.Errorf("failed to create listener: %w", err)
		}
	}

	addr := listener.Addr().String()
	localHost, _, err := net.SplitHostPort(addr)
	if err != nil {
		listener.Close()
		return nil, err
	}

	cmd, format := "PORT", formatPORT
	if ip := net.ParseIP(localHost); ip != nil && ip.To4() == nil {
		cmd, format = "EPRT", formatEPRT
	}

	arg, err := format(addr)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to format %s command: %w", cmd, err)
	}

	if _, err := c.expect2xx(cmd, arg); err != nil {
		listener.Close()
		return nil, err
	}

	return &activeDataConn{listener: listener, timeout: c.timeout}, nil
}

// activeDataConn accepts the server's connection on first use.
type activeDataConn struct {
	listener net.Listener
	conn     net.Conn
	timeout  time.Duration
}

func (a *activeDataConn) accept() error {
	if a.timeout > 0 {
		if l, ok := a.listener.(*net.TCPListener); ok {
			_ = l.SetDeadline(time.Now().Add(a.timeout))
		}
	}
	conn, err := a.listener.Accept()
	if err != nil {
		return err
	}
	a.conn = conn
	return nil
}

func (a *activeDataConn) Read(p []byte) (int, error) {
	if a.conn == nil {
		if err := a.accept(); err != nil {
			return 0, err
		}
	}
	if a.timeout > 0 {
		_ = a.conn.SetReadDeadline(time.Now().Add(a.timeout))
	}
	return a.conn.Read(p)
}

func (a *activeDataConn) Write(p []byte) (int, error) {
	if a.conn == nil {
		if err := a.accept(); err != nil {
			return 0, err
		}
	}
	if a.timeout > 0 {
		_ = a.conn.SetWriteDeadline(time.Now().Add(a.timeout))
	}
	return a.conn.Write(p)
}

func (a *activeDataConn) Close() error {
	var connErr error
	if a.conn != nil {
		connErr = a.conn.Close()
	}
	listenErr := a.listener.Close()
	if connErr != nil {
		return connErr
	}
	return listenErr
}

func (a *activeDataConn) LocalAddr() net.Addr {
	if a.conn != nil {
		return a.conn.LocalAddr()
	}
	return a.listener.Addr()
}

func (a *activeDataConn) RemoteAddr() net.Addr {
	if a.conn != nil {
		return a.conn.RemoteAddr()
	}
	return nil
}

func (a *activeDataConn) SetDeadline(t time.Time) error {
	if a.conn != nil {
		return a.conn.SetDeadline(t)
	}
	return nil
}

func (a *activeDataConn) SetReadDeadline(t time.Time) error {
	if a.conn != nil {
		return a.conn.SetReadDeadline(t)
	}
	return nil
}

func (a *activeDataConn) SetWriteDeadline(t time.Time) error {
	if a.conn != nil {
		return a.conn.SetWriteDeadline(t)
	}
	return nil
}

// openPassiveDataConn tries EPSV first and falls back to PASV. A server
// answering EPSV with 502 is not asked again.
func (c *Client) openPassiveDataConn() (net.Conn, error) {
	var addr string

	if !c.disableEPSV {
		resp, err := c.sendCommand("EPSV")
		if err != nil {
			return nil, err
		}
		switch {
		case resp.Code == 502:
			c.disableEPSV = true
		case resp.Is2xx():
			if port, perr := parseEPSV(resp.Message); perr == nil {
				addr = net.JoinHostPort(c.host, port)
			}
		}
	}

	if addr == "" {
		resp, err := c.expect2xx("PASV")
		if err != nil {
			return nil, err
		}

		addr, err = parsePASV(resp.Message)
		if err != nil {
			return nil, err
		}
		addr = resolveDataAddr(addr, c.host)
	}

	dataConn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data port: %w", err)
	}

	if c.timeout > 0 {
		return &deadlineConn{Conn: dataConn, timeout: c.timeout}, nil
	}
	return dataConn, nil
}

// cmdDataConn opens a data connection and sends cmd over the control
// channel. It returns the first reply along with the connection. After a 1xx
// the caller reads the data and calls finishDataConn; a 2xx means the server
// skipped the preliminary reply and there is no completion reply to wait for.
func (c *Client) cmdDataConn(cmd string, args ...string) (*Response, net.Conn, error) {
	dataConn, err := c.openDataConn()
	if err != nil {
		return nil, nil, err
	}
	c.setActiveDataConn(dataConn)

	resp, err := c.sendCommand(cmd, args...)
	if err != nil {
		dataConn.Close()
		c.setActiveDataConn(nil)
		return nil, nil, err
	}

	if !resp.Is1xx() && !resp.Is2xx() {
		dataConn.Close()
		c.setActiveDataConn(nil)
		return nil, nil, newProtocolError(cmd, resp)
	}

	return resp, dataConn, nil
}

// finishDataConn closes the data connection and reads the completion reply.
func (c *Client) finishDataConn(cmd string, dataConn net.Conn) error {
	defer c.setActiveDataConn(nil)

	if err := dataConn.Close(); err != nil {
		return fmt.Errorf("failed to close data connection: %w", err)
	}

	resp, err := c.readResponse()
	if err != nil {
		return fmt.Errorf("failed to read completion response: %w", err)
	}
	if !resp.Is2xx() {
		return newProtocolError(cmd, resp)
	}
	return nil
}

// abortDataConn closes the data connection after a failed read. Unless the
// server already completed, the 226 or 426 it sends is drained so the next
// command reads its own reply.
func (c *Client) abortDataConn(cmd string, dataConn net.Conn, completed bool) {
	defer c.setActiveDataConn(nil)

	dataConn.Close()
	if completed {
		return
	}
	if resp, err := c.readResponse(); err != nil {
		c.logger.Debug("no completion reply after aborted transfer", "cmd", cmd, "error", err)
	} else {
		c.logger.Debug("drained completion reply", "cmd", cmd, "code", resp.Code)
	}
}

func (c *Client) setActiveDataConn(conn net.Conn) {
	c.mu.Lock()
	c.activeDataConn = conn
	c.mu.Unlock()
}

// readLines runs cmd and collects the data channel line by line.
// Line terminators are stripped; empty lines are kept.
func (c *Client) readLines(cmd string, args ...string) ([]string, error) {
	resp, dataConn, err := c.cmdDataConn(cmd, args...)
	if err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(dataConn)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		c.abortDataConn(cmd, dataConn, resp.Is2xx())
		return nil, fmt.Errorf("failed to read %s data: %w", cmd, err)
	}

	if resp.Is2xx() {
		dataConn.Close()
		c.setActiveDataConn(nil)
		return lines, nil
	}

	if err := c.finishDataConn(cmd, dataConn); err != nil {
		return nil, err
	}
	return lines, nil
}
