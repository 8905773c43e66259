package ftp

import (
	"fmt"
	"strings"
	"time"
)

// Response is a complete server reply on the control channel.
type Response struct {
	// Code is the three-digit reply code (e.g., 226, 550)
	Code int

	// Message is the reply text. Lines of a multi-line reply are joined
	// with "\n", without their code prefixes.
	Message string

	// Lines is Message split into lines.
	Lines []string
}

// Is1xx returns true for preliminary replies, such as 150 before a transfer.
func (r *Response) Is1xx() bool {
	return r.Code >= 100 && r.Code < 200
}

// Is2xx returns true if the reply code is in the 2xx range (success).
func (r *Response) Is2xx() bool {
	return r.Code >= 200 && r.Code < 300
}

// Body returns the lines between the first and last line of a multi-line
// reply, trimmed. FEAT and HELP put their payload there.
func (r *Response) Body() []string {
	if len(r.Lines) < 3 {
		return nil
	}
	var body []string
	for _, line := range r.Lines[1 : len(r.Lines)-1] {
		if line = strings.TrimSpace(line); line != "" {
			body = append(body, line)
		}
	}
	return body
}

// readResponse reads one reply. textproto accepts both "code-" continuation
// lines and the RFC 2389 style of indented lines without a code.
func (c *Client) readResponse() (*Response, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	code, msg, err := c.text.ReadResponse(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp := &Response{
		Code:    code,
		Message: msg,
		Lines:   strings.Split(msg, "\n"),
	}
	c.logger.Debug("ftp response", "code", resp.Code, "message", resp.Message)
	return resp, nil
}

// sendCommand sends one command line and returns the reply. Commands are
// paced by the configured limiter and serialized by c.mu.
func (c *Client) sendCommand(command string, args ...string) (*Response, error) {
	line := command
	if len(args) > 0 {
		line = command + " " + strings.Join(args, " ")
	}

	c.limiter.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sendLocked(command, line)
}

// sendLocked writes line and reads the reply. The caller holds c.mu.
func (c *Client) sendLocked(command, line string) (*Response, error) {
	c.logger.Debug("ftp command", "cmd", redact(command, line))
	c.lastCommand = time.Now()

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if err := c.text.PrintfLine("%s", line); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	return c.readResponse()
}

// expectCode sends a command and fails unless the reply carries exactly code.
func (c *Client) expectCode(code int, command string, args ...string) (*Response, error) {
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != code {
		return resp, newProtocolError(command, resp)
	}
	return resp, nil
}

// expect2xx sends a command and fails unless the reply is 2xx.
func (c *Client) expect2xx(command string, args ...string) (*Response, error) {
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}
	if !resp.Is2xx() {
		return resp, newProtocolError(command, resp)
	}
	return resp, nil
}

func redact(command, line string) string {
	if command == "PASS" {
		return "PASS ****"
	}
	return line
}
