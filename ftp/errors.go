package ftp

import "fmt"

// ProtocolError is a negative or unexpected server reply to a command.
// Errors that are not a *ProtocolError come from the connection itself.
type ProtocolError struct {
	// Command is the FTP verb that was sent (e.g., "RMD")
	Command string

	// Response is the reply text (e.g., "Directory not empty")
	Response string

	// Code is the numeric reply code (e.g., 550)
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// ReplyCode returns the reply code. It marks the error as a server
// rejection rather than a transport failure.
func (e *ProtocolError) ReplyCode() int {
	return e.Code
}

// IsTemporary returns true for 4xx replies, which may succeed when retried.
func (e *ProtocolError) IsTemporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsPermanent returns true for 5xx replies.
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}

func newProtocolError(command string, resp *Response) *ProtocolError {
	return &ProtocolError{
		Command:  command,
		Response: resp.Message,
		Code:     resp.Code,
	}
}
