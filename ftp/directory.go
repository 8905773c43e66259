package ftp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NameList issues NLST and returns the names it lists, trimmed, without
// blank lines. Many servers answer NLST on an empty directory with 550
// instead of an empty list; that reply comes back as a *ProtocolError.
func (c *Client) NameList(path string) ([]string, error) {
	var (
		lines []string
		err   error
	)
	if path == "" {
		lines, err = c.readLines("NLST")
	} else {
		lines, err = c.readLines("NLST", path)
	}
	if err != nil {
		return nil, err
	}

	names := lines[:0]
	for _, line := range lines {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// RawList issues LIST, or LIST -R when recursive is set, and returns the
// reply lines exactly as sent. Servers disagree on the format, so parsing
// is left to the caller.
//
// Example:
//
//	lines, err := client.RawList("/pub", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range ftptree.ParseListing(lines, "/pub", true) {
//	    fmt.Println(e.Path, e.Size)
//	}
func (c *Client) RawList(path string, recursive bool) ([]string, error) {
	var args []string
	if recursive {
		args = append(args, "-R")
	}
	if path != "" {
		args = append(args, path)
	}
	return c.readLines("LIST", args...)
}

// ChangeDir changes the working directory with CWD.
func (c *Client) ChangeDir(path string) error {
	_, err := c.expect2xx("CWD", path)
	return err
}

// ChangeDirToParent moves to the parent directory with CDUP.
func (c *Client) ChangeDirToParent() error {
	_, err := c.expect2xx("CDUP")
	return err
}

// CurrentDir returns the working directory reported by PWD.
func (c *Client) CurrentDir() (string, error) {
	resp, err := c.expect2xx("PWD")
	if err != nil {
		return "", err
	}
	return parsePWD(resp.Message)
}

// parsePWD extracts the quoted directory of a 257 reply. Embedded quotes
// are doubled, as in `"/a ""b"""` for `/a "b"`.
func parsePWD(msg string) (string, error) {
	start := strings.IndexByte(msg, '"')
	if start == -1 {
		return "", fmt.Errorf("invalid PWD response: %s", msg)
	}

	var dir strings.Builder
	for i := start + 1; i < len(msg); i++ {
		if msg[i] != '"' {
			dir.WriteByte(msg[i])
			continue
		}
		if i+1 < len(msg) && msg[i+1] == '"' {
			dir.WriteByte('"')
			i++
			continue
		}
		return dir.String(), nil
	}
	return "", fmt.Errorf("invalid PWD response: %s", msg)
}

// MakeDir creates a directory with MKD.
func (c *Client) MakeDir(path string) error {
	_, err := c.expect2xx("MKD", path)
	return err
}

// RemoveDir removes an empty directory with RMD.
func (c *Client) RemoveDir(path string) error {
	_, err := c.expect2xx("RMD", path)
	return err
}

// Delete removes a file with DELE.
func (c *Client) Delete(path string) error {
	_, err := c.expect2xx("DELE", path)
	return err
}

// Rename moves from to to with RNFR and RNTO.
func (c *Client) Rename(from, to string) error {
	if _, err := c.expectCode(350, "RNFR", from); err != nil {
		return err
	}
	_, err := c.expect2xx("RNTO", to)
	return err
}

// Size returns the size of a file in bytes using SIZE (RFC 3659). The
// transfer type is switched to binary first, since sizes in ASCII mode are
// either refused or unreliable. Directories are rejected by the server.
func (c *Client) Size(path string) (int64, error) {
	if err := c.Type("I"); err != nil {
		return 0, err
	}

	resp, err := c.expectCode(213, "SIZE", path)
	if err != nil {
		return 0, err
	}

	size, err := strconv.ParseInt(strings.TrimSpace(resp.Message), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SIZE response: %s", resp.Message)
	}
	return size, nil
}

// ModTime returns the modification time of a file using MDTM (RFC 3659).
// The reply is YYYYMMDDHHMMSS in UTC, optionally with fractional seconds.
//
// Example:
//
//	modTime, err := client.ModTime("file.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Last modified: %s\n", modTime)
func (c *Client) ModTime(path string) (time.Time, error) {
	resp, err := c.expectCode(213, "MDTM", path)
	if err != nil {
		return time.Time{}, err
	}
	return parseMDTM(resp.Message)
}

func parseMDTM(msg string) (time.Time, error) {
	timestamp := strings.TrimSpace(msg)
	if len(timestamp) < 14 || len(timestamp) > 24 {
		return time.Time{}, fmt.Errorf("invalid MDTM response format: %s", msg)
	}

	layout := "20060102150405"
	if len(timestamp) > 14 {
		// 20231220143000.123
		layout += ".000000000"[:len(timestamp)-14]
	}

	t, err := time.Parse(layout, timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse MDTM timestamp: %w", err)
	}
	return t.UTC(), nil
}
