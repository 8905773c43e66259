package ftp

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestParseFeatureLines(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		lines []string
		want  map[string]string
	}{
		{
			name:  "names and params",
			lines: []string{"MLST size*;create;modify*;perm;media-type", "SIZE", "REST STREAM", "MDTM"},
			want: map[string]string{
				"MLST": "size*;create;modify*;perm;media-type",
				"SIZE": "",
				"REST": "STREAM",
				"MDTM": "",
			},
		},
		{
			name:  "lower case names are upper-cased",
			lines: []string{"size", "utf8"},
			want:  map[string]string{"SIZE": "", "UTF8": ""},
		},
		{
			name:  "blank and indented lines",
			lines: []string{"", "   ", "  TVFS  "},
			want:  map[string]string{"TVFS": ""},
		},
		{
			name:  "empty",
			lines: nil,
			want:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFeatureLines(tt.lines)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d features, got %d: %v", len(tt.want), len(got), got)
			}
			for name, params := range tt.want {
				if gotParams, ok := got[name]; !ok {
					t.Errorf("missing feature %s", name)
				} else if gotParams != params {
					t.Errorf("feature %s: expected params %q, got %q", name, params, gotParams)
				}
			}
		})
	}
}

func TestClient_Features(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["FEAT"] = func(c *textproto.Conn, _ string) {
		_ = c.PrintfLine("211-Features:")
		_ = c.PrintfLine(" SIZE")
		_ = c.PrintfLine(" MDTM")
		_ = c.PrintfLine(" REST STREAM")
		_ = c.PrintfLine("211 End")
	}
	ms.start(t)
	c := ms.login(t)

	feats, err := c.Features()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"SIZE", "MDTM", "REST"} {
		if _, ok := feats[name]; !ok {
			t.Errorf("missing feature %s in %v", name, feats)
		}
	}
	if feats["REST"] != "STREAM" {
		t.Errorf("REST params = %q, want STREAM", feats["REST"])
	}

	if !c.HasFeature("size") {
		t.Error("HasFeature(size) = false, want true")
	}
	if c.HasFeature("MLST") {
		t.Error("HasFeature(MLST) = true, want false")
	}

	if n := ms.count("FEAT"); n != 1 {
		t.Errorf("FEAT sent %d times, want 1 (cached)", n)
	}
}

func TestClient_InvalidateFeatures(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	var calls int
	ms.handlers["FEAT"] = func(c *textproto.Conn, _ string) {
		calls++
		_ = c.PrintfLine("211-Features:")
		if calls == 1 {
			_ = c.PrintfLine(" SIZE")
		} else {
			_ = c.PrintfLine(" MDTM")
		}
		_ = c.PrintfLine("211 End")
	}
	ms.start(t)
	c := ms.login(t)

	if !c.HasFeature("SIZE") {
		t.Fatal("HasFeature(SIZE) = false before invalidation")
	}
	c.InvalidateFeatures()

	if c.HasFeature("SIZE") {
		t.Error("stale SIZE survived InvalidateFeatures")
	}
	if !c.HasFeature("MDTM") {
		t.Error("HasFeature(MDTM) = false after InvalidateFeatures")
	}
	if n := ms.count("FEAT"); n != 2 {
		t.Errorf("FEAT sent %d times, want 2", n)
	}
}

func TestClient_FeaturesRejected(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.start(t)
	c := ms.login(t)

	_, err := c.Features()
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Code != 502 {
		t.Fatalf("Features() error = %v, want ProtocolError 502", err)
	}
	if c.HasFeature("SIZE") {
		t.Error("HasFeature should be false when FEAT is rejected")
	}
}

func TestClient_Login(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		user     string
		pass     string
		wantCode int
		wantCmds []string
	}{
		{
			name:     "no password required",
			user:     "230 Logged in.",
			wantCmds: []string{"USER bob"},
		},
		{
			name:     "password accepted",
			user:     "331 Password required.",
			pass:     "230 Logged in.",
			wantCmds: []string{"USER bob", "PASS secret"},
		},
		{
			name:     "password rejected",
			user:     "331 Password required.",
			pass:     "530 Login incorrect.",
			wantCode: 530,
			wantCmds: []string{"USER bob", "PASS secret"},
		},
		{
			name:     "user rejected",
			user:     "530 Not allowed.",
			wantCode: 530,
			wantCmds: []string{"USER bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ms := newMockServer(t)
			ms.handlers["USER"] = reply(tt.user)
			if tt.pass != "" {
				ms.handlers["PASS"] = reply(tt.pass)
			}
			ms.start(t)

			c, err := Dial(ms.addr, WithTimeout(2*time.Second))
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = c.Quit() }()

			err = c.Login("bob", "secret")
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("Login() error = %v", err)
				}
			} else {
				var pe *ProtocolError
				if !errors.As(err, &pe) || pe.Code != tt.wantCode {
					t.Fatalf("Login() error = %v, want code %d", err, tt.wantCode)
				}
			}

			if got := ms.commands(); !slices.Equal(got, tt.wantCmds) {
				t.Errorf("commands = %q, want %q", got, tt.wantCmds)
			}
		})
	}
}

func TestDial_BadGreeting(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.greeting = "421 Too many connections"
	ms.start(t)

	_, err := Dial(ms.addr, WithTimeout(2*time.Second))
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Code != 421 {
		t.Fatalf("Dial() error = %v, want ProtocolError 421", err)
	}
}

func TestDial_InvalidAddress(t *testing.T) {
	t.Parallel()
	if _, err := Dial("no-port-here"); err == nil {
		t.Fatal("expected error for address without port")
	}
}

func TestConnect(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["CWD"] = reply("250 Directory changed.")
	ms.start(t)

	c, err := Connect("ftp://bob:secret@"+ms.addr+"/pub/incoming", WithTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Quit() }()

	want := []string{"USER bob", "PASS secret", "CWD /pub/incoming"}
	if got := ms.commands(); !slices.Equal(got, want) {
		t.Errorf("commands = %q, want %q", got, want)
	}
}

func TestConnect_Anonymous(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.start(t)

	c, err := Connect("ftp://"+ms.addr, WithTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Quit() }()

	want := []string{"USER anonymous", "PASS anonymous@"}
	if got := ms.commands(); !slices.Equal(got, want) {
		t.Errorf("commands = %q, want %q", got, want)
	}
}

func TestConnect_UnsupportedScheme(t *testing.T) {
	t.Parallel()
	for _, u := range []string{"sftp://example.com", "ftps://example.com", "http://example.com"} {
		if _, err := Connect(u); err == nil || !strings.Contains(err.Error(), "unsupported scheme") {
			t.Errorf("Connect(%q) error = %v, want unsupported scheme", u, err)
		}
	}
}

func TestClient_Syst(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["SYST"] = reply("215 UNIX Type: L8")
	ms.start(t)
	c := ms.login(t)

	got, err := c.Syst()
	if err != nil {
		t.Fatal(err)
	}
	if got != "UNIX Type: L8" {
		t.Errorf("Syst() = %q, want %q", got, "UNIX Type: L8")
	}
}

func TestClient_SiteHelp(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["HELP"] = func(c *textproto.Conn, args string) {
		if args != "" {
			_ = c.PrintfLine("214 Syntax: %s <sp> pathname", args)
			return
		}
		_ = c.PrintfLine("214-The following commands are recognized.")
		_ = c.PrintfLine(" CWD  DELE LIST MDTM MKD")
		_ = c.PrintfLine(" NLST PWD  RMD  SIZE")
		_ = c.PrintfLine("214 Help OK.")
	}
	ms.start(t)
	c := ms.login(t)

	lines, err := c.SiteHelp("")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"CWD  DELE LIST MDTM MKD", "NLST PWD  RMD  SIZE"}
	if !slices.Equal(lines, want) {
		t.Errorf("SiteHelp() = %q, want %q", lines, want)
	}

	lines, err = c.SiteHelp("MKD")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != "Syntax: MKD <sp> pathname" {
		t.Errorf("SiteHelp(MKD) = %q", lines)
	}
}

func TestClient_KeepAlive(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.start(t)
	ms.login(t, WithIdleTimeout(100*time.Millisecond))

	deadline := time.Now().Add(2 * time.Second)
	for ms.count("NOOP") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no NOOP sent while idle, commands: %q", ms.commands())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestClient_KeepAliveSkipsOpenTransfer(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.start(t)
	// The ticker never fires during the test; keepAlive is driven by hand.
	c := ms.login(t, WithIdleTimeout(time.Hour))

	idle := func() {
		c.mu.Lock()
		c.lastCommand = time.Now().Add(-2 * time.Hour)
		c.mu.Unlock()
	}

	// A listing has sent its command and is between the 150 and the 226
	local, remote := net.Pipe()
	defer remote.Close()
	c.setActiveDataConn(local)
	idle()

	if c.keepAlive() {
		t.Error("keepAlive sent NOOP during an open transfer")
	}
	if n := ms.count("NOOP"); n != 0 {
		t.Errorf("NOOP sent %d times during an open transfer, want 0", n)
	}

	c.setActiveDataConn(nil)
	local.Close()

	if !c.keepAlive() {
		t.Error("keepAlive skipped an idle connection")
	}
	if n := ms.count("NOOP"); n != 1 {
		t.Errorf("NOOP sent %d times, want 1", n)
	}

	// The NOOP itself counts as activity
	if c.keepAlive() {
		t.Error("keepAlive sent a second NOOP right after the first")
	}
}

func TestDial_NegativeCommandRate(t *testing.T) {
	t.Parallel()
	_, err := Dial("127.0.0.1:21", WithCommandRate(-1))
	if err == nil || !strings.Contains(err.Error(), "failed to apply option") {
		t.Fatalf("Dial() error = %v, want option error", err)
	}
}

func TestClient_EPSV_Fallback(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)

	_, portStr, _ := net.SplitHostPort(ms.dataListener.Addr().String())
	port := 0
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	pasvResp := fmt.Sprintf("227 Entering Passive Mode (127,0,0,1,%d,%d).", port/256, port%256)

	ms.handlers["EPSV"] = reply("502 Command not implemented.")
	ms.handlers["PASV"] = reply(pasvResp)
	ms.handlers["LIST"] = ms.sendLines(t)
	ms.start(t)
	c := ms.login(t)

	// First listing tries EPSV and falls back to PASV
	if _, err := c.RawList(".", false); err != nil {
		t.Errorf("First RawList failed: %v", err)
	}

	// Second listing goes straight to PASV
	if _, err := c.RawList(".", false); err != nil {
		t.Errorf("Second RawList failed: %v", err)
	}

	if n := ms.count("EPSV"); n != 1 {
		t.Errorf("Expected exactly 1 EPSV command, got %d. Commands: %v", n, ms.commands())
	}
	if n := ms.count("PASV"); n != 2 {
		t.Errorf("Expected 2 PASV commands, got %d. Commands: %v", n, ms.commands())
	}
}

func TestClient_EPSV_FailButNot502(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)

	_, portStr, _ := net.SplitHostPort(ms.dataListener.Addr().String())
	port := 0
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	pasvResp := fmt.Sprintf("227 Entering Passive Mode (127,0,0,1,%d,%d).", port/256, port%256)

	ms.handlers["EPSV"] = reply("500 Syntax error, command unrecognized.")
	ms.handlers["PASV"] = reply(pasvResp)
	ms.handlers["LIST"] = ms.sendLines(t)
	ms.start(t)
	c := ms.login(t)

	for i := range 2 {
		if _, err := c.RawList(".", false); err != nil {
			t.Errorf("RawList #%d failed: %v", i+1, err)
		}
	}

	// EPSV is only given up on after a 502
	if n := ms.count("EPSV"); n != 2 {
		t.Errorf("Expected 2 EPSV commands (retry on non-502), got %d. Commands: %v", n, ms.commands())
	}
}

func TestClient_DisableEPSV(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)

	_, portStr, _ := net.SplitHostPort(ms.dataListener.Addr().String())
	port := 0
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	ms.handlers["PASV"] = reply(fmt.Sprintf("227 Entering Passive Mode (0,0,0,0,%d,%d)", port/256, port%256))
	ms.handlers["NLST"] = ms.sendLines(t, "a.txt")
	ms.start(t)
	c := ms.login(t, WithDisableEPSV())

	names, err := c.NameList("/")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names, []string{"a.txt"}) {
		t.Errorf("NameList() = %q", names)
	}
	if n := ms.count("EPSV"); n != 0 {
		t.Errorf("EPSV sent %d times with EPSV disabled", n)
	}
}

func TestClient_ActiveMode(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)

	var dataAddr string
	ms.handlers["PORT"] = func(c *textproto.Conn, args string) {
		var h1, h2, h3, h4, p1, p2 int
		if _, err := fmt.Sscanf(args, "%d,%d,%d,%d,%d,%d", &h1, &h2, &h3, &h4, &p1, &p2); err != nil {
			_ = c.PrintfLine("501 Bad PORT.")
			return
		}
		dataAddr = net.JoinHostPort(fmt.Sprintf("%d.%d.%d.%d", h1, h2, h3, h4), fmt.Sprint(p1*256+p2))
		_ = c.PrintfLine("200 PORT command successful.")
	}
	ms.handlers["LIST"] = func(c *textproto.Conn, _ string) {
		_ = c.PrintfLine("150 Opening data connection.")
		dconn, err := net.Dial("tcp", dataAddr)
		if err != nil {
			t.Errorf("mock server failed to connect to client: %v", err)
			return
		}
		fmt.Fprintf(dconn, "-rw-r--r-- 1 ftp ftp 10 Jan 01 00:00 a.txt\r\n")
		dconn.Close()
		_ = c.PrintfLine("226 Transfer complete.")
	}
	ms.start(t)
	c := ms.login(t, WithActiveMode())

	lines, err := c.RawList("/", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || !strings.HasSuffix(lines[0], "a.txt") {
		t.Errorf("RawList() = %q", lines)
	}
	if n := ms.count("EPSV") + ms.count("PASV"); n != 0 {
		t.Errorf("passive commands sent in active mode: %q", ms.commands())
	}
}
