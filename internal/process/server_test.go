package process

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-suite-runner/internal/catalog"
)

func serverCatalog(server string, section *catalog.Section) *catalog.Catalog {
	sec := &catalog.Section{
		Name:     "js",
		Kind:     catalog.KindServer,
		Requires: []string{"tornado", "casperjs"},
		Server:   []string{"sh", "-c", server, "server", "{config_dir}"},
		Runner:   []string{"sh", "-c", `echo "runner port={port} dir={test_dir} home={config_dir}"`},
		TestDir:  "/tests/js",
	}
	if section != nil {
		sec = section
	}
	return &catalog.Catalog{
		Env:      catalog.EnvNames{ConfigHome: "SUITE_HOME"},
		Sections: []*catalog.Section{sec, {Name: "core", Kind: catalog.KindStandard}},
	}
}

func newTestServer(t *testing.T, cat *catalog.Catalog, opts Options) *ServerBacked {
	t.Helper()
	s, err := NewServerBacked(cat, "js", opts)
	if err != nil {
		t.Fatalf("NewServerBacked() error: %v", err)
	}
	t.Cleanup(s.Cleanup)
	return s
}

func TestServerBacked_Launch(t *testing.T) {
	cat := serverCatalog(`echo starting; echo "listening on port=4321"; exec sleep 30`, nil)
	s := newTestServer(t, cat, testOptions(t))

	if err := s.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	status, err := s.Wait(context.Background())
	if err != nil || status != 0 {
		t.Fatalf("Wait() = %d, %v", status, err)
	}

	if s.Port() != 4321 {
		t.Errorf("Port() = %d, want 4321", s.Port())
	}
	out := string(s.Output())
	want := "runner port=4321 dir=/tests/js home=" + s.configDir.Path()
	if !strings.Contains(out, want) {
		t.Errorf("Output() = %q, want %q", out, want)
	}

	s.smu.Lock()
	server := s.server
	s.smu.Unlock()
	s.Cleanup()
	if server.alive() {
		t.Error("server should be stopped by Cleanup")
	}
}

func TestServerBacked_ServerSeesConfigDir(t *testing.T) {
	cat := serverCatalog(`[ "$SUITE_HOME" = "$1" ] && echo port=80; exec sleep 30`, nil)
	s := newTestServer(t, cat, testOptions(t))

	if err := s.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	if s.Port() != 80 {
		t.Errorf("Port() = %d, want 80", s.Port())
	}
}

func TestServerBacked_ServerExitsEarly(t *testing.T) {
	cat := serverCatalog(`echo "address in use"; exit 2`, nil)
	s := newTestServer(t, cat, testOptions(t))

	err := s.Launch(context.Background())
	if !errors.Is(err, ErrServerExited) {
		t.Fatalf("Launch() = %v, want ErrServerExited", err)
	}
	if _, err := s.Wait(context.Background()); !errors.Is(err, ErrNotLaunched) {
		t.Errorf("runner must not start, Wait() = %v", err)
	}
}

func TestServerBacked_AnnouncesThenExits(t *testing.T) {
	// The port is already in the handoff when the exit is observed.
	cat := serverCatalog(`echo port=9000`, nil)
	s := newTestServer(t, cat, testOptions(t))

	if err := s.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	if s.Port() != 9000 {
		t.Errorf("Port() = %d, want 9000", s.Port())
	}
}

func TestServerBacked_Timeout(t *testing.T) {
	opts := testOptions(t)
	opts.ServerTimeout = 100 * time.Millisecond

	cat := serverCatalog(`exec sleep 30`, nil)
	s := newTestServer(t, cat, opts)

	start := time.Now()
	if err := s.Launch(context.Background()); !errors.Is(err, ErrServerTimeout) {
		t.Fatalf("Launch() = %v, want ErrServerTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestServerBacked_Cancelled(t *testing.T) {
	cat := serverCatalog(`exec sleep 30`, nil)
	s := newTestServer(t, cat, testOptions(t))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	if err := s.Launch(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Launch() = %v, want context.Canceled", err)
	}
}

func TestServerBacked_StubbornServerIsKilled(t *testing.T) {
	opts := testOptions(t)
	opts.KillAttempts = 5

	cat := serverCatalog(`trap '' TERM; echo port=1234; while :; do sleep 1; done`, nil)
	s := newTestServer(t, cat, opts)

	if err := s.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	if _, err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.smu.Lock()
	server := s.server
	s.smu.Unlock()

	s.Cleanup()
	if server.alive() {
		t.Error("server ignoring SIGTERM should be killed")
	}
}

func TestServerBacked_TestDirCommand(t *testing.T) {
	sec := &catalog.Section{
		Name:           "js",
		Kind:           catalog.KindServer,
		Server:         []string{"sh", "-c", "echo port=5555; exec sleep 30"},
		Runner:         []string{"sh", "-c", "echo {test_dir}"},
		TestDirCommand: []string{"sh", "-c", "echo /resolved/dir"},
	}
	s := newTestServer(t, serverCatalog("", sec), testOptions(t))

	if err := s.Launch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(s.Output())); got != "/resolved/dir" {
		t.Errorf("test dir = %q, want /resolved/dir", got)
	}
}

func TestServerBacked_WillRun(t *testing.T) {
	cat := serverCatalog("exit 0", nil)
	s := newTestServer(t, cat, testOptions(t))

	cat.SetAvailability(map[string]bool{"tornado": true})
	if s.WillRun() {
		t.Error("casperjs missing, should not run")
	}
	cat.SetAvailability(map[string]bool{"tornado": true, "casperjs": true})
	if !s.WillRun() {
		t.Error("all requirements present, should run")
	}
	cat.Disable("js")
	if s.WillRun() {
		t.Error("disabled group should not run")
	}
}

func TestNewServerBacked_Errors(t *testing.T) {
	cat := serverCatalog("exit 0", nil)

	if _, err := NewServerBacked(cat, "core", testOptions(t)); err == nil {
		t.Error("standard group should be rejected")
	}
	if _, err := NewServerBacked(cat, "missing", testOptions(t)); err == nil {
		t.Error("unknown group should be rejected")
	}
}

func TestServerBacked_LaunchTwice(t *testing.T) {
	cat := serverCatalog(`echo port=7000; exec sleep 30`, nil)
	s := newTestServer(t, cat, testOptions(t))

	if err := s.Launch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Launch(context.Background()); !errors.Is(err, ErrAlreadyLaunched) {
		t.Errorf("second Launch() = %v, want ErrAlreadyLaunched", err)
	}
}

func TestHandoff(t *testing.T) {
	t.Run("delivers once", func(t *testing.T) {
		h := NewHandoff[int]()
		if err := h.Put(1); err != nil {
			t.Fatal(err)
		}
		if err := h.Put(2); !errors.Is(err, ErrHandoffUsed) {
			t.Errorf("second Put() = %v, want ErrHandoffUsed", err)
		}
		v, err := h.Get(context.Background(), nil)
		if err != nil || v != 1 {
			t.Errorf("Get() = %d, %v, want 1", v, err)
		}
	})

	t.Run("value wins over abort", func(t *testing.T) {
		h := NewHandoff[string]()
		h.Put("ready")
		abort := make(chan struct{})
		close(abort)
		if v, err := h.Get(context.Background(), abort); err != nil || v != "ready" {
			t.Errorf("Get() = %q, %v", v, err)
		}
	})

	t.Run("abort", func(t *testing.T) {
		h := NewHandoff[int]()
		abort := make(chan struct{})
		close(abort)
		if _, err := h.Get(context.Background(), abort); !errors.Is(err, ErrHandoffAborted) {
			t.Errorf("Get() = %v, want ErrHandoffAborted", err)
		}
	})

	t.Run("context", func(t *testing.T) {
		h := NewHandoff[int]()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := h.Get(ctx, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("Get() = %v, want context.Canceled", err)
		}
	})

	t.Run("blocks until put", func(t *testing.T) {
		h := NewHandoff[int]()
		go func() {
			time.Sleep(10 * time.Millisecond)
			h.Put(42)
		}()
		if v, err := h.Get(context.Background(), nil); err != nil || v != 42 {
			t.Errorf("Get() = %d, %v", v, err)
		}
	})
}

func TestPortAnnouncer_Match(t *testing.T) {
	a := newPortAnnouncer(regexp.MustCompile(catalog.DefaultPortPattern), NewHandoff[int](), nil)

	testCases := []struct {
		line string
		port int
		ok   bool
	}{
		{"port=8888", 8888, true},
		{"Serving on PORT: 9000", 9000, true},
		{"The notebook is running at http://localhost port 8890/", 8890, true},
		{"starting up", 0, false},
		{"port=0", 0, false},
		{"port=70000", 0, false},
	}

	for _, tc := range testCases {
		port, ok := a.match(tc.line)
		if port != tc.port || ok != tc.ok {
			t.Errorf("match(%q) = %d, %v, want %d, %v", tc.line, port, ok, tc.port, tc.ok)
		}
	}
}

func TestPortAnnouncer_Run(t *testing.T) {
	h := NewHandoff[int]()
	a := newPortAnnouncer(regexp.MustCompile(catalog.DefaultPortPattern), h, testOptions(t).Logger)

	a.Run(strings.NewReader("boot\nport=1111\nport=2222\ntrailing\n"))

	if a.LinesRead() != 4 {
		t.Errorf("LinesRead() = %d, want 4", a.LinesRead())
	}
	if v, err := h.Get(context.Background(), nil); err != nil || v != 1111 {
		t.Errorf("first announcement should win, got %d, %v", v, err)
	}
}
