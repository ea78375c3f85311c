package fsidxd

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fsindex/internal/core/batch"
	"fsindex/internal/core/mounts"
	"fsindex/internal/core/records"
	"fsindex/internal/index/engine"
	"fsindex/internal/index/sqlite"
)

type daemon struct {
	socket string
	sched  *batch.Scheduler
	eng    *engine.Engine
	srv    *Server
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startDaemon(t *testing.T) *daemon {
	t.Helper()

	dir := t.TempDir()
	st, err := sqlite.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	eng, err := engine.New(st, dir, engine.Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	sched := batch.New(eng, batch.Config{
		BatchSize:     100,
		BatchInterval: 50 * time.Millisecond,
		DrainCap:      500,
	}, testLogger())

	h := NewHandlers(sched, eng, nil, []string{"/srv/files"})
	socket := filepath.Join(dir, "fsidxd.sock")
	srv := NewServer(h, Options{SocketPath: socket, Log: testLogger()})

	errc := make(chan error, 1)
	go func() { errc <- srv.Run() }()
	waitSocket(t, socket, 2*time.Second)

	t.Cleanup(func() {
		_ = srv.Close()
		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("server run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("server did not stop after close")
		}
		sched.Shutdown()
		if err := eng.Close(); err != nil {
			t.Errorf("close engine: %v", err)
		}
	})

	return &daemon{socket: socket, sched: sched, eng: eng, srv: srv}
}

func waitSocket(t *testing.T, socket string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c, err := Dial(socket); err == nil {
			pingErr := c.Ping()
			_ = c.Close()
			if pingErr == nil {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("daemon did not start listening in time")
}

func dialDaemon(t *testing.T, d *daemon) *Client {
	t.Helper()

	c, err := Dial(d.socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitCond(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestServerPingAndVersion(t *testing.T) {
	d := startDaemon(t)

	conn, err := net.Dial("unix", d.socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	if err := enc.Encode(Request{JSONRPC: "2.0", Method: "ping", ID: json.RawMessage("1")}); err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	var pingResp Response
	if err := dec.Decode(&pingResp); err != nil {
		t.Fatalf("decode ping: %v", err)
	}
	if string(pingResp.ID) != "1" {
		t.Fatalf("ping id=%s", string(pingResp.ID))
	}
	if pingResp.Error != nil {
		t.Fatalf("ping error=%+v", pingResp.Error)
	}
	if pingResp.Result != "pong" {
		t.Fatalf("ping result=%v", pingResp.Result)
	}

	if err := enc.Encode(Request{JSONRPC: "2.0", Method: "version", ID: json.RawMessage("2")}); err != nil {
		t.Fatalf("encode version: %v", err)
	}
	var versionResp Response
	if err := dec.Decode(&versionResp); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if versionResp.Error != nil {
		t.Fatalf("version error=%+v", versionResp.Error)
	}
	if s, ok := versionResp.Result.(string); !ok || s == "" {
		t.Fatalf("version result=%v", versionResp.Result)
	}
}

func TestPathLifecycleOverRPC(t *testing.T) {
	d := startDaemon(t)
	c := dialDaemon(t, d)

	path := filepath.Join(t.TempDir(), "annual-report.pdf")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	added, err := c.PathAdd(path)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added {
		t.Fatalf("first add must report false while the record is queued")
	}

	waitCond(t, 2*time.Second, func() bool {
		ok, err := c.PathExists(path)
		return err == nil && ok
	})

	paths, err := c.Search(SearchParams{Keywords: "annual report"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(paths) != 1 || paths[0] != path {
		t.Fatalf("search = %v, want [%s]", paths, path)
	}

	removed, err := c.PathRemove(path)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatalf("remove must report the document absent")
	}
	exists, err := c.PathExists(path)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("document must be gone after remove")
	}

	// Removing again is a no-op success.
	removed, err = c.PathRemove(path)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if !removed {
		t.Fatalf("removing an absent document must still report true")
	}
}

func TestStatusReportsDaemonState(t *testing.T) {
	d := startDaemon(t)
	c := dialDaemon(t, d)

	st, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Version == "" {
		t.Fatalf("status version is empty")
	}
	if st.Instance == "" {
		t.Fatalf("status instance is empty")
	}
	if st.Backend != "sqlite" {
		t.Fatalf("backend = %q, want sqlite", st.Backend)
	}
	if st.IndexDir == "" {
		t.Fatalf("status index dir is empty")
	}
	if len(st.Roots) != 1 || st.Roots[0] != "/srv/files" {
		t.Fatalf("roots = %v", st.Roots)
	}
	if st.DocCount != 0 {
		t.Fatalf("doc count = %d, want 0", st.DocCount)
	}
}

func TestStatusResolvesRootMounts(t *testing.T) {
	d := startDaemon(t)

	root := t.TempDir()
	rec, ok := records.Generate(root)
	if !ok {
		t.Fatalf("generate record for %s", root)
	}
	mm := mounts.NewManagerWithLister(func() ([]mounts.Entry, error) {
		return []mounts.Entry{
			{Device: rec.Device, MountPoint: "/scratch", FSType: "tmpfs", Source: "tmpfs"},
		}, nil
	})
	if err := mm.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	h := NewHandlers(d.sched, d.eng, mm, []string{root})
	st, err := h.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(st.Mounts) != 1 {
		t.Fatalf("mounts = %+v, want one entry", st.Mounts)
	}
	mi := st.Mounts[0]
	if mi.Root != root || mi.MountPoint != "/scratch" || mi.FSType != "tmpfs" || mi.Device != rec.Device {
		t.Fatalf("mount info = %+v", mi)
	}
}

func TestSearchReflectsNewCommits(t *testing.T) {
	d := startDaemon(t)
	c := dialDaemon(t, d)

	dir := t.TempDir()
	first := filepath.Join(dir, "notes-january.txt")
	if err := os.WriteFile(first, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.PathAdd(first); err != nil {
		t.Fatalf("add: %v", err)
	}
	waitCond(t, 2*time.Second, func() bool {
		ok, err := c.PathExists(first)
		return err == nil && ok
	})

	paths, err := c.Search(SearchParams{Keywords: "notes"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("search = %v, want one hit", paths)
	}

	// A second matching file must show up in the same query once its
	// batch flushes; a cached result for the old generation may not be
	// served.
	second := filepath.Join(dir, "notes-february.txt")
	if err := os.WriteFile(second, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.PathAdd(second); err != nil {
		t.Fatalf("add: %v", err)
	}
	waitCond(t, 2*time.Second, func() bool {
		got, err := c.Search(SearchParams{Keywords: "notes"})
		return err == nil && len(got) == 2
	})
}

func TestSecondDaemonRefusesSocket(t *testing.T) {
	d := startDaemon(t)

	other := NewServer(NewHandlers(d.sched, d.eng, nil, nil), Options{
		SocketPath: d.socket,
		Log:        testLogger(),
	})
	if err := other.Run(); err != ErrAlreadyRunning {
		t.Fatalf("second daemon run = %v, want ErrAlreadyRunning", err)
	}
}

func TestStaleSocketIsReplaced(t *testing.T) {
	dir := t.TempDir()
	socket := filepath.Join(dir, "fsidxd.sock")
	if err := os.WriteFile(socket, nil, 0o600); err != nil {
		t.Fatalf("plant stale socket: %v", err)
	}

	st, err := sqlite.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	eng, err := engine.New(st, dir, engine.Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	sched := batch.New(eng, batch.Config{}, testLogger())
	srv := NewServer(NewHandlers(sched, eng, nil, nil), Options{SocketPath: socket, Log: testLogger()})

	errc := make(chan error, 1)
	go func() { errc <- srv.Run() }()
	waitSocket(t, socket, 2*time.Second)

	_ = srv.Close()
	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}
	sched.Shutdown()
	_ = eng.Close()
}
