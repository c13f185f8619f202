package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/metcalfc/bivium/internal/bridge"
	"github.com/metcalfc/bivium/internal/reader"
	"github.com/metcalfc/bivium/internal/session"
	"github.com/metcalfc/bivium/internal/state"
)

type loaderFunc func(ctx context.Context, bookID, chapterID string) (*reader.Chapter, error)

func (f loaderFunc) LoadChapter(ctx context.Context, bookID, chapterID string) (*reader.Chapter, error) {
	return f(ctx, bookID, chapterID)
}

func testChapter() *reader.Chapter {
	segs := make([]reader.Segment, 60)
	for i := range segs {
		segs[i] = reader.Segment{
			ID:               fmt.Sprintf("s%d", i+1),
			German:           []string{"Der", "Hund", fmt.Sprint(i + 1)},
			Spanish:          []string{"El", "perro", fmt.Sprint(i + 1)},
			IsParagraphStart: i%3 == 0,
		}
	}
	return &reader.Chapter{
		ID:        "ch1",
		Title:     reader.Localized{De: "Der Hund", Es: "El perro"},
		BookTitle: reader.Localized{De: "Geschichten", Es: "Historias"},
		Segments:  segs,
	}
}

type fixture struct {
	srv      *Server
	ts       *httptest.Server
	writer   *state.Writer
	settings *state.SettingsStore
}

func newFixture(t *testing.T, mode state.ViewMode) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	backend, err := state.OpenSQLiteBackend(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	w := state.NewWriter(log, 16)
	settings := state.NewSettingsStore(backend, w, log)
	settings.Update(func(s *state.Settings) { s.ViewMode = mode })

	ch := testChapter()
	lib := loaderFunc(func(_ context.Context, book, chapter string) (*reader.Chapter, error) {
		if book != "kafka" {
			return nil, reader.ErrBookNotFound
		}
		if chapter != ch.ID {
			return nil, reader.ErrChapterNotFound
		}
		return ch, nil
	})
	srv := New(Options{
		Library:  lib,
		Progress: state.NewProgressStore(backend, w, log),
		Settings: settings,
		Tuning:   session.DefaultTuning(),
		Logger:   log,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		w.Close()
		backend.Close()
	})
	return &fixture{srv: srv, ts: ts, writer: w, settings: settings}
}

func (f *fixture) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

var screenAttr = regexp.MustCompile(`data-screen="([^"]+)"`)

func (f *fixture) open(t *testing.T) (string, string) {
	t.Helper()
	status, body := f.get(t, "/read/kafka/ch1")
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}
	m := screenAttr.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no screen id in page:\n%s", body)
	}
	return m[1], body
}

// readUntil reads text frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func([]byte) bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(data) {
			return
		}
	}
}

func TestReadImmersivePage(t *testing.T) {
	f := newFixture(t, state.Immersive)
	id, body := f.open(t)
	for _, want := range []string{
		fmt.Sprintf(`src="/surface/%s/0"`, id),
		fmt.Sprintf(`src="/surface/%s/19"`, id),
		`sandbox="allow-scripts"`,
		"Der Hund",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page lacks %s", want)
		}
	}
}

func TestReadParallelPage(t *testing.T) {
	f := newFixture(t, state.Parallel)
	_, body := f.open(t)
	if strings.Contains(body, "<iframe") {
		t.Error("parallel mode renders surfaces")
	}
	if !strings.Contains(body, "El perro 1") || !strings.Contains(body, "Der Hund 1") {
		t.Error("parallel mode lacks a side")
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, state.Immersive)
	for _, path := range []string{"/read/kafka/missing", "/read/nobody/ch1", "/surface/unknown/0"} {
		if status, _ := f.get(t, path); status != http.StatusNotFound {
			t.Errorf("%s: status = %d", path, status)
		}
	}
	id, _ := f.open(t)
	if status, _ := f.get(t, fmt.Sprintf("/surface/%s/99", id)); status != http.StatusNotFound {
		t.Errorf("paragraph 99: status = %d", status)
	}
}

func TestSurfaceDocument(t *testing.T) {
	f := newFixture(t, state.Immersive)
	id, _ := f.open(t)
	status, doc := f.get(t, fmt.Sprintf("/surface/%s/1", id))
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(doc, fmt.Sprintf(`data-endpoint="/ws/%s/1"`, id)) {
		t.Error("document lacks its endpoint")
	}
	if !strings.Contains(doc, `id="s-s4"`) {
		t.Error("document lacks segment s4")
	}
}

func TestSurfaceSocketReveal(t *testing.T) {
	f := newFixture(t, state.Immersive)
	id, _ := f.open(t)
	conn := f.dial(t, fmt.Sprintf("/ws/%s/0", id))

	tap, err := bridge.Encode(bridge.SegmentTap("s2"))
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, tap); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, func(data []byte) bool {
		c, err := bridge.DecodeCommand(data)
		return err == nil && c.Kind == bridge.KindApplyReveal && c.SegmentID == "s2"
	})

	// malformed input is dropped and the socket stays usable
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, tap); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, func(data []byte) bool {
		c, err := bridge.DecodeCommand(data)
		return err == nil && c.Kind == bridge.KindClearReveal
	})
}

func TestHostSocket(t *testing.T) {
	f := newFixture(t, state.Immersive)
	id, _ := f.open(t)
	host := f.dial(t, fmt.Sprintf("/ws/%s/host", id))

	if err := host.WriteJSON(map[string]any{"type": "scroll", "offset": 600}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, host, func(data []byte) bool {
		var cmd hostCommand
		return json.Unmarshal(data, &cmd) == nil && cmd.Type == "header" && cmd.Header.Percent == 20
	})

	if err := host.WriteJSON(map[string]any{"type": "settings", "settings": map[string]any{"viewMode": "parallel"}}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, host, func(data []byte) bool {
		var cmd hostCommand
		return json.Unmarshal(data, &cmd) == nil && cmd.Type == "reload"
	})
	if got := f.settings.Current().ViewMode; got != state.Parallel {
		t.Errorf("view mode = %q", got)
	}
}

func TestHostDisconnectUnmounts(t *testing.T) {
	f := newFixture(t, state.Immersive)
	id, _ := f.open(t)
	host := f.dial(t, fmt.Sprintf("/ws/%s/host", id))
	host.Close()

	deadline := time.Now().Add(3 * time.Second)
	for f.srv.lookup(id) != nil {
		if time.Now().After(deadline) {
			t.Fatal("screen still mounted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if status, _ := f.get(t, fmt.Sprintf("/surface/%s/0", id)); status != http.StatusNotFound {
		t.Errorf("status = %d after unmount", status)
	}
}

func TestCheckOrigin(t *testing.T) {
	for _, tc := range []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"null", true},
		{"http://reader.local:8080", true},
		{"http://evil.example", false},
	} {
		r := httptest.NewRequest(http.MethodGet, "http://reader.local:8080/ws/x/host", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := checkOrigin(r); got != tc.want {
			t.Errorf("origin %q: got %v", tc.origin, got)
		}
	}
}
