// Package web hosts reading screens in a browser. Every paragraph surface is
// a sandboxed iframe that talks to its screen over a websocket.
package web

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/metcalfc/bivium/internal/bridge"
	"github.com/metcalfc/bivium/internal/clock"
	"github.com/metcalfc/bivium/internal/reader"
	"github.com/metcalfc/bivium/internal/session"
	"github.com/metcalfc/bivium/internal/state"
)

//go:embed assets/host.html
var hostPage string

var hostTemplate = template.Must(template.New("host").Parse(hostPage))

// DefaultConnectTimeout is how long a mounted screen waits for its host page
// to connect before it is dropped.
const DefaultConnectTimeout = 30 * time.Second

const shutdownTimeout = 10 * time.Second

type Options struct {
	Library  session.Loader
	Progress *state.ProgressStore
	Settings *state.SettingsStore
	Tuning   session.Tuning
	Clock    clock.Clock
	Logger   *zap.Logger
	// Fresh skips restoring saved positions on every screen.
	Fresh          bool
	ConnectTimeout time.Duration
}

// Server routes host pages, surface documents and bridge sockets to the
// screens it mounted.
type Server struct {
	opts     Options
	log      *zap.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu      sync.Mutex
	screens map[string]*entry
	closed  bool
}

type entry struct {
	id     string
	screen *session.Screen
	view   *hostView
	reaper clock.Timer
}

func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		opts:    opts,
		log:     log.Named("web"),
		engine:  gin.New(),
		screens: make(map[string]*entry),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
	s.engine.Use(gin.Recovery(), s.logRequests())
	s.engine.SetHTMLTemplate(hostTemplate)
	s.engine.GET("/read/:book/:chapter", s.read)
	s.engine.GET("/surface/:screen/:para", s.surface)
	// :para is a paragraph index or "host"
	s.engine.GET("/ws/:screen/:para", s.socket)
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.engine }

// checkOrigin accepts same-host pages and sandboxed iframes, whose origin is
// opaque.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) read(c *gin.Context) {
	book, chapter := c.Param("book"), c.Param("chapter")
	id := uuid.NewString()
	view := newHostView(s.log.With(zap.String("screen", id)))

	scr, err := session.Mount(c.Request.Context(), session.Options{
		BookID:    book,
		ChapterID: chapter,
		Loader:    s.opts.Library,
		Progress:  s.opts.Progress,
		Settings:  s.opts.Settings,
		View:      view,
		Clock:     s.opts.Clock,
		Logger:    s.log.With(zap.String("screen", id)),
		Fresh:     s.opts.Fresh || c.Query("fresh") != "",
		Tuning:    s.opts.Tuning,
		Endpoint:  func(i int) string { return fmt.Sprintf("/ws/%s/%d", id, i) },
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reader.ErrBookNotFound) || errors.Is(err, reader.ErrChapterNotFound) {
			status = http.StatusNotFound
		}
		s.log.Warn("Unable to open chapter", zap.String("book", book), zap.String("chapter", chapter), zap.Error(err))
		c.String(status, "Kapitel konnte nicht geladen werden")
		return
	}

	e := &entry{id: id, screen: scr, view: view}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		scr.Close()
		c.String(http.StatusServiceUnavailable, "shutting down")
		return
	}
	s.screens[id] = e
	e.reaper = s.opts.Clock.AfterFunc(s.opts.ConnectTimeout, func() {
		if !view.isConnected() {
			s.log.Debug("Host page never connected", zap.String("screen", id))
			s.drop(id)
		}
	})
	s.mu.Unlock()

	c.HTML(http.StatusOK, "host", newPage(id, scr, s.opts.Tuning))
}

func (s *Server) lookup(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screens[id]
}

// paragraph resolves the screen and paragraph of a surface request.
func (s *Server) paragraph(c *gin.Context) (*entry, int, bool) {
	e := s.lookup(c.Param("screen"))
	if e == nil {
		c.String(http.StatusNotFound, "unknown screen")
		return nil, 0, false
	}
	idx, err := strconv.Atoi(c.Param("para"))
	if err != nil || idx < 0 || idx >= len(e.screen.Paragraphs()) {
		c.String(http.StatusNotFound, "unknown paragraph")
		return nil, 0, false
	}
	return e, idx, true
}

func (s *Server) surface(c *gin.Context) {
	e, idx, ok := s.paragraph(c)
	if !ok {
		return
	}
	doc, err := e.screen.Document(idx)
	if err != nil {
		s.log.Warn("Unable to build surface document", zap.Int("paragraph", idx), zap.Error(err))
		c.String(http.StatusInternalServerError, "surface unavailable")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", doc)
}

func (s *Server) socket(c *gin.Context) {
	if c.Param("para") == "host" {
		s.hostSocket(c)
		return
	}
	e, idx, ok := s.paragraph(c)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	tr := bridge.NewWSTransport(conn)
	if _, err := e.screen.Attach(idx, tr); err != nil {
		s.log.Debug("Unable to attach surface", zap.Int("paragraph", idx), zap.Error(err))
		tr.Close()
	}
}

func (s *Server) hostSocket(c *gin.Context) {
	e := s.lookup(c.Param("screen"))
	if e == nil {
		c.String(http.StatusNotFound, "unknown screen")
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	tr := bridge.NewWSTransport(conn)
	if !e.view.connect() {
		s.log.Debug("Host page already connected", zap.String("screen", e.id))
		tr.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go e.view.writeLoop(ctx, tr)
	e.view.SetHeader(e.screen.Header())
	for {
		data, err := tr.Receive(ctx)
		if err != nil {
			break
		}
		s.handleHost(e, data)
	}
	cancel()
	tr.Close()
	s.drop(e.id)
}

// drop unmounts a screen.
func (s *Server) drop(id string) {
	s.mu.Lock()
	e := s.screens[id]
	delete(s.screens, id)
	s.mu.Unlock()
	if e == nil {
		return
	}
	e.reaper.Stop()
	if err := e.screen.Close(); err != nil {
		s.log.Debug("Screen closed with errors", zap.String("screen", id), zap.Error(err))
	}
}

// Close unmounts every screen. The final reading positions are saved.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	entries := make([]*entry, 0, len(s.screens))
	for _, e := range s.screens {
		entries = append(entries, e)
	}
	s.screens = map[string]*entry{}
	s.mu.Unlock()

	var err error
	for _, e := range entries {
		e.reaper.Stop()
		err = multierr.Append(err, e.screen.Close())
	}
	return err
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("Serving", zap.String("address", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return multierr.Append(err, s.Close())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	return multierr.Append(err, s.Close())
}
