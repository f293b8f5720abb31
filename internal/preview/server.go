// Package preview streams live frames to a browser over a websocket and
// takes resize and export requests back.
package preview

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/ivlev/scenereel/internal/exporter"
	"github.com/ivlev/scenereel/internal/loop"
	"github.com/ivlev/scenereel/internal/raster"
)

const writeWait = 5 * time.Second

// Message is what the page sends over the socket.
type Message struct {
	Type   string  `json:"type"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	DPR    float64 `json:"dpr,omitempty"`
}

// Event is what the server sends back besides frames.
type Event struct {
	Type   string `json:"type"`
	Kind   string `json:"kind,omitempty"`
	Path   string `json:"path,omitempty"`
	Frames int    `json:"frames,omitempty"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ArtifactURL serves the video of the last successful export.
const ArtifactURL = "/artifact"

type Options struct {
	// Resize is called from connection goroutines; it must hand the
	// viewport to the render loop rather than apply it.
	Resize      func(loop.Viewport)
	Export      func(ctx context.Context) exporter.Result
	JPEGQuality int
	Logger      *slog.Logger
}

type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	baseCtx context.Context

	artifact     []byte
	artifactName string
	artifactTime time.Time
}

type client struct {
	conn   *websocket.Conn
	frames chan []byte
	events chan []byte
	done   chan struct{}
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}
	return &Server{
		opts:    opts,
		logger:  opts.Logger,
		clients: map[*client]struct{}{},
		baseCtx: context.Background(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /export", s.handleExport)
	mux.HandleFunc("GET "+ArtifactURL, s.handleArtifact)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("preview listening", "url", "http://"+addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ctx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// Clients reports how many sockets are connected.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Presenter captures the surface for connected clients after each live
// draw. With no clients it does nothing.
func (s *Server) Presenter() loop.Presenter {
	return func(r *raster.Renderer) {
		if s.Clients() == 0 {
			return
		}
		data, err := r.Capture("jpeg", s.opts.JPEGQuality)
		if err != nil {
			s.logger.Warn("preview capture failed", "err", err)
			return
		}
		s.Broadcast(data)
	}
}

// Broadcast queues frame for every client. A client still sending the
// previous frame gets this one instead; frames are never queued deeper.
func (s *Server) Broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.frames <- frame:
		default:
			select {
			case <-c.frames:
			default:
			}
			select {
			case c.frames <- frame:
			default:
			}
		}
	}
}

func (s *Server) broadcastEvent(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("cannot encode event", "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.events <- data:
		default:
			s.logger.Warn("dropping event for slow client", "type", ev.Type)
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &client{
		conn:   conn,
		frames: make(chan []byte, 1),
		events: make(chan []byte, 8),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("preview client connected", "remote", r.RemoteAddr)

	go s.writeLoop(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	close(c.done)
	conn.Close()
	s.logger.Info("preview client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read", "err", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("bad preview message", "err", err)
			continue
		}
		s.handleMessage(msg)
	}
}

func (s *Server) handleMessage(msg Message) {
	switch msg.Type {
	case "resize":
		if s.opts.Resize != nil {
			s.opts.Resize(loop.Viewport{Width: msg.Width, Height: msg.Height, DPR: msg.DPR})
		}
	case "export":
		go func() {
			s.broadcastEvent(s.resultEvent(s.export(s.ctx())))
		}()
	default:
		s.logger.Warn("unknown preview message", "type", msg.Type)
	}
}

func (s *Server) writeLoop(c *client) {
	for {
		var (
			typ  int
			data []byte
		)
		select {
		case <-c.done:
			return
		case data = <-c.events:
			typ = websocket.TextMessage
		case data = <-c.frames:
			typ = websocket.BinaryMessage
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(typ, data); err != nil {
			s.logger.Debug("websocket write", "err", err)
			c.conn.Close()
			return
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}

// export runs one export and keeps a successful result's video for
// download.
func (s *Server) export(ctx context.Context) exporter.Result {
	if s.opts.Export == nil {
		return exporter.Result{Kind: exporter.Failed, Err: errors.New("export not available")}
	}
	res := s.opts.Export(ctx)
	if res.OK() && len(res.Data) > 0 {
		name := filepath.Base(res.Path)
		if res.Path == "" {
			name = "animation.mp4"
		}
		s.mu.Lock()
		s.artifact, s.artifactName, s.artifactTime = res.Data, name, time.Now()
		s.mu.Unlock()
	}
	return res
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, name, mod := s.artifact, s.artifactName, s.artifactTime
	s.mu.Unlock()
	if data == nil {
		http.Error(w, "nothing exported yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, mod, bytes.NewReader(data))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	res := s.export(r.Context())
	status := http.StatusOK
	switch res.Kind {
	case exporter.Success:
	case exporter.Busy:
		status = http.StatusConflict
	case exporter.EncoderNotReady:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	ev := s.resultEvent(res)
	s.broadcastEvent(ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ev)
}

func (s *Server) resultEvent(res exporter.Result) Event {
	ev := Event{Type: "exported", Kind: res.Kind.String(), Path: res.Path, Frames: res.Frames}
	if res.OK() && len(res.Data) > 0 {
		ev.URL = ArtifactURL
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	return ev
}
