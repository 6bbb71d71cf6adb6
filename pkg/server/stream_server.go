// Package server exposes the extraction pipeline to a browser UI: feature
// frames and status events stream out over a WebSocket, and the client can
// start, stop, and calibrate the pipeline. The demo page is served as
// static files with caching disabled.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tractstream/tractstream/pkg/extractor"
	"github.com/tractstream/tractstream/pkg/pipeline"
	"github.com/tractstream/tractstream/pkg/projection"
)

// Controller is the slice of the coordinator the server drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	State() extractor.State
	SetCalibration(cal projection.Calibration)
}

// StreamConfig holds the configuration for the feature stream server.
type StreamConfig struct {
	// Addr is the address to listen on (e.g., ":8080").
	Addr string

	// Path is the WebSocket endpoint path (e.g., "/v1/stream").
	Path string

	// StaticDir is the directory of the demo UI to serve at "/".
	// Empty disables static hosting.
	StaticDir string

	// MaxSessionsPerIP limits sessions per IP address. 0 means no limit.
	MaxSessionsPerIP int

	// ReadBufferSize is the WebSocket read buffer size.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	WriteBufferSize int
}

// DefaultStreamConfig returns the default server configuration.
func DefaultStreamConfig() *StreamConfig {
	return &StreamConfig{
		Addr:             ":8080",
		Path:             "/v1/stream",
		MaxSessionsPerIP: 4,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
}

// outbound message types
type featureMessage struct {
	Type         string                       `json:"type"`
	Articulators projection.ArticulatoryFrame `json:"articulators"`
	PitchHz      float64                      `json:"pitch_hz"`
	LoudnessDbfs float64                      `json:"loudness_dbfs"`
	Fallback     bool                         `json:"fallback"`
	Demo         bool                         `json:"demo"`
	Seq          uint64                       `json:"seq"`
	TimestampMs  int64                        `json:"timestamp_ms"`
}

type statusMessage struct {
	Type  string `json:"type"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// inbound command
type clientCommand struct {
	Type        string                                       `json:"type"`
	Sensitivity float64                                      `json:"sensitivity,omitempty"`
	Offsets     map[projection.Articulator]projection.Point `json:"offsets,omitempty"`
}

type session struct {
	id   string
	ip   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// enqueue queues an outbound message, dropping it if the client lags.
func (s *session) enqueue(data []byte) {
	select {
	case s.send <- data:
	case <-s.done:
	default:
	}
}

// StreamServer streams feature frames to WebSocket clients.
type StreamServer struct {
	config     *StreamConfig
	controller Controller
	features   <-chan *pipeline.PipelineMessage
	bus        pipeline.Bus

	sessions   map[string]*session
	sessionsMu sync.RWMutex

	ipSessions   map[string]int
	ipSessionsMu sync.Mutex

	httpServer *http.Server
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamServer creates a server around a controller and its feature
// output channel. bus may be nil; status events are then limited to
// command acknowledgements.
func NewStreamServer(cfg *StreamConfig, controller Controller,
	features <-chan *pipeline.PipelineMessage, bus pipeline.Bus) *StreamServer {

	if cfg == nil {
		cfg = DefaultStreamConfig()
	}

	return &StreamServer{
		config:     cfg,
		controller: controller,
		features:   features,
		bus:        bus,
		sessions:   make(map[string]*session),
		ipSessions: make(map[string]int),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start begins listening and broadcasting. It returns once the listener is
// set up; serving continues in the background.
func (s *StreamServer) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleStream)
	if s.config.StaticDir != "" {
		mux.Handle("/", noStore(http.FileServer(http.Dir(s.config.StaticDir))))
	}

	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[Server] serve error: %v", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.broadcastLoop()
	}()

	log.Printf("[Server] listening on %s, stream at %s", s.config.Addr, s.config.Path)
	return nil
}

// Stop shuts the server down and closes all sessions.
func (s *StreamServer) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	s.sessionsMu.Lock()
	for _, sess := range s.sessions {
		sess.close()
	}
	s.sessionsMu.Unlock()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
	}

	s.wg.Wait()
	return nil
}

// broadcastLoop fans feature frames and bus events out to all sessions.
func (s *StreamServer) broadcastLoop() {
	var stateCh, errCh chan pipeline.Event
	if s.bus != nil {
		stateCh = make(chan pipeline.Event, 16)
		errCh = make(chan pipeline.Event, 16)
		s.bus.Subscribe(pipeline.EventStateChange, stateCh)
		s.bus.Subscribe(pipeline.EventError, errCh)
		defer s.bus.Unsubscribe(pipeline.EventStateChange, stateCh)
		defer s.bus.Unsubscribe(pipeline.EventError, errCh)
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg, ok := <-s.features:
			if !ok {
				return
			}
			if msg.Type != pipeline.MsgTypeFeature || msg.FeatureData == nil {
				continue
			}
			s.broadcastFeature(msg.FeatureData)

		case evt := <-stateCh:
			if payload, ok := evt.Payload.(pipeline.StateChangePayload); ok {
				s.broadcastStatus(payload.To, "")
			}

		case evt := <-errCh:
			if err, ok := evt.Payload.(error); ok {
				s.broadcastStatus("", err.Error())
			}
		}
	}
}

func (s *StreamServer) broadcastFeature(fd *pipeline.FeatureData) {
	data, err := json.Marshal(featureMessage{
		Type:         "features",
		Articulators: fd.Frame,
		PitchHz:      fd.PitchHz,
		LoudnessDbfs: fd.LoudnessDbfs,
		Fallback:     fd.Fallback,
		Demo:         fd.Demo,
		Seq:          fd.Seq,
		TimestampMs:  fd.Timestamp.UnixMilli(),
	})
	if err != nil {
		return
	}
	s.broadcast(data)
}

func (s *StreamServer) broadcastStatus(state, errMsg string) {
	data, err := json.Marshal(statusMessage{
		Type:  "status",
		State: state,
		Error: errMsg,
	})
	if err != nil {
		return
	}
	s.broadcast(data)
}

func (s *StreamServer) broadcast(data []byte) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	for _, sess := range s.sessions {
		sess.enqueue(data)
	}
}

// handleStream upgrades a client connection and runs its read/write loops.
func (s *StreamServer) handleStream(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if s.config.MaxSessionsPerIP > 0 {
		s.ipSessionsMu.Lock()
		if s.ipSessions[ip] >= s.config.MaxSessionsPerIP {
			s.ipSessionsMu.Unlock()
			http.Error(w, "too many sessions", http.StatusTooManyRequests)
			return
		}
		s.ipSessions[ip]++
		s.ipSessionsMu.Unlock()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] upgrade failed: %v", err)
		s.releaseIP(ip)
		return
	}

	sess := &session{
		id:   uuid.NewString(),
		ip:   ip,
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}

	s.sessionsMu.Lock()
	s.sessions[sess.id] = sess
	count := len(s.sessions)
	s.sessionsMu.Unlock()

	log.Printf("[Server] session %s connected from %s (%d active)", sess.id, ip, count)

	// Greet with the current state so a late joiner renders correctly.
	if data, err := json.Marshal(statusMessage{Type: "status", State: s.controller.State().String()}); err == nil {
		sess.enqueue(data)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.writeLoop(sess)
	}()
	go func() {
		defer s.wg.Done()
		s.readLoop(sess)
	}()
}

func (s *StreamServer) writeLoop(sess *session) {
	defer sess.close()
	for {
		select {
		case <-sess.done:
			return
		case data := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (s *StreamServer) readLoop(sess *session) {
	defer s.dropSession(sess)

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Printf("[Server] session %s sent invalid command: %v", sess.id, err)
			continue
		}
		s.handleCommand(sess, cmd)
	}
}

func (s *StreamServer) handleCommand(sess *session, cmd clientCommand) {
	switch cmd.Type {
	case "start":
		if err := s.controller.Start(s.ctx); err != nil {
			log.Printf("[Server] start failed: %v", err)
			if data, merr := json.Marshal(statusMessage{Type: "status", Error: err.Error()}); merr == nil {
				sess.enqueue(data)
			}
		}
	case "stop":
		if err := s.controller.Stop(); err != nil {
			log.Printf("[Server] stop failed: %v", err)
		}
	case "calibrate":
		s.controller.SetCalibration(projection.Calibration{
			Sensitivity: cmd.Sensitivity,
			Offsets:     cmd.Offsets,
		})
	default:
		log.Printf("[Server] session %s sent unknown command %q", sess.id, cmd.Type)
	}
}

func (s *StreamServer) dropSession(sess *session) {
	sess.close()

	s.sessionsMu.Lock()
	delete(s.sessions, sess.id)
	count := len(s.sessions)
	s.sessionsMu.Unlock()

	s.releaseIP(sess.ip)
	log.Printf("[Server] session %s disconnected (%d active)", sess.id, count)
}

func (s *StreamServer) releaseIP(ip string) {
	if s.config.MaxSessionsPerIP <= 0 {
		return
	}
	s.ipSessionsMu.Lock()
	if s.ipSessions[ip] > 0 {
		s.ipSessions[ip]--
	}
	if s.ipSessions[ip] == 0 {
		delete(s.ipSessions, ip)
	}
	s.ipSessionsMu.Unlock()
}

// noStore serves static files with caching disabled and permissive CORS,
// so a locally hosted demo page always reloads fresh model/UI assets.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
