// Package api serves live metrics, control commands, stored sessions and
// recordings over HTTP and WebSocket.
package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/erg.report/internal/db"
	"github.com/banshee-data/erg.report/internal/fsutil"
	"github.com/banshee-data/erg.report/internal/httputil"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/session"
	"github.com/banshee-data/erg.report/internal/statistics"
	"github.com/banshee-data/erg.report/internal/version"
	"github.com/banshee-data/erg.report/internal/workout"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const (
	defaultCommandTimeout = time.Second
	defaultSessionLimit   = 50
	maxSessionLimit       = 1000
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBusy           = errors.New("session is not accepting commands")
)

// Source is the live session the server reports on.
type Source interface {
	Last() statistics.Metrics
	Subscribe() (string, <-chan statistics.Metrics)
	Unsubscribe(id string)
}

// Options wire the server to the rest of the monitor. DB may be nil, which
// disables the session history routes.
type Options struct {
	Source         Source
	Commands       chan<- session.Command
	DB             *db.DB
	RecordingDir   string
	FS             fsutil.FileSystem
	CommandTimeout time.Duration
}

type Server struct {
	source         Source
	commands       chan<- session.Command
	db             *db.DB
	recordingDir   string
	fsys           fsutil.FileSystem
	commandTimeout time.Duration
}

func NewServer(opts Options) *Server {
	s := &Server{
		source:         opts.Source,
		commands:       opts.Commands,
		db:             opts.DB,
		recordingDir:   opts.RecordingDir,
		fsys:           opts.FS,
		commandTimeout: opts.CommandTimeout,
	}
	if s.fsys == nil {
		s.fsys = fsutil.OSFileSystem{}
	}
	if s.commandTimeout <= 0 {
		s.commandTimeout = defaultCommandTimeout
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack hands the connection to WebSocket upgrades.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Infof(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/metrics", s.showMetrics)
	mux.HandleFunc("POST /api/command", s.sendCommand)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.showSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.deleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/strokes", s.listStrokes)
	mux.HandleFunc("GET /api/charts/force", s.forceChart)
	mux.HandleFunc("GET /api/charts/session.png", s.sessionChart)
	mux.HandleFunc("GET /api/recordings", s.listRecordings)
	mux.HandleFunc("GET /api/recordings/{name}", s.downloadRecording)
	mux.HandleFunc("GET /api/version", s.showVersion)
	return mux
}

func (s *Server) showMetrics(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.source.Last())
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Get())
}

// Dispatch validates cmd and hands it to the session loop.
func (s *Server) Dispatch(ctx context.Context, cmd session.Command) error {
	if !cmd.Name.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
	if cmd.Name == session.CmdUpdateIntervalSettings {
		if err := workout.ValidatePlan(cmd.Intervals); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()
	select {
	case s.commands <- cmd:
		monitoring.Infof("api: command %s accepted", cmd.Name)
		return nil
	case <-ctx.Done():
		return ErrBusy
	}
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	var cmd session.Command
	if err := httputil.DecodeJSON(r, &cmd); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	switch err := s.Dispatch(r.Context(), cmd); {
	case errors.Is(err, ErrBusy):
		httputil.ServiceUnavailable(w, err.Error())
	case err != nil:
		httputil.BadRequest(w, err.Error())
	default:
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"command": string(cmd.Name)})
	}
}

// requireDB writes 503 when no database is configured.
func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "session history is disabled")
		return false
	}
	return true
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit := defaultSessionLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxSessionLimit {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	sessions, err := s.db.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

// sessionOrError looks up the {id} session, writing the error response when
// it cannot.
func (s *Server) sessionOrError(w http.ResponseWriter, r *http.Request) (db.Session, bool) {
	if !s.requireDB(w) {
		return db.Session{}, false
	}
	sess, err := s.db.Session(r.PathValue("id"))
	switch {
	case errors.Is(err, db.ErrSessionNotFound):
		httputil.NotFound(w, err.Error())
		return db.Session{}, false
	case err != nil:
		httputil.InternalServerError(w, err.Error())
		return db.Session{}, false
	}
	return sess, true
}

// sessionDetail is a session with its laps.
type sessionDetail struct {
	db.Session
	Laps []db.Lap `json:"laps"`
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	laps, err := s.db.Laps(sess.ID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if laps == nil {
		laps = []db.Lap{}
	}
	httputil.WriteJSONOK(w, sessionDetail{Session: sess, Laps: laps})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteSession(sess.ID); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listStrokes(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionOrError(w, r)
	if !ok {
		return
	}
	strokes, err := s.db.Strokes(sess.ID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if strokes == nil {
		strokes = []db.Stroke{}
	}
	httputil.WriteJSONOK(w, strokes)
}
