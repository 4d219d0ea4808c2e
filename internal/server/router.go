package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/procwatch/internal/detector"
	"github.com/loykin/procwatch/internal/history"
	"github.com/loykin/procwatch/internal/monitor"
)

// Router exposes one monitor over HTTP.
// Endpoints:
//
//	GET  {basePath}/healthz              liveness of the watchdog itself
//	GET  {basePath}/status               status file, last pass, launched PID
//	GET  {basePath}/history?limit=20     recent passes (readable sinks only)
//	POST {basePath}/check                run one pass now
//	GET  {basePath}/metrics              Prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mon      *monitor.Monitor
	metrics  http.Handler
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// metrics may be nil, in which case /metrics is not mounted.
func NewRouter(mon *monitor.Monitor, metrics http.Handler, basePath string) *Router {
	return &Router{mon: mon, metrics: metrics, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/status", r.handleStatus)
	group.GET("/history", r.handleHistory)
	group.POST("/check", r.handleCheck)
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer builds an HTTP server for this router. The caller runs
// ListenAndServe and Shutdown.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a check may wait out the kill grace period
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type reportResp struct {
	Target         string     `json:"target"`
	At             time.Time  `json:"at"`
	ProcessRunning bool       `json:"process_running"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
	IdleSeconds    float64    `json:"idle_seconds"`
	Healthy        bool       `json:"healthy"`
	Reason         string     `json:"reason,omitempty"`
	Action         string     `json:"action"`
	Restart        *restart   `json:"restart,omitempty"`
	Status         string     `json:"status"`
	Message        string     `json:"message,omitempty"`
	ExitCode       int        `json:"exit_code"`
}

type restart struct {
	Succeeded  bool   `json:"succeeded"`
	Message    string `json:"message"`
	Strategy   string `json:"strategy,omitempty"`
	PID        int    `json:"pid,omitempty"`
	Terminated int    `json:"terminated"`
}

func toReportResp(r monitor.Report) reportResp {
	out := reportResp{
		Target:         r.Target,
		At:             r.At.UTC(),
		ProcessRunning: r.Signal.ProcessRunning,
		Healthy:        r.Verdict.Healthy,
		Reason:         r.Verdict.Reason,
		Action:         r.Action,
		Status:         string(r.Status),
		Message:        r.Message,
		ExitCode:       r.ExitCode,
	}
	if r.Signal.HasActivity {
		t := r.Signal.LastActivity.UTC()
		out.LastActivity = &t
		out.IdleSeconds = r.Verdict.Idle.Seconds()
	}
	if o := r.Outcome; o != nil {
		out.Restart = &restart{Succeeded: o.Succeeded, Message: o.Message, Strategy: o.Strategy, PID: o.PID, Terminated: o.Terminated}
	}
	return out
}

type statusResp struct {
	Target      string                     `json:"target"`
	Status      string                     `json:"status,omitempty"`
	LastCheck   *time.Time                 `json:"last_check,omitempty"`
	LastMessage string                     `json:"last_message,omitempty"`
	Extra       map[string]json.RawMessage `json:"extra,omitempty"`
	LaunchedPID int                        `json:"launched_pid,omitempty"`
	LaunchedUp  bool                       `json:"launched_alive"`
	LastPass    *reportResp                `json:"last_pass,omitempty"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := statusResp{Target: r.mon.Name()}
	rec, err := r.mon.Recorder().Load()
	switch {
	case err == nil:
		resp.Status = string(rec.Status)
		if !rec.LastCheck.IsZero() {
			t := rec.LastCheck
			resp.LastCheck = &t
		}
		resp.LastMessage = rec.LastMessage
		resp.Extra = rec.Extra
	case errors.Is(err, fs.ErrNotExist):
		// no pass recorded yet
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}

	if pf := r.mon.PIDFile(); pf != "" {
		d := detector.PIDFileDetector{PIDFile: pf}
		if pid, _, err := d.ReadPID(); err == nil {
			resp.LaunchedPID = pid
			resp.LaunchedUp, _ = d.Alive()
		}
	}
	if last, ok := r.mon.Last(); ok {
		lr := toReportResp(last)
		resp.LastPass = &lr
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleHistory(c *gin.Context) {
	reader, ok := r.mon.History().(history.Reader)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "history is not enabled or its backend cannot be queried"})
		return
	}
	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be an integer in 1..1000"})
			return
		}
		limit = n
	}
	events, err := reader.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}

func (r *Router) handleCheck(c *gin.Context) {
	rep := r.mon.Run(c.Request.Context())
	writeJSON(c, http.StatusOK, toReportResp(rep))
}
