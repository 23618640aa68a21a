package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/archivist/internal/archiver"
	"github.com/loykin/archivist/internal/auth"
	"github.com/loykin/archivist/internal/store"
)

// Router provides embeddable HTTP handlers for the archiver registry.
// Endpoints:
//
//	GET    {basePath}/healthz
//	POST   {basePath}/auth/login       body: {"username","password"} (auth enabled only)
//	GET    {basePath}/archivers        query: limit=n
//	POST   {basePath}/archivers        body: {"node_name"?, "node_host"}
//	GET    {basePath}/archivers/:id    query: format=tuple (optional)
//	DELETE {basePath}/archivers/:id
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	repo     *archiver.Repository
	basePath string
	auth     *auth.AuthService
	logger   *slog.Logger
}

type RouterOption func(*Router)

// WithAuth guards the archiver endpoints with s. A nil service leaves them open.
func WithAuth(s *auth.AuthService) RouterOption {
	return func(r *Router) { r.auth = s }
}

func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/archivers, /api/healthz.
func NewRouter(repo *archiver.Repository, basePath string, opts ...RouterOption) *Router {
	r := &Router{repo: repo, basePath: sanitizeBase(basePath), logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.requestLog())
	mw := auth.NewMiddleware(r.auth)

	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	if r.auth != nil {
		group.POST("/auth/login", r.handleLogin)
	}

	api := group.Group("/archivers", mw.GinAuth())
	api.GET("", mw.GinRequirePermission(auth.ActionRead), r.handleList)
	api.POST("", mw.GinRequirePermission(auth.ActionWrite), r.handleAdd)
	api.GET("/:id", mw.GinRequirePermission(auth.ActionRead), r.handleGet)
	api.DELETE("/:id", mw.GinRequirePermission(auth.ActionWrite), r.handleRemove)
	return g
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type addReq struct {
	NodeName string `json:"node_name"`
	NodeHost string `json:"node_host"`
}

type addResp struct {
	NodeID int64 `json:"node_id"`
}

func (r *Router) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := r.repo.Ping(ctx); err != nil {
		r.logger.Warn("health check failed", "error", err)
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	tok, err := r.auth.Login(req.Username, req.Password)
	if err != nil {
		writeJSON(c, http.StatusUnauthorized, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, tok)
}

func (r *Router) handleGet(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	a, err := r.repo.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if a == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "archiver not found"})
		return
	}
	tup, err := archiver.ToResponse(a, archiver.ArchiverShape)
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("format") == "tuple" {
		writeJSON(c, http.StatusOK, tup)
		return
	}
	writeJSON(c, http.StatusOK, tup.Record(archiver.ArchiverShape))
}

func (r *Router) handleAdd(c *gin.Context) {
	var req addReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	id, err := r.repo.Add(c.Request.Context(), req.NodeName, req.NodeHost)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, addResp{NodeID: id})
}

func (r *Router) handleRemove(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	// look the row up first so the removal event carries name and host
	a, err := r.repo.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if a == nil {
		a = &store.Archiver{NodeID: id}
	}
	if err := r.repo.Remove(ctx, a); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleList(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	all, err := r.repo.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]map[string]any, 0, len(all))
	for i := range all {
		tup, err := archiver.ToResponse(&all[i], archiver.ArchiverShape)
		if err != nil {
			writeError(c, err)
			return
		}
		out = append(out, tup.Record(archiver.ArchiverShape))
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid archiver id: " + c.Param("id")})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, archiver.ErrInvalidArgument), errors.Is(err, archiver.ErrInvalidHost):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
