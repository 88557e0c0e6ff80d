package http

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/memoracle/memoracle"
	"github.com/memoracle/memoracle/crawl"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

// DefaultPort is the loopback port the worker API listens on.
const DefaultPort = 7432

// Server exposes the engine over the loopback worker API.
type Server struct {
	// ExportDir is where the export endpoint writes markdown trees.
	ExportDir string

	engine  *crawl.Engine
	logger  *slog.Logger
	httpSrv *http.Server
}

// NewServer creates a Server around an engine.
func NewServer(engine *crawl.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// Handler builds the route table. CORS is open to any origin and
// preflight requests are answered globally by the middleware.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", s.handleHealth)
	r.POST("/index", s.handleIndex)
	r.POST("/retrieve", s.handleRetrieve)
	r.GET("/status", s.handleStatus)
	r.GET("/docset/:id", s.handleGetDocset)
	r.DELETE("/docset/:id", s.handleDeleteDocset)
	r.GET("/docset/:id/pages", s.handleListPages)
	r.GET("/docset/:id/export", s.handleExport)
	r.POST("/refresh", s.handleRefresh)
	r.POST("/refresh-all", s.handleRefreshAll)

	return r
}

// corsMiddleware allows any origin. Clients are code assistants and the
// local search UI, so there is nothing to restrict on a loopback
// listener.
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
	})
}

// ListenAndServe runs the server until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("worker API listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

type indexRequest struct {
	BaseURL      string   `json:"baseUrl"`
	SeedSlug     string   `json:"seedSlug"`
	Name         string   `json:"name,omitempty"`
	AllowedPaths []string `json:"allowedPaths,omitempty"`
	WaitForSeed  bool     `json:"waitForSeed,omitempty"`
}

func (s *Server) handleIndex(c *gin.Context) {
	var req indexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, memoracle.Errorf(memoracle.EINVALID, "invalid request body: %v", err))
		return
	}
	if req.BaseURL == "" {
		writeError(c, memoracle.Errorf(memoracle.EINVALID, "baseUrl required"))
		return
	}

	docset, err := s.engine.IndexDocset(c.Request.Context(), crawl.IndexInput{
		BaseURL:      req.BaseURL,
		SeedSlug:     req.SeedSlug,
		Name:         req.Name,
		AllowedPaths: req.AllowedPaths,
	}, req.WaitForSeed)
	if err != nil {
		writeError(c, err)
		return
	}

	seedIndexed := false
	if seed, err := s.engine.Pages.FindPageByURL(c.Request.Context(), docset.ID, docset.SeedURL()); err == nil {
		seedIndexed = seed.Status == memoracle.PageIndexed
	}

	c.JSON(http.StatusOK, gin.H{
		"docsetId":    docset.ID,
		"status":      docset.Status,
		"seedIndexed": seedIndexed,
	})
}

type retrieveRequest struct {
	Query            string   `json:"query"`
	DocsetIDs        []string `json:"docsetIds,omitempty"`
	TopK             int      `json:"topK,omitempty"`
	MaxChunksPerPage int      `json:"maxChunksPerPage,omitempty"`
	MaxTotalChars    int      `json:"maxTotalChars,omitempty"`
	FormatSnippets   *bool    `json:"formatSnippets,omitempty"`
}

func (s *Server) handleRetrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, memoracle.Errorf(memoracle.EINVALID, "invalid request body: %v", err))
		return
	}
	if req.Query == "" {
		writeError(c, memoracle.Errorf(memoracle.EINVALID, "query required"))
		return
	}

	formatSnippets := true
	if req.FormatSnippets != nil {
		formatSnippets = *req.FormatSnippets
	}

	results, err := s.engine.Search(c.Request.Context(), req.Query, memoracle.SearchOptions{
		DocsetIDs:        req.DocsetIDs,
		TopK:             req.TopK,
		MaxChunksPerPage: req.MaxChunksPerPage,
		MaxTotalChars:    req.MaxTotalChars,
		FormatSnippets:   formatSnippets,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	totalChars := 0
	truncated := false
	for _, res := range results {
		if res.Snippet != nil {
			totalChars += res.Snippet.CharCount
			if strings.HasSuffix(res.Snippet.Content, "…") {
				truncated = true
			}
		} else {
			totalChars += len(res.Content)
		}
	}

	if results == nil {
		results = []memoracle.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{
		"results":    results,
		"query":      req.Query,
		"totalChars": totalChars,
		"truncated":  truncated,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	includeStuck := c.Query("includeStuck") == "true"

	filter := memoracle.DocsetFilter{}
	if id := c.Query("docsetId"); id != "" {
		filter.ID = &id
	}
	docsets, err := s.engine.Docsets.FindDocsets(ctx, filter)
	if err != nil {
		writeError(c, err)
		return
	}

	type docsetStatus struct {
		*memoracle.Docset
		IndexStatus *memoracle.IndexStatus `json:"indexStatus"`
		StuckPages  []*memoracle.Page      `json:"stuckPages,omitempty"`
	}

	out := make([]docsetStatus, 0, len(docsets))
	for _, docset := range docsets {
		status, err := s.engine.Docsets.IndexStatus(ctx, docset.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		entry := docsetStatus{Docset: docset, IndexStatus: status}
		if includeStuck {
			cutoff := time.Now().UTC().Add(-s.engine.Options.StuckThreshold)
			stuck, err := s.engine.Pages.FindStuckPages(ctx, docset.ID, cutoff)
			if err != nil {
				writeError(c, err)
				return
			}
			entry.StuckPages = stuck
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{"docsets": out})
}

func (s *Server) handleGetDocset(c *gin.Context) {
	docset, err := s.engine.Docsets.FindDocsetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, docset)
}

func (s *Server) handleDeleteDocset(c *gin.Context) {
	if err := s.engine.DeleteDocset(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleListPages(c *gin.Context) {
	id := c.Param("id")
	filter := memoracle.PageFilter{DocsetID: &id}

	if status := c.Query("status"); status != "" {
		ps := memoracle.PageStatus(status)
		filter.Status = &ps
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	pages, err := s.engine.Pages.FindPages(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if pages == nil {
		pages = []*memoracle.Page{}
	}
	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

func (s *Server) handleExport(c *gin.Context) {
	dir := s.ExportDir
	if dir == "" {
		dir = filepath.Join(".", "export")
	}

	result, err := s.engine.ExportDocset(c.Request.Context(), c.Param("id"), dir)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type refreshRequest struct {
	DocsetID    string `json:"docsetId,omitempty"`
	Force       bool   `json:"force,omitempty"`
	MaxAgeMs    int64  `json:"maxAge,omitempty"`
	FullReindex bool   `json:"fullReindex,omitempty"`
}

func (r refreshRequest) options() crawl.RefreshOptions {
	return crawl.RefreshOptions{
		Force:       r.Force,
		MaxAge:      time.Duration(r.MaxAgeMs) * time.Millisecond,
		FullReindex: r.FullReindex,
	}
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, memoracle.Errorf(memoracle.EINVALID, "invalid request body: %v", err))
		return
	}
	if req.DocsetID == "" {
		writeError(c, memoracle.Errorf(memoracle.EINVALID, "docsetId required"))
		return
	}

	plan, err := s.engine.RefreshDocset(c.Request.Context(), req.DocsetID, req.options())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) handleRefreshAll(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, memoracle.Errorf(memoracle.EINVALID, "invalid request body: %v", err))
		return
	}

	plans, err := s.engine.RefreshAll(c.Request.Context(), req.options())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docsets": plans})
}

// writeError maps application error codes onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch memoracle.ErrorCode(err) {
	case memoracle.EINVALID:
		status = http.StatusBadRequest
	case memoracle.ENOTFOUND:
		status = http.StatusNotFound
	case memoracle.ECONFLICT:
		status = http.StatusConflict
	case memoracle.EUNAVAILABLE:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": memoracle.ErrorMessage(err)})
}
