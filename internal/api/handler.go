package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-shelter-coverage/internal/analysis"
	"github.com/mr1hm/go-shelter-coverage/internal/broadcast"
	"github.com/mr1hm/go-shelter-coverage/internal/models"
	"github.com/mr1hm/go-shelter-coverage/internal/repository"
)

const (
	maxSessionIDLen = 128
	maxPageSize     = 10000
)

type Handler struct {
	svc         *analysis.Service
	repo        repository.DatasetRepository
	broadcaster *broadcast.Broadcaster
}

func NewHandler(svc *analysis.Service, repo repository.DatasetRepository, broadcaster *broadcast.Broadcaster) *Handler {
	return &Handler{
		svc:         svc,
		repo:        repo,
		broadcaster: broadcaster,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/analyze", h.analyze)
	r.GET("/api/sessions/:id", h.getSession)
	r.PUT("/api/sessions/:id/shape", h.drawShape)
	r.DELETE("/api/sessions/:id/shape", h.clearShape)
	r.GET("/api/sessions/:id/events", h.streamEvents)
	r.GET("/api/areas", h.getAreas)
	r.GET("/api/shelters", h.getShelters)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type analysisResponse struct {
	Shape  *shapeResponse        `json:"shape"`
	Result models.AnalysisResult `json:"result"`
}

type sessionResponse struct {
	Session   string                `json:"session"`
	Active    bool                  `json:"active"`
	Shape     *shapeResponse        `json:"shape"`
	Result    models.AnalysisResult `json:"result"`
	UpdatedAt *time.Time            `json:"updated_at,omitempty"`
}

func (h *Handler) analyze(c *gin.Context) {
	var req shapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shape: " + err.Error()})
		return
	}
	shape, err := req.toShape()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, analysisResponse{
		Shape:  toShapeResponse(shape),
		Result: h.svc.Analyze(shape),
	})
}

func (h *Handler) getSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(id, h.svc.State(id)))
}

func (h *Handler) drawShape(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req shapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shape: " + err.Error()})
		return
	}
	shape, err := req.toShape()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(id, h.svc.Draw(id, shape)))
}

func (h *Handler) clearShape(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(id, h.svc.Clear(id)))
}

// streamEvents sends the session's result and cleared events as
// server-sent events until the client goes away or the broadcaster closes.
func (h *Handler) streamEvents(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream not available"})
		return
	}

	subID, events := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(subID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Session != id {
				continue
			}
			c.SSEvent(string(ev.Kind), ev)
			c.Writer.Flush()
		}
	}
}

func (h *Handler) getAreas(c *gin.Context) {
	offset, limit, ok := page(c)
	if !ok {
		return
	}

	areas := window(h.svc.Dataset().Areas, offset, limit)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, areasToGeoJSON(areas, h.svc.Engine().Areas))
}

func (h *Handler) getShelters(c *gin.Context) {
	offset, limit, ok := page(c)
	if !ok {
		return
	}

	shelters := window(h.svc.Dataset().Shelters, offset, limit)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, sheltersToGeoJSON(shelters, h.svc.Engine().Shelters))
}

func (h *Handler) health(c *gin.Context) {
	ds := h.svc.Dataset()
	resp := gin.H{
		"status":   "ok",
		"areas":    len(ds.Areas),
		"shelters": len(ds.Shelters),
	}
	if !ds.LoadedAt.IsZero() {
		resp["loaded_at"] = ds.LoadedAt
	}

	if h.repo != nil {
		areas, shelters, err := h.repo.Counts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unavailable"})
			return
		}
		resp["stored_areas"] = areas
		resp["stored_shelters"] = shelters
	}

	c.JSON(http.StatusOK, resp)
}

func sessionID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if id == "" || len(id) > maxSessionIDLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return "", false
	}
	return id, true
}

func toSessionResponse(id string, st analysis.DrawState) sessionResponse {
	resp := sessionResponse{
		Session: id,
		Active:  st.Active(),
		Shape:   toShapeResponse(st.Shape),
		Result:  st.Result,
	}
	if !st.UpdatedAt.IsZero() {
		updated := st.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// page reads the optional offset and limit query params; limit 0 means all.
func page(c *gin.Context) (offset, limit int, ok bool) {
	if o := c.Query("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return 0, 0, false
		}
		offset = n
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return 0, 0, false
		}
		limit = n
	}
	return offset, limit, true
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
