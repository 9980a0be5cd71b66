package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/miradorstack/log-console/internal/assistant"
	"github.com/miradorstack/log-console/internal/conversation"
	"github.com/miradorstack/log-console/internal/models"
	"github.com/miradorstack/log-console/internal/nlquery"
	"github.com/miradorstack/log-console/internal/session"
	"github.com/miradorstack/log-console/internal/utils"
)

const maxSearchBody = 1 << 20

// Handler serves the console API on top of the session manager.
type Handler struct {
	sessions *session.Manager
	logger   *slog.Logger
	origins  originPolicy
}

// NewHandler constructs the API handler set.
func NewHandler(sessions *session.Manager, logger *slog.Logger, allowedOrigins []string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sessions: sessions, logger: logger, origins: originPolicy(allowedOrigins)}
}

// Routes builds the gin engine with every console route.
func (h *Handler) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger), cors(h.origins))

	r.GET("/healthz", h.health)
	r.GET("/api/options", h.options)
	r.POST("/api/sessions", h.createSession)

	s := r.Group("/api/sessions/:id")
	s.DELETE("", h.closeSession)
	s.POST("/login", h.login)
	s.GET("/stats", h.stats)
	s.GET("/events", h.events)

	d := s.Group("/dashboard")
	d.GET("", h.dashboardView)
	d.POST("/refresh", h.refresh)
	d.PUT("/time-range", h.setTimeRange)
	d.PATCH("/time-range", h.editTimeBound)
	d.PUT("/query", h.setQuery)
	d.PUT("/source-file", h.setSourceFile)
	d.PUT("/page", h.setPage)
	d.POST("/drilldown", h.drillDown)
	d.POST("/search", h.search)

	a := s.Group("/assistant")
	a.GET("", h.assistantView)
	a.PUT("/panel", h.setPanel)
	a.POST("/messages", h.submitMessage)
	a.POST("/feedback", h.submitFeedback)
	a.POST("/suggested-query", h.suggestedQuery)

	return r
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.sessions.Len()})
}

// optionsView lists the fixed choices offered by the console.
type optionsView struct {
	TimePresets  []models.TimePreset   `json:"time_presets"`
	QuickActions []nlquery.QuickAction `json:"quick_actions"`
}

func (h *Handler) options(c *gin.Context) {
	c.JSON(http.StatusOK, optionsView{TimePresets: models.TimePresets, QuickActions: nlquery.QuickActions()})
}

func (h *Handler) createSession(c *gin.Context) {
	s, err := h.sessions.Create()
	if err != nil {
		h.fail(c, err)
		return
	}
	// The first render is best effort; pane errors are part of the view.
	_ = s.Dashboard.Refresh(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"id": s.ID, "dashboard": s.Dashboard.View()})
}

func (h *Handler) closeSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (h *Handler) login(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := s.Login(c.Request.Context(), req.Username, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

func (h *Handler) stats(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	stats, err := s.Dashboard.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) dashboardView(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Dashboard.View())
}

func (h *Handler) refresh(c *gin.Context) {
	h.mutateDashboard(c, func(s *session.Session) error {
		return s.Dashboard.Refresh(c.Request.Context())
	})
}

// timeRangeRequest selects either a preset or explicit bounds.
type timeRangeRequest struct {
	PresetMinutes *int   `json:"preset_minutes"`
	Start         string `json:"start"`
	End           string `json:"end"`
}

func (r timeRangeRequest) window() (models.TimeWindow, error) {
	start, err := utils.ParseTimestamp(r.Start)
	if err != nil {
		return models.TimeWindow{}, badRequest(fmt.Errorf("start: %w", err))
	}
	end, err := utils.ParseTimestamp(r.End)
	if err != nil {
		return models.TimeWindow{}, badRequest(fmt.Errorf("end: %w", err))
	}
	return models.TimeWindow{Start: start, End: end}, nil
}

func (h *Handler) setTimeRange(c *gin.Context) {
	var req timeRangeRequest
	if !h.bind(c, &req) {
		return
	}
	h.mutateDashboard(c, func(s *session.Session) error {
		if req.PresetMinutes != nil {
			return s.Dashboard.ApplyPreset(c.Request.Context(), *req.PresetMinutes)
		}
		window, err := req.window()
		if err != nil {
			return err
		}
		return s.Dashboard.SetTimeRange(c.Request.Context(), window)
	})
}

type boundRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (h *Handler) editTimeBound(c *gin.Context) {
	var req boundRequest
	if !h.bind(c, &req) {
		return
	}
	h.mutateDashboard(c, func(s *session.Session) error {
		bound, err := models.ParseBound(req.Field)
		if err != nil {
			return err
		}
		value, err := utils.ParseTimestamp(req.Value)
		if err != nil {
			return badRequest(fmt.Errorf("value: %w", err))
		}
		return s.Dashboard.EditTimeBound(c.Request.Context(), bound, value)
	})
}

type queryRequest struct {
	Query string `json:"query"`
}

func (h *Handler) setQuery(c *gin.Context) {
	var req queryRequest
	if !h.bind(c, &req) {
		return
	}
	h.mutateDashboard(c, func(s *session.Session) error {
		return s.Dashboard.SetSearchQuery(c.Request.Context(), strings.TrimSpace(req.Query))
	})
}

type sourceFileRequest struct {
	SourceFile string `json:"source_file"`
}

func (h *Handler) setSourceFile(c *gin.Context) {
	var req sourceFileRequest
	if !h.bind(c, &req) {
		return
	}
	h.mutateDashboard(c, func(s *session.Session) error {
		return s.Dashboard.SetSourceFile(c.Request.Context(), strings.TrimSpace(req.SourceFile))
	})
}

type pageRequest struct {
	Page int `json:"page"`
}

func (h *Handler) setPage(c *gin.Context) {
	var req pageRequest
	if !h.bind(c, &req) {
		return
	}
	h.mutateDashboard(c, func(s *session.Session) error {
		return s.Dashboard.SetPage(c.Request.Context(), req.Page)
	})
}

type drillDownRequest struct {
	Timestamp string `json:"timestamp"`
}

func (h *Handler) drillDown(c *gin.Context) {
	var req drillDownRequest
	if !h.bind(c, &req) {
		return
	}
	h.mutateDashboard(c, func(s *session.Session) error {
		ts, err := utils.ParseTimestamp(req.Timestamp)
		if err != nil {
			return badRequest(fmt.Errorf("timestamp: %w", err))
		}
		return s.Dashboard.OnChartPointClick(c.Request.Context(), ts)
	})
}

func (h *Handler) search(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSearchBody))
	if err != nil || !json.Valid(body) {
		h.fail(c, badRequest(fmt.Errorf("search body must be JSON")))
		return
	}
	out, err := s.Dashboard.Search(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", out)
}

// assistantView is the assistant panel as rendered by the client.
type assistantView struct {
	PanelOpen    bool                  `json:"panel_open"`
	State        assistant.State       `json:"state"`
	Turns        []conversation.Turn   `json:"turns"`
	QuickActions []nlquery.QuickAction `json:"quick_actions"`
}

func (h *Handler) assistantView(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, assistantView{
		PanelOpen:    s.PanelOpen(),
		State:        s.Assistant.State(),
		Turns:        s.Conversation.Turns(),
		QuickActions: nlquery.QuickActions(),
	})
}

type panelRequest struct {
	Open bool `json:"open"`
}

func (h *Handler) setPanel(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req panelRequest
	if !h.bind(c, &req) {
		return
	}
	s.SetPanelOpen(req.Open)
	c.JSON(http.StatusOK, gin.H{"open": s.PanelOpen()})
}

type messageRequest struct {
	Text        string `json:"text"`
	QuickAction string `json:"quick_action"`
}

func (h *Handler) submitMessage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req messageRequest
	if !h.bind(c, &req) {
		return
	}

	var (
		res assistant.Result
		err error
	)
	if req.QuickAction != "" {
		res, err = s.Assistant.SubmitQuickAction(c.Request.Context(), req.QuickAction)
	} else {
		res, err = s.Assistant.SubmitText(c.Request.Context(), req.Text)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type feedbackRequest struct {
	TurnID  int64  `json:"turn_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *Handler) submitFeedback(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req feedbackRequest
	if !h.bind(c, &req) {
		return
	}
	accepted, err := s.Feedback.Submit(c.Request.Context(), req.TurnID, req.Rating, req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !accepted {
		c.JSON(http.StatusConflict, gin.H{"error": "feedback already recorded for this message"})
		return
	}
	turn, _ := s.Conversation.Turn(req.TurnID)
	c.JSON(http.StatusOK, turn)
}

func (h *Handler) suggestedQuery(c *gin.Context) {
	var req queryRequest
	if !h.bind(c, &req) {
		return
	}
	h.mutateDashboard(c, func(s *session.Session) error {
		return s.Dashboard.OnSuggestedQuerySelected(c.Request.Context(), strings.TrimSpace(req.Query))
	})
}

// mutateDashboard resolves the session, applies fn and answers with the resulting view.
func (h *Handler) mutateDashboard(c *gin.Context, fn func(*session.Session) error) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := fn(s); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Dashboard.View())
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, badRequest(err))
		return false
	}
	return true
}

func badRequest(err error) error {
	return utils.NewAppError("decode request", err.Error(), fmt.Errorf("%w: %w", errBadRequest, err))
}
