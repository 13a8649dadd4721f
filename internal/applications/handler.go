package applications

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resume-pipeline/internal/shared/server/middleware"
	"resume-pipeline/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the applications service.
type Handler struct {
	Svc *Service
	// Async enqueues advance requests on the job queue instead of running them inline.
	Async bool
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, async bool) *Handler {
	return &Handler{Svc: svc, Async: async}
}

// RegisterRoutes attaches application routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/applications", h.create)
	rg.GET("/applications/:id", h.get)
	rg.POST("/applications/:id/advance", h.advance)
	rg.POST("/applications/:id/answers", h.submitAnswers)
	rg.GET("/applications/:id/artifacts", h.artifacts)
	rg.GET("/applications/:id/evidence", h.evidence)
	rg.GET("/applications/:id/cost", h.cost)
}

func (h *Handler) create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", []FieldError{{Field: "body", Issue: err.Error()}})
		return
	}
	if header := middleware.CandidateIDFromContext(c); header != "" {
		if in.CandidateID != "" && in.CandidateID != header {
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "candidate id mismatch", []FieldError{{Field: "candidateId", Issue: "does not match " + middleware.CandidateHeader}})
			return
		}
		in.CandidateID = header
	}

	app, err := h.Svc.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "failed to create application")
		return
	}
	c.Set("applicationId", app.ID)
	respond.JSON(c, http.StatusCreated, app)
}

func (h *Handler) get(c *gin.Context) {
	app, ok := h.load(c)
	if !ok {
		return
	}
	respond.OK(c, app)
}

func (h *Handler) advance(c *gin.Context) {
	app, ok := h.load(c)
	if !ok {
		return
	}
	h.run(c, app)
}

type answersRequest struct {
	Answers []Answer `json:"answers"`
}

func (h *Handler) submitAnswers(c *gin.Context) {
	app, ok := h.load(c)
	if !ok {
		return
	}
	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", []FieldError{{Field: "body", Issue: err.Error()}})
		return
	}
	app, err := h.Svc.SubmitAnswers(c.Request.Context(), app.ID, req.Answers)
	if err != nil {
		h.fail(c, err, "failed to submit answers")
		return
	}
	h.run(c, app)
}

// run advances inline, or enqueues when the handler is async.
func (h *Handler) run(c *gin.Context, app Application) {
	ctx := c.Request.Context()
	if h.Async {
		if err := h.Svc.Enqueue(ctx, app.ID); err != nil {
			h.fail(c, err, "failed to enqueue application")
			return
		}
		respond.JSON(c, http.StatusAccepted, gin.H{
			"applicationId": app.ID,
			"status":        app.Status,
		})
		return
	}

	res, err := h.Svc.Advance(ctx, app.ID)
	if err != nil {
		h.fail(c, err, "failed to advance application")
		return
	}
	c.Set("stage", string(res.CurrentStage))
	if res.Status != app.Status {
		c.Set("statusTransition", string(app.Status)+"->"+string(res.Status))
	}
	respond.OK(c, res)
}

func (h *Handler) artifacts(c *gin.Context) {
	app, ok := h.load(c)
	if !ok {
		return
	}
	list, err := h.Svc.Artifacts(c.Request.Context(), app.ID)
	if err != nil {
		h.fail(c, err, "failed to list artifacts")
		return
	}
	respond.List(c, list)
}

func (h *Handler) evidence(c *gin.Context) {
	app, ok := h.load(c)
	if !ok {
		return
	}
	facts, err := h.Svc.EvidenceFor(c.Request.Context(), app.ID)
	if err != nil {
		h.fail(c, err, "failed to list evidence")
		return
	}
	respond.List(c, facts)
}

func (h *Handler) cost(c *gin.Context) {
	app, ok := h.load(c)
	if !ok {
		return
	}
	summary, err := h.Svc.Cost(c.Request.Context(), app.ID)
	if err != nil {
		h.fail(c, err, "failed to summarize cost")
		return
	}
	respond.OK(c, summary)
}

// load fetches the application named in the path. Applications of another candidate are reported as not found.
func (h *Handler) load(c *gin.Context) (Application, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "application id is required", nil)
		return Application{}, false
	}
	c.Set("applicationId", id)
	app, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to fetch application")
		return Application{}, false
	}
	if candidate := middleware.CandidateIDFromContext(c); candidate != "" && candidate != app.CandidateID {
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "application not found", nil)
		return Application{}, false
	}
	return app, true
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, ve.Error(), ve.Fields)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "application not found", nil)
	case errors.Is(err, ErrJobQueueNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, ErrorCodeQueue, "job queue not configured", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, msg, nil)
	}
}
