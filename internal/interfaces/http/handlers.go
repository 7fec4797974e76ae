package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/application/service"
	"github.com/garyjia/procure-approval/internal/domain/approval"
	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

const version = "1.0.0"

// Handlers contains all HTTP request handlers
type Handlers struct {
	requisitions service.RequisitionService
	decisions    service.DecisionService
	exporter     port.ReportExporter
	logger       Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	requisitions service.RequisitionService,
	decisions service.DecisionService,
	exporter port.ReportExporter,
	logger Logger,
) *Handlers {
	return &Handlers{
		requisitions: requisitions,
		decisions:    decisions,
		exporter:     exporter,
		logger:       logger,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   version,
		},
	})
}

// CreateRequisition handles POST /api/requisitions
func (h *Handlers) CreateRequisition(c *gin.Context) {
	id, _ := identityFrom(c)

	var req CreateRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}

	created, err := h.requisitions.Create(c.Request.Context(), id, req.toInput())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toRequisitionResponse(created, nil),
	})
}

// ListMine handles GET /api/requisitions/mine
func (h *Handlers) ListMine(c *gin.Context) {
	h.list(c, h.requisitions.ListMine)
}

// ListInbox handles GET /api/requisitions/inbox
func (h *Handlers) ListInbox(c *gin.Context) {
	h.list(c, h.requisitions.ListInbox)
}

type listFunc func(ctx context.Context, id authz.Identity, filter port.ListFilter) ([]*requisition.Requisition, error)

func (h *Handlers) list(c *gin.Context, fetch listFunc) {
	id, _ := identityFrom(c)

	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.writeBindError(c, err)
		return
	}

	reqs, err := fetch(c.Request.Context(), id, port.ListFilter{
		Status: requisition.Status(q.Status),
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	items := make([]RequisitionResponse, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, toRequisitionResponse(r, nil))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    items,
	})
}

// GetRequisition handles GET /api/requisitions/:id
func (h *Handlers) GetRequisition(c *gin.Context) {
	id, _ := identityFrom(c)

	requisitionID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	view, err := h.requisitions.Get(c.Request.Context(), id, requisitionID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	caps := view.Capabilities
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toRequisitionResponse(view.Requisition, &caps),
	})
}

// ListRecords handles GET /api/requisitions/:id/records
func (h *Handlers) ListRecords(c *gin.Context) {
	id, _ := identityFrom(c)

	requisitionID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	records, err := h.requisitions.Records(c.Request.Context(), id, requisitionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []requisition.ApprovalRecord{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    records,
	})
}

// ExportRequisition handles GET /api/requisitions/:id/export
func (h *Handlers) ExportRequisition(c *gin.Context) {
	id, _ := identityFrom(c)

	requisitionID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	// buffered: a failed export must still answer with a JSON error
	var buf bytes.Buffer
	if err := h.requisitions.Export(c.Request.Context(), id, requisitionID, &buf); err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("requisition-%s.%s", requisitionID, h.exporter.FileExtension())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, h.exporter.ContentType(), buf.Bytes())
}

// ManagerDecision handles POST /api/requisitions/:id/quotes/:quoteId/manager
func (h *Handlers) ManagerDecision(c *gin.Context) {
	h.decide(c, func(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, body DecisionRequest) (*approval.Outcome, error) {
		return h.decisions.DecideAsManager(ctx, id, requisitionID, quoteID, requisition.Decision(body.Decision))
	})
}

// DirectorDecision handles POST /api/requisitions/:id/quotes/:quoteId/director
func (h *Handlers) DirectorDecision(c *gin.Context) {
	h.decide(c, func(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, body DecisionRequest) (*approval.Outcome, error) {
		return h.decisions.DecideAsDirector(ctx, id, requisitionID, quoteID, requisition.Decision(body.Decision))
	})
}

// MasterDecision handles POST /api/master/requisitions/:id/quotes/:quoteId/:role
func (h *Handlers) MasterDecision(c *gin.Context) {
	seat := requisition.ActingRole(c.Param("role"))
	if !seat.IsValid() {
		c.JSON(http.StatusBadRequest, Response{Error: "role must be manager or director"})
		return
	}

	h.decide(c, func(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, body DecisionRequest) (*approval.Outcome, error) {
		return h.decisions.DecideAsMaster(ctx, id, requisitionID, quoteID, seat, requisition.Decision(body.Decision), body.OnBehalfOf)
	})
}

type decideFunc func(ctx context.Context, id authz.Identity, requisitionID, quoteID uuid.UUID, body DecisionRequest) (*approval.Outcome, error)

func (h *Handlers) decide(c *gin.Context, fn decideFunc) {
	id, _ := identityFrom(c)

	requisitionID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	quoteID, ok := h.uuidParam(c, "quoteId")
	if !ok {
		return
	}

	var body DecisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeBindError(c, err)
		return
	}

	out, err := fn(c.Request.Context(), id, requisitionID, quoteID, body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toDecisionResponse(out),
	})
}

func (h *Handlers) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: fmt.Sprintf("invalid %s: %q", name, raw)})
		return uuid.Nil, false
	}
	return id, true
}
