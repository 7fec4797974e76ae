package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/procure-approval/internal/application/service"
	"github.com/garyjia/procure-approval/internal/domain/approval"
	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
	"github.com/garyjia/procure-approval/pkg/utils"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateRequisitionRequest is the body of POST /api/requisitions
type CreateRequisitionRequest struct {
	Kind        string              `json:"kind" binding:"omitempty,oneof=expense fuel inventory client"`
	Description string              `json:"description" binding:"required,max=2000"`
	DirectorID  string              `json:"director_id" binding:"required"`
	Managers    []string            `json:"managers" binding:"omitempty,unique,dive,required"`
	Allocations []AllocationRequest `json:"allocations" binding:"required,min=1,dive"`
	Quotes      []QuoteRequest      `json:"quotes" binding:"required,min=1,dive"`
}

// AllocationRequest is one department share
type AllocationRequest struct {
	DepartmentID string          `json:"department_id" binding:"required"`
	Percentage   decimal.Decimal `json:"percentage"`
}

// QuoteRequest is one supplier quote
type QuoteRequest struct {
	Supplier string            `json:"supplier" binding:"required"`
	Items    []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

// LineItemRequest is one priced line
type LineItemRequest struct {
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// DecisionRequest is the body of every decision endpoint
type DecisionRequest struct {
	Decision   string `json:"decision" binding:"required,oneof=approve reject"`
	OnBehalfOf string `json:"on_behalf_of"`
}

// ListQuery holds pagination and status filter query parameters
type ListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=PENDING APPROVED REJECTED"`
	Limit  int    `form:"limit" binding:"omitempty,gte=0,max=200"`
	Offset int    `form:"offset" binding:"omitempty,gte=0"`
}

// QuoteResponse is a quote with its derived total
type QuoteResponse struct {
	ID               uuid.UUID              `json:"id"`
	Supplier         string                 `json:"supplier"`
	Items            []requisition.LineItem `json:"items"`
	Total            decimal.Decimal        `json:"total"`
	State            string                 `json:"state"`
	ManagerApprovals []string               `json:"manager_approvals"`
	DirectorApproved bool                   `json:"director_approved"`
	DirectorID       string                 `json:"director_id,omitempty"`
	DecidedAt        *string                `json:"decided_at,omitempty"`
}

// RequisitionResponse represents a requisition in API responses
type RequisitionResponse struct {
	ID           uuid.UUID                `json:"id"`
	Kind         string                   `json:"kind"`
	Description  string                   `json:"description"`
	RequesterID  string                   `json:"requester_id"`
	DirectorID   string                   `json:"director_id"`
	Managers     []string                 `json:"managers"`
	Allocations  []requisition.Allocation `json:"allocations"`
	Quotes       []QuoteResponse          `json:"quotes"`
	Status       string                   `json:"status"`
	DecidedAt    *string                  `json:"decided_at,omitempty"`
	DecidedBy    string                   `json:"decided_by,omitempty"`
	CreatedAt    string                   `json:"created_at"`
	Version      int64                    `json:"version"`
	Capabilities *authz.Capabilities      `json:"capabilities,omitempty"`
}

// DecisionResponse reports the effect of one decision
type DecisionResponse struct {
	RequisitionID  uuid.UUID                    `json:"requisition_id"`
	QuoteID        uuid.UUID                    `json:"quote_id"`
	Changed        bool                         `json:"changed"`
	PreviousStatus string                       `json:"previous_status"`
	Status         string                       `json:"status"`
	Records        []requisition.ApprovalRecord `json:"records"`
}

func (r *CreateRequisitionRequest) toInput() service.CreateInput {
	in := service.CreateInput{
		Kind:        requisition.Kind(r.Kind),
		Description: utils.SanitizeString(r.Description),
		DirectorID:  utils.SanitizeID(r.DirectorID),
	}
	for _, m := range r.Managers {
		in.Managers = append(in.Managers, utils.SanitizeID(m))
	}
	for _, a := range r.Allocations {
		in.Allocations = append(in.Allocations, requisition.Allocation{
			DepartmentID: utils.SanitizeID(a.DepartmentID),
			Percentage:   a.Percentage,
		})
	}
	for _, q := range r.Quotes {
		draft := requisition.QuoteDraft{Supplier: utils.SanitizeString(q.Supplier)}
		for _, item := range q.Items {
			draft.Items = append(draft.Items, requisition.LineItem{
				Description: utils.SanitizeString(item.Description),
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
			})
		}
		in.Quotes = append(in.Quotes, draft)
	}
	return in
}

func toRequisitionResponse(req *requisition.Requisition, caps *authz.Capabilities) RequisitionResponse {
	resp := RequisitionResponse{
		ID:           req.ID,
		Kind:         string(req.Kind),
		Description:  req.Description,
		RequesterID:  req.RequesterID,
		DirectorID:   req.DirectorID,
		Managers:     req.Managers,
		Allocations:  req.Allocations,
		Quotes:       make([]QuoteResponse, 0, len(req.Quotes)),
		Status:       string(req.Status),
		DecidedAt:    formatTime(req.DecidedAt),
		DecidedBy:    req.DecidedBy,
		CreatedAt:    req.CreatedAt.Format(time.RFC3339),
		Version:      req.Version,
		Capabilities: caps,
	}

	for _, q := range req.Quotes {
		resp.Quotes = append(resp.Quotes, QuoteResponse{
			ID:               q.ID,
			Supplier:         q.Supplier,
			Items:            q.Items,
			Total:            q.Total(),
			State:            string(q.State),
			ManagerApprovals: q.ManagerApprovals,
			DirectorApproved: q.DirectorApproved,
			DirectorID:       q.DirectorID,
			DecidedAt:        formatTime(q.DecidedAt),
		})
	}

	return resp
}

func toDecisionResponse(out *approval.Outcome) DecisionResponse {
	records := out.Records
	if records == nil {
		records = []requisition.ApprovalRecord{}
	}
	return DecisionResponse{
		RequisitionID:  out.RequisitionID,
		QuoteID:        out.QuoteID,
		Changed:        out.Changed(),
		PreviousStatus: string(out.PreviousStatus),
		Status:         string(out.Status),
		Records:        records,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
