package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/domain/approval"
	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

const temporaryFailure = "temporary failure, please try again"

// ConsensusDetails tells the director how far the managers have come
type ConsensusDetails struct {
	QuoteID  string `json:"quote_id"`
	Current  int    `json:"current"`
	Required int    `json:"required"`
}

// writeError is the single place where service errors become HTTP statuses
func (h *Handlers) writeError(c *gin.Context, err error) {
	var consensus *requisition.ConsensusNotReachedError

	switch {
	case errors.Is(err, port.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, Response{Error: "authentication required"})

	case errors.As(err, &consensus):
		c.JSON(http.StatusConflict, Response{
			Error: err.Error(),
			Details: ConsensusDetails{
				QuoteID:  consensus.QuoteID.String(),
				Current:  consensus.Current,
				Required: consensus.Required,
			},
		})

	case errors.Is(err, requisition.ErrInvalidAllocation),
		errors.Is(err, requisition.ErrInvalidRequisition),
		errors.Is(err, approval.ErrInvalidIntent):
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})

	case errors.Is(err, authz.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, Response{Error: err.Error()})

	case errors.Is(err, port.ErrNotFound), errors.Is(err, requisition.ErrQuoteNotFound):
		c.JSON(http.StatusNotFound, Response{Error: err.Error()})

	case errors.Is(err, requisition.ErrQuoteClosed),
		errors.Is(err, requisition.ErrQuoteAlreadyChosen),
		errors.Is(err, port.ErrConcurrentModification):
		c.JSON(http.StatusConflict, Response{Error: err.Error()})

	default:
		h.logger.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: temporaryFailure})
	}
}

func (h *Handlers) writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Error:   "request validation failed",
		Details: validationDetails(err),
	})
}
