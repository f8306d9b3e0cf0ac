package handler

import (
	"encoding/json"
	"time"

	"marketplace-escrow/internal/adapter/http/dto"
	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"
	"marketplace-escrow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EscrowHandler handles escrow lifecycle endpoints.
type EscrowHandler struct {
	escrowSvc ports.EscrowService
}

// NewEscrowHandler creates a new EscrowHandler.
func NewEscrowHandler(escrowSvc ports.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrowSvc: escrowSvc}
}

// Get handles GET /api/v1/escrows/:id.
func (h *EscrowHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid escrow id"))
		return
	}

	escrow, err := h.escrowSvc.GetEscrow(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toEscrowResponse(escrow))
}

// History handles GET /api/v1/escrows/:id/history.
func (h *EscrowHandler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid escrow id"))
		return
	}

	entries, err := h.escrowSvc.ListHistory(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.EscrowHistoryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toEscrowHistoryResponse(&entries[i]))
	}
	response.OK(c, out)
}

// Release handles POST /api/v1/escrows/:id/release.
func (h *EscrowHandler) Release(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid escrow id"))
		return
	}

	escrow, err := h.escrowSvc.Release(c.Request.Context(), id, requesterID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toEscrowResponse(escrow))
}

// OpenDispute handles POST /api/v1/escrows/:id/dispute.
func (h *EscrowHandler) OpenDispute(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid escrow id"))
		return
	}

	var req dto.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	escrow, err := h.escrowSvc.OpenDispute(c.Request.Context(), ports.OpenDisputeRequest{
		EscrowID:    id,
		RequesterID: requesterID,
		Reason:      req.Reason,
		Description: req.Description,
		Evidence:    req.Evidence,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toEscrowResponse(escrow))
}

// ResolveDispute handles POST /api/v1/escrows/:id/dispute/resolve.
// The route is admin-guarded in the router.
func (h *EscrowHandler) ResolveDispute(c *gin.Context) {
	resolverID, ok := currentUserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid escrow id"))
		return
	}

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	escrow, err := h.escrowSvc.ResolveDispute(
		c.Request.Context(), id, resolverID, req.Resolution, ports.DisputeOutcome(req.Outcome))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toEscrowResponse(escrow))
}

// AutoReleaseScan handles POST /api/v1/admin/escrows/auto-release-scan.
func (h *EscrowHandler) AutoReleaseScan(c *gin.Context) {
	flipped, err := h.escrowSvc.RunAutoReleaseScan(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.AutoReleaseScanResponse{Flipped: flipped})
}

func toEscrowResponse(e *domain.Escrow) dto.EscrowResponse {
	resp := dto.EscrowResponse{
		ID:                 e.ID.String(),
		PaymentID:          e.PaymentID.String(),
		OrderID:            e.OrderID.String(),
		BuyerID:            e.BuyerID.String(),
		SellerID:           e.SellerID.String(),
		Amount:             e.Amount,
		Currency:           e.Currency,
		Status:             string(e.Status),
		PlatformCommission: e.PlatformCommission,
		CreatedAt:          e.CreatedAt.Format(time.RFC3339),
	}
	if e.FundedAt != nil {
		s := e.FundedAt.Format(time.RFC3339)
		resp.FundedAt = &s
	}
	if e.AutoReleaseDate != nil {
		s := e.AutoReleaseDate.Format(time.RFC3339)
		resp.AutoReleaseDate = &s
	}
	if e.ReleasedAt != nil {
		s := e.ReleasedAt.Format(time.RFC3339)
		resp.ReleasedAt = &s
	}
	if e.Dispute != nil {
		d := dto.DisputeResponse{
			Status:      string(e.Dispute.Status),
			CreatedBy:   e.Dispute.CreatedBy.String(),
			Reason:      e.Dispute.Reason,
			Description: e.Dispute.Description,
			Evidence:    e.Dispute.Evidence,
			Resolution:  e.Dispute.Resolution,
			CreatedAt:   e.Dispute.CreatedAt.Format(time.RFC3339),
		}
		if e.Dispute.ResolvedAt != nil {
			s := e.Dispute.ResolvedAt.Format(time.RFC3339)
			d.ResolvedAt = &s
		}
		resp.Dispute = &d
	}
	return resp
}

func toEscrowHistoryResponse(e *domain.EscrowHistoryEntry) dto.EscrowHistoryResponse {
	resp := dto.EscrowHistoryResponse{
		Action:      e.Action,
		PerformedBy: e.PerformedBy.String(),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if len(e.Details) > 0 {
		var details any
		if err := json.Unmarshal(e.Details, &details); err == nil {
			resp.Details = details
		}
	}
	return resp
}
