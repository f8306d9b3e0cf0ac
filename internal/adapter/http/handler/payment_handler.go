package handler

import (
	"time"

	"marketplace-escrow/internal/adapter/http/dto"
	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"
	"marketplace-escrow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// Initiate handles POST /api/v1/payments.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	payerID, ok := currentUserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid order_id"))
		return
	}

	payment, err := h.paymentSvc.InitiatePayment(c.Request.Context(), ports.InitiatePaymentRequest{
		OrderID:   orderID,
		PayerID:   payerID,
		Method:    domain.PaymentMethod(req.Method),
		Currency:  req.Currency,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPaymentResponse(payment))
}

// Get handles GET /api/v1/payments/:id.
func (h *PaymentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	payment, err := h.paymentSvc.GetPayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPaymentResponse(payment))
}

// Retry handles POST /api/v1/payments/:id/retry.
func (h *PaymentHandler) Retry(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	payment, err := h.paymentSvc.RetryPayment(c.Request.Context(), id, requesterID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPaymentResponse(payment))
}

// Confirm handles POST /api/v1/payments/confirm, the provider callback.
// Signature verification happens in middleware before this runs.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment_id"))
		return
	}

	payment, err := h.paymentSvc.ConfirmPayment(c.Request.Context(), ports.ConfirmPaymentRequest{
		PaymentID:             paymentID,
		ProviderTransactionID: req.ProviderTransactionID,
		Status:                domain.PaymentStatus(req.Status),
		Metadata:              req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPaymentResponse(payment))
}

// toPaymentResponse converts domain.Payment to its DTO.
func toPaymentResponse(p *domain.Payment) dto.PaymentResponse {
	resp := dto.PaymentResponse{
		ID:                    p.ID.String(),
		OrderID:               p.OrderID.String(),
		Amount:                p.Amount,
		Currency:              p.Currency,
		OriginalAmount:        p.OriginalAmount,
		OriginalCurrency:      p.OriginalCurrency,
		Method:                string(p.Method),
		Status:                string(p.Status),
		PaymentURL:            p.PaymentURL,
		ProviderTransactionID: p.ProviderTransactionID,
		PlatformFee:           p.PlatformFee,
		ProcessingFee:         p.ProcessingFee,
		RetryCount:            p.RetryCount,
		FailureReason:         p.FailureReason,
		CreatedAt:             p.CreatedAt.Format(time.RFC3339),
	}
	if p.PaidAt != nil {
		s := p.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &s
	}
	return resp
}
