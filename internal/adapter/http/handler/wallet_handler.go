package handler

import (
	"strconv"
	"time"

	"marketplace-escrow/internal/adapter/http/dto"
	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"
	"marketplace-escrow/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetBalance handles GET /api/v1/wallets/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	wallet, err := h.walletSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WalletBalanceResponse{
		WalletID: wallet.ID.String(),
		Balance:  wallet.Balance,
		Currency: wallet.Currency,
	})
}

// ListTransactions handles GET /api/v1/wallets/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.walletSvc.ListEntries(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.WalletEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toWalletEntryResponse(&entries[i]))
	}
	response.OK(c, out)
}

// Topup handles POST /api/v1/wallets/topup.
func (h *WalletHandler) Topup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	wallet, err := h.walletSvc.Topup(c.Request.Context(), userID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WalletBalanceResponse{
		WalletID: wallet.ID.String(),
		Balance:  wallet.Balance,
		Currency: wallet.Currency,
	})
}

func toWalletEntryResponse(e *domain.WalletEntry) dto.WalletEntryResponse {
	return dto.WalletEntryResponse{
		ID:            e.ID.String(),
		Type:          string(e.Type),
		Amount:        e.Amount,
		Currency:      e.Currency,
		Description:   e.Description,
		ReferenceType: string(e.ReferenceType),
		ReferenceID:   e.ReferenceID.String(),
		BalanceAfter:  e.BalanceAfter,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
}
