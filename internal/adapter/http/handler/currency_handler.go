package handler

import (
	"strings"

	"marketplace-escrow/internal/adapter/http/dto"
	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"
	"marketplace-escrow/pkg/response"

	"github.com/gin-gonic/gin"
)

// CurrencyHandler handles currency reference and conversion endpoints.
type CurrencyHandler struct {
	currencySvc ports.CurrencyService
}

// NewCurrencyHandler creates a new CurrencyHandler.
func NewCurrencyHandler(currencySvc ports.CurrencyService) *CurrencyHandler {
	return &CurrencyHandler{currencySvc: currencySvc}
}

// List handles GET /api/v1/currencies.
func (h *CurrencyHandler) List(c *gin.Context) {
	currencies, err := h.currencySvc.ListCurrencies(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.CurrencyResponse, 0, len(currencies))
	for i := range currencies {
		out = append(out, toCurrencyResponse(&currencies[i]))
	}
	response.OK(c, out)
}

// Get handles GET /api/v1/currencies/:code.
func (h *CurrencyHandler) Get(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	currency, err := h.currencySvc.GetCurrency(c.Request.Context(), code)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toCurrencyResponse(currency))
}

// Convert handles POST /api/v1/currencies/convert.
func (h *CurrencyHandler) Convert(c *gin.Context) {
	var req dto.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	converted, err := h.currencySvc.Convert(c.Request.Context(), req.Amount, req.From, req.To)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ConvertResponse{
		Amount:    req.Amount,
		From:      req.From,
		To:        req.To,
		Converted: converted,
	})
}

func toCurrencyResponse(cur *domain.Currency) dto.CurrencyResponse {
	return dto.CurrencyResponse{
		Code:             cur.Code,
		Name:             cur.Name,
		ExchangeRate:     cur.ExchangeRate,
		IsCryptocurrency: cur.IsCryptocurrency,
		Decimals:         cur.Decimals,
		MinAmount:        cur.MinAmount,
		MaxAmount:        cur.MaxAmount,
	}
}
