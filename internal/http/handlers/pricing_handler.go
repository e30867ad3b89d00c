// README: Scrap rate catalogue handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scrapyard/internal/modules/pricing"
)

type PricingHandler struct {
	pricing *pricing.Service
}

func NewPricingHandler(svc *pricing.Service) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

func (h *PricingHandler) Rates(c *gin.Context) {
	rates, err := h.pricing.Rates(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rates)
}
