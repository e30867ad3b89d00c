// README: Pickup chat thread and offer resolution handlers.
package handlers

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"scrapyard/internal/http/middleware"
	"scrapyard/internal/modules/chat"
	"scrapyard/internal/types"
)

type ChatHandler struct {
	chat *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{chat: svc}
}

type postMessageReq struct {
	Message     string  `json:"message"`
	IsOffer     bool    `json:"is_offer"`
	OfferAmount float64 `json:"offer_amount" binding:"omitempty,gt=0"`
}

func (h *ChatHandler) Thread(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	msgs, err := h.chat.Thread(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*chat.Message{}
	}
	writeJSON(c, http.StatusOK, msgs)
}

func (h *ChatHandler) Post(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req postMessageReq
	if !bindJSON(c, &req) {
		return
	}
	cmd := chat.PostCommand{PickupID: id, Body: req.Message}
	if req.IsOffer {
		m := types.INR(int64(math.Round(req.OfferAmount)))
		cmd.Offer = &m
	}
	msg, err := h.chat.Post(c.Request.Context(), middleware.Caller(c), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, msg)
}

func (h *ChatHandler) AcceptOffer(c *gin.Context) {
	h.resolve(c, true, "Offer accepted.")
}

func (h *ChatHandler) RejectOffer(c *gin.Context) {
	h.resolve(c, false, "Offer rejected.")
}

func (h *ChatHandler) resolve(c *gin.Context, accept bool, message string) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	msg, err := h.chat.ResolveOffer(c.Request.Context(), middleware.Caller(c), id, accept)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"message": message, "offer": msg})
}
