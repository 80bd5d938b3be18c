package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type CreateCallRequest struct {
	Callee string `json:"callee"`
}

type CreateCallResponse struct {
	ID domain.CallID `json:"id"`
}

type CandidatesResponse struct {
	Side       domain.CandidateSide `json:"side"`
	Candidates []domain.Candidate   `json:"candidates"`
}

type callHandlers struct {
	relay core.Signaling
	store core.CallStore
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrCallNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCallExists), errors.Is(err, domain.ErrAlreadyAnswered):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidDescription),
		errors.Is(err, domain.ErrUserIDTooLong),
		errors.Is(err, domain.ErrUserIDEmpty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h *callHandlers) create(c *gin.Context) {
	var req CreateCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	var callee domain.UserID
	if req.Callee != "" {
		id, err := domain.ParseUserID(req.Callee)
		if err != nil {
			abortWith(c, err)
			return
		}
		callee = id
	}
	id, err := h.relay.CreateCall(c.Request.Context(), callee)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateCallResponse{ID: id})
}

func (h *callHandlers) get(c *gin.Context) {
	call, err := h.relay.GetCall(c.Request.Context(), domain.CallID(c.Param("id")))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h *callHandlers) delete(c *gin.Context) {
	if err := h.relay.EndCall(c.Request.Context(), domain.CallID(c.Param("id"))); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *callHandlers) candidates(c *gin.Context) {
	side := domain.CandidateSide(c.Param("side"))
	list, err := h.store.Candidates(c.Request.Context(), domain.CallID(c.Param("id")), side)
	if err != nil {
		abortWith(c, err)
		return
	}
	if list == nil {
		list = []domain.Candidate{}
	}
	c.JSON(http.StatusOK, CandidatesResponse{Side: side, Candidates: list})
}

func healthHandler(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
