package httpservice

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lastword-games/roundd/internal/core/application"
	"github.com/lastword-games/roundd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

type handler struct {
	svc application.Service
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) createRound(c *gin.Context) {
	var body createRoundRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := body.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	round, err := h.svc.CreateRound(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRoundResponse(round))
}

func (h *handler) getRound(c *gin.Context) {
	round, err := h.svc.GetRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoundResponse(round))
}

func (h *handler) joinRound(c *gin.Context) {
	var body joinRequest
	if !bindJSON(c, &body) {
		return
	}

	round, err := h.svc.JoinRound(c.Request.Context(), c.Param("id"), body.UserId, body.IsSpectator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoundResponse(round))
}

func (h *handler) contribute(c *gin.Context) {
	var body contributeRequest
	if !bindJSON(c, &body) {
		return
	}

	round, err := h.svc.ContributeToPool(c.Request.Context(), c.Param("id"), body.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoundResponse(round))
}

func (h *handler) keepAlive(c *gin.Context) {
	var body keepAliveRequest
	if !bindJSON(c, &body) {
		return
	}

	res, err := h.svc.SubmitKeepAlive(c.Request.Context(), c.Param("id"), body.ActorId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, keepAliveResponse{
		Accepted: res.Accepted,
		Reason:   res.Reason,
		Deadline: timePtr(res.Deadline),
	})
}

func (h *handler) tick(c *gin.Context) {
	round, err := h.svc.Tick(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoundResponse(round))
}

func (h *handler) cancelRound(c *gin.Context) {
	var body cancelRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}

	round, err := h.svc.CancelRound(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoundResponse(round))
}

func (h *handler) resumeSettlement(c *gin.Context) {
	round, err := h.svc.ResumeDisbursement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoundResponse(round))
}

func (h *handler) runDueTicks(c *gin.Context) {
	summary, err := h.svc.RunDueTicks(c.Request.Context(), time.Time{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickSummaryResponse{summary.Ticked, summary.Settled})
}

func bindJSON(c *gin.Context, body interface{}) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoundNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, application.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRoundClosed),
		errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrRoundAlreadyExists),
		errors.Is(err, domain.ErrNothingToResume):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
