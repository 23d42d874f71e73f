package controller

import (
	"github.com/gin-gonic/gin"

	"bitbattle/internal/common/validate"
	"bitbattle/internal/matchmaking/model"
	"bitbattle/internal/matchmaking/service"
	problemmodel "bitbattle/internal/problem/model"
	roommodel "bitbattle/internal/room/model"
	appErr "bitbattle/pkg/errors"
	"bitbattle/pkg/utils/response"
)

// guestRating seeds queue entries for players with no rated history.
const guestRating = 1200

// MatchmakingController exposes the queue over HTTP. Clients poll the
// status endpoint; the server never pushes matchmaking events.
type MatchmakingController struct {
	queue   *service.Matchmaker
	ratings service.RatingSource
}

// NewMatchmakingController creates a MatchmakingController. ratings may
// be nil when no persistence backend is configured.
func NewMatchmakingController(queue *service.Matchmaker, ratings service.RatingSource) *MatchmakingController {
	return &MatchmakingController{queue: queue, ratings: ratings}
}

// Join enqueues the caller. Ranked queues require an authenticated
// account; an authenticated caller always queues under their account
// name regardless of what the body claims.
func (h *MatchmakingController) Join(c *gin.Context) {
	var req model.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	username, err := validate.Username(req.Username)
	if err != nil {
		response.Error(c, err)
		return
	}
	connectionID, err := validate.ConnectionID(req.ConnectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	difficulty, ok := problemmodel.ParseDifficulty(req.Difficulty)
	if !ok {
		response.Error(c, appErr.New(appErr.InvalidDifficulty))
		return
	}
	mode, ok := roommodel.ParseGameMode(req.GameMode)
	if !ok {
		response.BadRequest(c, "Game mode must be casual or ranked")
		return
	}

	userID := c.GetString("user_id")
	if userID != "" {
		username = c.GetString("username")
	}
	if mode == roommodel.ModeRanked && userID == "" {
		response.Error(c, appErr.New(appErr.RankedRequiresAuth))
		return
	}

	rating := guestRating
	if userID != "" && h.ratings != nil {
		rating = h.ratings.Rating(c.Request.Context(), userID, ratingBucket(difficulty))
	}

	size := h.queue.Join(model.Entry{
		ConnectionID: connectionID,
		Username:     username,
		UserID:       userID,
		Rating:       rating,
		Difficulty:   difficulty,
		Mode:         mode,
	})
	response.Success(c, model.JoinResponse{
		Success:   true,
		Message:   "Joined matchmaking queue",
		QueueSize: size,
	})
}

// Leave dequeues the caller. Leaving when not queued is not an error.
func (h *MatchmakingController) Leave(c *gin.Context) {
	var req model.LeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	connectionID, err := validate.ConnectionID(req.ConnectionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	removed := h.queue.Leave(connectionID)
	msg := "Left matchmaking queue"
	if !removed {
		msg = "Not in matchmaking queue"
	}
	response.Success(c, model.LeaveResponse{Success: removed, Message: msg})
}

// Status reports queue position or, exactly once, a found match.
func (h *MatchmakingController) Status(c *gin.Context) {
	connectionID, err := validate.ConnectionID(c.Query("connection_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, h.queue.Status(connectionID))
}

// ratingBucket maps a queue difficulty to the rating bucket used for the
// window check. Wildcard queues compare on the medium rating.
func ratingBucket(d problemmodel.Difficulty) problemmodel.Difficulty {
	if d == problemmodel.DifficultyAny {
		return problemmodel.DifficultyMedium
	}
	return d
}
