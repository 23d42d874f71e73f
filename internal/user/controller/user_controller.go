package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"

	problemmodel "bitbattle/internal/problem/model"
	"bitbattle/internal/user/model"
	"bitbattle/internal/user/service"
	pkgerrors "bitbattle/pkg/errors"
	pkgrepo "bitbattle/pkg/repository"
	"bitbattle/pkg/utils/response"
)

// UserController serves public profile, history and leaderboard reads.
type UserController struct {
	profiles *service.ProfileService
}

// NewUserController creates a new UserController.
func NewUserController(profiles *service.ProfileService) *UserController {
	return &UserController{profiles: profiles}
}

// GetProfile handles GET /users/:username.
func (h *UserController) GetProfile(c *gin.Context) {
	profile, err := h.profiles.Profile(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, profile)
}

// GetHistory handles GET /users/:username/history.
func (h *UserController) GetHistory(c *gin.Context) {
	records, err := h.profiles.History(c.Request.Context(), c.Param("username"), listOptions(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, HistoryResponse{Games: records, Count: len(records)})
}

// Leaderboard handles GET /leaderboard. Difficulty defaults to medium and
// must be concrete; sort_by defaults to rating.
func (h *UserController) Leaderboard(c *gin.Context) {
	difficulty, ok := problemmodel.ParseDifficulty(c.DefaultQuery("difficulty", string(problemmodel.DifficultyMedium)))
	if !ok || difficulty == problemmodel.DifficultyAny {
		response.Error(c, pkgerrors.New(pkgerrors.InvalidDifficulty))
		return
	}

	sortBy, ok := model.ParseLeaderboardSort(c.Query("sort_by"))
	if !ok {
		response.BadRequest(c, "sort_by must be rating, wins, problems_solved, fastest_solve or streak")
		return
	}

	entries, err := h.profiles.Leaderboard(c.Request.Context(), difficulty, sortBy, listOptions(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, LeaderboardResponse{
		Difficulty: string(difficulty),
		SortBy:     string(sortBy),
		Entries:    entries,
	})
}

// listOptions reads the limit/offset query pair. Out-of-range values are
// clamped by the service, not rejected.
func listOptions(c *gin.Context) pkgrepo.ListOptions {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return pkgrepo.ListOptions{Limit: limit, Offset: offset}
}

// HistoryResponse defines the match history payload.
type HistoryResponse struct {
	Games []model.GameRecord `json:"games"`
	Count int                `json:"count"`
}

// LeaderboardResponse defines the leaderboard payload.
type LeaderboardResponse struct {
	Difficulty string                   `json:"difficulty"`
	SortBy     string                   `json:"sort_by"`
	Entries    []model.LeaderboardEntry `json:"entries"`
}
