package controller

import (
	"github.com/gin-gonic/gin"

	"bitbattle/internal/problem/model"
	"bitbattle/internal/problem/service"
	"bitbattle/pkg/utils/response"
)

// ProblemController serves the sanitized problem catalog. Hidden tests
// never leave the service layer.
type ProblemController struct {
	problemService *service.ProblemService
}

// NewProblemController creates a new ProblemController.
func NewProblemController(problemService *service.ProblemService) *ProblemController {
	return &ProblemController{problemService: problemService}
}

// List handles problem catalog queries, optionally filtered by
// difficulty.
func (h *ProblemController) List(c *gin.Context) {
	difficulty := model.DifficultyAny
	if raw := c.Query("difficulty"); raw != "" {
		parsed, ok := model.ParseDifficulty(raw)
		if !ok {
			response.BadRequest(c, "Invalid difficulty")
			return
		}
		difficulty = parsed
	}

	problems := h.problemService.List(difficulty)
	response.Success(c, ListProblemsResponse{Problems: problems, Total: len(problems)})
}

// Get handles single problem lookups.
func (h *ProblemController) Get(c *gin.Context) {
	id := c.Param("id")
	problem, err := h.problemService.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, problem.Client())
}

// ListProblemsResponse defines the catalog response payload.
type ListProblemsResponse struct {
	Problems []model.Summary `json:"problems"`
	Total    int             `json:"total"`
}
