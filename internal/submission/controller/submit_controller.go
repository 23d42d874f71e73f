package controller

import (
	"github.com/gin-gonic/gin"

	"bitbattle/internal/submission/model"
	"bitbattle/internal/submission/service"
	"bitbattle/pkg/utils/response"
)

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	judgeService *service.JudgeService
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(judgeService *service.JudgeService) *SubmitController {
	return &SubmitController{judgeService: judgeService}
}

// Submit judges a submission synchronously and returns the full verdict.
// A failing verdict is still a 200; errors are reserved for requests that
// never reached the sandbox.
func (h *SubmitController) Submit(c *gin.Context) {
	var req model.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.judgeService.Judge(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Languages lists the language IDs accepted on submit.
func (h *SubmitController) Languages(c *gin.Context) {
	response.Success(c, LanguagesResponse{Languages: h.judgeService.Languages()})
}

// LanguagesResponse lists supported submission languages.
type LanguagesResponse struct {
	Languages []string `json:"languages"`
}
