package backend

import "github.com/example/goalrunner/internal/models"

// Request and response bodies. Key names follow the backend's HTTP API, which
// mixes camelCase (start) and snake_case (everything else).

type StartRequest struct {
	Goal                string               `json:"goal"`
	ModelSettings       models.ModelSettings `json:"modelSettings"`
	VisionModelSettings models.ModelSettings `json:"visionModelSettings"`
	ImageURL            string               `json:"image_url"`
}

type StartResponse struct {
	RunID    string   `json:"run_id"`
	NewTasks []string `json:"newTasks"`
}

type AnalyzeRequest struct {
	Goal          string               `json:"goal"`
	Task          string               `json:"task"`
	ModelSettings models.ModelSettings `json:"model_settings"`
	RunID         string               `json:"run_id"`
}

// AnalyzeResponse is returned to the caller unmodified.
type AnalyzeResponse = models.Analysis

type ExecuteRequest struct {
	Goal     string          `json:"goal"`
	Task     string          `json:"task"`
	Analysis models.Analysis `json:"analysis"`
	RunID    string          `json:"run_id"`
}

type CreateTasksRequest struct {
	Goal                string               `json:"goal"`
	ModelSettings       models.ModelSettings `json:"model_settings"`
	VisionModelSettings models.ModelSettings `json:"vision_model_settings"`
	ImageURL            string               `json:"image_url"`
	RunID               string               `json:"run_id"`
	Tasks               []string             `json:"tasks"`
	LastTask            string               `json:"last_task"`
	LastResult          string               `json:"result"`
	CompletedTasks      []string             `json:"completed_tasks"`
}

type CreateTasksResponse struct {
	RunID    string   `json:"run_id"`
	NewTasks []string `json:"newTasks"`
}

type SummarizeRequest struct {
	Goal                string               `json:"goal"`
	ModelSettings       models.ModelSettings `json:"model_settings"`
	VisionModelSettings models.ModelSettings `json:"vision_model_settings"`
	ImageURL            string               `json:"image_url"`
	RunID               string               `json:"run_id"`
	Results             []string             `json:"results"`
}

type ChatRequest struct {
	SummarizeRequest
	Message string `json:"message"`
}

type UploadImageResponse struct {
	URL string `json:"url"`
}

// Endpoint paths relative to the configured base URL.
const (
	PathStart       = "/api/agent/start"
	PathAnalyze     = "/api/agent/analyze"
	PathExecute     = "/api/agent/execute"
	PathCreate      = "/api/agent/create"
	PathSummarize   = "/api/agent/summarize"
	PathChat        = "/api/agent/chat"
	PathUploadImage = "/api/upload/upload-image"

	// UploadField is the multipart form field carrying the image.
	UploadField = "image"
)
