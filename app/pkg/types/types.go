package types

// UserContext carries caller identity and per-request fields the pipeline
// consumes. Recognized fields are typed; anything else the caller sends
// rides along in Extra untouched.
type UserContext struct {
	UserID         string                 `json:"userId"`
	UserName       string                 `json:"userName,omitempty"`
	Role           string                 `json:"role,omitempty"`
	ProjectType    string                 `json:"projectType,omitempty"`
	TaskTitle      string                 `json:"taskTitle,omitempty"`
	AgentOperation string                 `json:"agentOperation,omitempty"` // "", "draft_summary", "apply_edits", "analyze_update"
	Draft          string                 `json:"draft,omitempty"`          // current draft text for apply_edits / analyze_update
	EditRequest    string                 `json:"editRequest,omitempty"`    // requested changes for apply_edits
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// Route types chosen by the pipeline.
const (
	RouteBackendAction = "backend_action"
	RouteLLM           = "llm_route"
)

// PipelineResponse is the structured result returned for every processed
// request. This exact field set is the surface the HTTP layer and the
// conversation agent depend on.
type PipelineResponse struct {
	Success          bool                   `json:"success"`
	RouteType        string                 `json:"routeType,omitempty"`
	BackendAction    string                 `json:"backendAction,omitempty"`
	GeneratedContent string                 `json:"generatedContent,omitempty"`
	RequiresApproval bool                   `json:"requiresUserApproval"`
	QualityScore     float64                `json:"qualityScore"`
	Error            string                 `json:"error,omitempty"`
	ErrorMessage     string                 `json:"errorMessage,omitempty"`
	Metadata         map[string]interface{} `json:"metadata"`
}

// Update types produced by the analyze_update operation.
const (
	UpdateCommentOnly      = "comment_only"
	UpdateStatusOnly       = "status_only"
	UpdateCommentAndStatus = "comment_and_status"
)

// ValidUpdateType reports whether s is one of the three enumerated update types.
func ValidUpdateType(s string) bool {
	switch s {
	case UpdateCommentOnly, UpdateStatusOnly, UpdateCommentAndStatus:
		return true
	}
	return false
}
