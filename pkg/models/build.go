package models

import (
	"time"

	"github.com/google/uuid"
)

// BuildStatus is the status of a build workflow.
type BuildStatus string

const (
	BuildPlanning      BuildStatus = "planning"
	BuildGenerating    BuildStatus = "generating"
	BuildComplete      BuildStatus = "complete"
	BuildError         BuildStatus = "error"
	BuildClarification BuildStatus = "clarification_needed"
)

// BuildSession tracks one iterative build loop producing an HTML artifact.
// Files maps filename to content; the primary file is index.html.
type BuildSession struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Files       map[string]string `json:"files"`
	Status      BuildStatus       `json:"status"`
	PreviewID   string            `json:"preview_id,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	Features    []string          `json:"features"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// NewBuildSession creates a build session in the planning state.
func NewBuildSession(id, description string) *BuildSession {
	if id == "" {
		id = uuid.NewString()
	}
	return &BuildSession{
		ID:          id,
		Description: description,
		Files:       map[string]string{},
		Status:      BuildPlanning,
		Features:    []string{},
		CreatedAt:   time.Now().UTC(),
	}
}
