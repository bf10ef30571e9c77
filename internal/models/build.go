package models

import "time"

// BuildRequest configures one knowledge-graph construction run.
// Exactly one of SourcePath and SourceText must be set.
type BuildRequest struct {
	// SourcePath points at a document file (txt/md/docx/pdf/odt/rtf/xlsx).
	SourcePath string `json:"source_path,omitempty"`
	// SourceText is inline document text, used when no file is involved.
	SourceText string `json:"source_text,omitempty"`
	// Title names the document in the store; defaults to the file name.
	Title string `json:"title,omitempty"`
	// SchemaJSON is the graph schema to import (vertex/edge labels). When
	// empty, the schema already present in the graph is used.
	SchemaJSON string `json:"schema_json,omitempty"`
	// ExtractPrompt overrides the default triple-extraction prompt.
	ExtractPrompt string `json:"extract_prompt,omitempty"`
	// Mode selects which side effects the run performs; see kg.Mode.
	Mode string `json:"mode"`
}

// BuildResult summarizes what a build run did. Skipped is true when append
// mode found the source unchanged and did nothing.
type BuildResult struct {
	RunID    string        `json:"run_id"`
	Mode     string        `json:"mode"`
	Chunks   int           `json:"chunks"`
	Vertices int           `json:"vertices"`
	Edges    int           `json:"edges"`
	Indexed  int           `json:"indexed"`
	Skipped  bool          `json:"skipped,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Took     time.Duration `json:"took_ns"`
}

// BuildRun is the persisted record of a build invocation.
type BuildRun struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Chunks     int       `json:"chunks"`
	Vertices   int       `json:"vertices"`
	Edges      int       `json:"edges"`
	Indexed    int       `json:"indexed"`
	Warnings   []string  `json:"warnings,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Build run statuses.
const (
	BuildRunning = "running"
	BuildDone    = "done"
	BuildFailed  = "failed"
	BuildSkipped = "skipped"
)

// Document is a source document the builder has ingested.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Path        string    `json:"path,omitempty"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chunk is one split unit of a document, the granularity of embedding and
// extraction.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Position   int    `json:"position"`
	Content    string `json:"content"`
}
