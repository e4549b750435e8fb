package models

// Pipeline names used in release records and log fields.
const (
	PipelineBackend  = "backend"
	PipelineFrontend = "frontend"
)

// BackendReport summarizes a backend deploy: the bundle that was packaged,
// the application version it became, and the environment now pointed at it.
type BackendReport struct {
	Application  string `json:"application"`   // Hosting service application name
	Environment  string `json:"environment"`   // Environment pointed at the new version
	VersionLabel string `json:"version_label"` // Application version label
	Bucket       string `json:"bucket"`        // Artifact bucket
	Key          string `json:"key"`           // Archive key within the bucket
	Files        int    `json:"files"`         // Files packaged into the archive
	Bytes        int64  `json:"bytes"`         // Uncompressed archive payload size
	DryRun       bool   `json:"dry_run,omitempty"`
}

// FrontendReport summarizes a frontend deploy: what the bucket mirror changed
// and the cache invalidation that was issued.
type FrontendReport struct {
	Bucket         string   `json:"bucket"`          // Site bucket
	Uploaded       int      `json:"uploaded"`        // Objects written
	Deleted        int      `json:"deleted"`         // Orphaned objects removed
	Unchanged      int      `json:"unchanged"`       // Objects already current
	DistributionID string   `json:"distribution_id"` // CDN distribution
	InvalidationID string   `json:"invalidation_id,omitempty"`
	Paths          []string `json:"paths"` // Invalidated paths
	DryRun         bool     `json:"dry_run,omitempty"`
}

// SyncSummary reports the changes applied by a bucket mirror pass.
type SyncSummary struct {
	Uploaded  int `json:"uploaded"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}
