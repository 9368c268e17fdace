// Package folder implements FolderAggregator: a recursive directory scan
// against a remote MetadataProvider that fans out into N segmented
// downloads (internal/segment.Download), tracked and persisted as a
// single task. It is the Go-idiom descendant of the original
// DriveFolderTask, generalized from "Google Drive only" to any provider
// that can list and describe remote entries (see DESIGN.md).
package folder

import (
	"context"

	"corefetch/internal/model"
)

// Entry is one item returned by a MetadataProvider listing: either a
// sub-folder to recurse into, or a file ready to become a segment.Download.
type Entry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RelativePath string `json:"relative_path"`
	Size         int64  `json:"size"`
	IsDir        bool   `json:"-"`
}

// MetadataProvider is what a FolderAggregator needs from a remote storage
// backend: enumerate a folder's direct children and describe how to fetch
// one of them. Concrete implementations (internal/provider's drive.go and
// s3.go) adapt a specific API to this shape; FolderAggregator itself never
// speaks to Drive, S3, or OAuth directly, matching the external-interfaces
// boundary the engine enforces.
type MetadataProvider interface {
	// List returns the direct children of folderID. A root listing uses
	// the provider's own notion of root (e.g. a Drive folder ID or an S3
	// prefix); folderID is opaque to FolderAggregator.
	List(ctx context.Context, folderID string) ([]Entry, error)

	// Metadata resolves a leaf entry to the URL and size a
	// segment.Download needs to fetch it.
	Metadata(ctx context.Context, fileID string) (model.FileMeta, error)

	// AuthHeaders returns the headers every request against this
	// provider must carry (bearer tokens, API keys). Called once per
	// folder run, not per file, since most providers issue a single
	// short-lived token for the whole session.
	AuthHeaders(ctx context.Context) (map[string]string, error)
}
