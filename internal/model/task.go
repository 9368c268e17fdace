// Package model holds the data types shared by the download engine's
// components: task status, on-disk part bookkeeping, and file metadata
// returned by probes and metadata providers.
package model

import "time"

// TaskStatus is the lifecycle state of a SegmentedDownload or
// FolderAggregator. Transitions are one-directional except for the
// Downloading <-> Paused toggle; terminal states never transition further.
type TaskStatus string

const (
	StatusPending     TaskStatus = "pending"
	StatusQueued      TaskStatus = "queued"
	StatusDownloading TaskStatus = "downloading"
	StatusPaused      TaskStatus = "paused"
	StatusExtracting  TaskStatus = "extracting"
	StatusCompleted   TaskStatus = "completed"
	StatusError       TaskStatus = "error"
	StatusCanceled    TaskStatus = "canceled"
)

// Terminal reports whether a task in this status can never transition again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCanceled:
		return true
	default:
		return false
	}
}

// TaskKind distinguishes a single-file task from a folder aggregate in the
// on-disk state JSON's "type" discriminator.
type TaskKind string

const (
	KindFile   TaskKind = "file"
	KindFolder TaskKind = "folder"
)

// PartState records one byte-range segment of a SegmentedDownload.
type PartState struct {
	ID      int   `json:"id"`
	Start   int64 `json:"start"`
	End     int64 `json:"end"` // inclusive; -1 means "to end of stream" (unknown total size)
	Current int64 `json:"current"` // absolute offset of next byte to write
}

// Size returns the number of bytes this part spans, or -1 if its end is
// not yet known.
func (p PartState) Size() int64 {
	if p.End < 0 {
		return -1
	}
	return p.End - p.Start + 1
}

// Complete reports whether this part has written every byte in its range.
func (p PartState) Complete() bool {
	return p.End >= 0 && p.Current > p.End
}

// Downloaded returns the number of bytes written so far for this part.
func (p PartState) Downloaded() int64 {
	return p.Current - p.Start
}

// FileMeta is what a remote-file probe or a MetadataProvider entry
// produces: everything needed to plan a segmented download.
type FileMeta struct {
	URL            string
	Name           string
	Size           int64 // -1 if unknown
	AcceptsRanges  bool
	ETag           string
	LastModified   string
	RelativePath   string // set by folder scans, empty for a standalone file
	IsDir          bool
	AuthHeaders    map[string]string
}

// SpeedLimit is a bytes-per-second cap; zero means unlimited.
type SpeedLimit int64

// Timestamps bundles the creation/update bookkeeping every task carries.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
