// Package provider implements internal/folder's MetadataProvider against
// concrete remote storage backends: Google Drive and S3. FolderAggregator
// itself never imports this package — the engine wires a concrete
// provider in at construction time, keeping OAuth and cloud SDKs out of
// the core (see spec §6, external interfaces).
package provider

import "corefetch/internal/folder"

// Verify the concrete providers satisfy folder.MetadataProvider at
// compile time.
var (
	_ folder.MetadataProvider = (*DriveProvider)(nil)
	_ folder.MetadataProvider = (*S3Provider)(nil)
)

// driveFolderMimeType is the mimeType Drive assigns to folder objects, as
// used by DriveManager's recursive scan in the original implementation.
const driveFolderMimeType = "application/vnd.google-apps.folder"
