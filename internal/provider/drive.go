package provider

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"corefetch/internal/folder"
	"corefetch/internal/model"
)

// TokenSource supplies a short-lived OAuth access token. The engine is
// expected to own the refresh flow (token storage, expiry, re-auth); this
// package only ever reads the current token, matching spec §6's "the
// core never speaks OAuth directly".
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// DriveProvider adapts a Google Drive account to folder.MetadataProvider.
// Grounded on original_source/server/core/drive.py's DriveManager:
// paged listing, folder-mimeType recursion, and a single Bearer header
// reused for every file fetch in one folder run.
type DriveProvider struct {
	tokens TokenSource
}

// NewDriveProvider builds a DriveProvider that reads its access token
// from tokens on every AuthHeaders call.
func NewDriveProvider(tokens TokenSource) *DriveProvider {
	return &DriveProvider{tokens: tokens}
}

func (p *DriveProvider) service(ctx context.Context) (*drive.Service, error) {
	tok, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("drive auth: %w: %w", model.ErrAuthExpired, err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
	return drive.NewService(ctx, option.WithTokenSource(ts))
}

// List returns the direct children of a Drive folder id, paging through
// Files.List results the way DriveManager.list_folder does.
func (p *DriveProvider) List(ctx context.Context, folderID string) ([]folder.Entry, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return nil, err
	}

	var entries []folder.Entry
	pageToken := ""
	for {
		call := svc.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
			Fields("nextPageToken, files(id, name, mimeType, size)").
			PageSize(1000)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("drive list %s: %w: %w", folderID, model.ErrTransient, err)
		}
		for _, f := range res.Files {
			entries = append(entries, folder.Entry{
				ID:    f.Id,
				Name:  f.Name,
				Size:  f.Size,
				IsDir: f.MimeType == driveFolderMimeType,
			})
		}
		pageToken = res.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return entries, nil
}

// Metadata resolves a Drive file id to its direct media-fetch URL and
// size, mirroring DriveManager.get_file_metadata's webContentLink use.
func (p *DriveProvider) Metadata(ctx context.Context, fileID string) (model.FileMeta, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return model.FileMeta{}, err
	}
	f, err := svc.Files.Get(fileID).Fields("id, name, mimeType, size").Context(ctx).Do()
	if err != nil {
		return model.FileMeta{}, fmt.Errorf("drive metadata %s: %w: %w", fileID, model.ErrTransient, err)
	}
	return model.FileMeta{
		URL:  fmt.Sprintf("https://www.googleapis.com/drive/v3/files/%s?alt=media", f.Id),
		Name: f.Name,
		Size: f.Size,
	}, nil
}

// AuthHeaders returns the single Bearer header every media-fetch request
// against this folder run must carry.
func (p *DriveProvider) AuthHeaders(ctx context.Context) (map[string]string, error) {
	tok, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("drive auth: %w: %w", model.ErrAuthExpired, err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}
