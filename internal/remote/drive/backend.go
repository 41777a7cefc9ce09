// Package drive stores transaction documents in Google Drive. Private
// documents live in the application data folder; shareable documents live in
// the user's regular Drive so that reader permissions can be granted on them.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dvloznov/expense-sync/internal/remote"
)

const (
	appDataFolder = "appDataFolder"
	jsonMimeType  = "application/json"
)

// Backend implements remote.Backend on the Drive v3 API.
type Backend struct {
	service *drive.Service
}

// New creates a Backend authenticated with an OAuth access token obtained by
// the sign-in flow. Extra options are appended after the token source.
func New(ctx context.Context, accessToken string, opts ...option.ClientOption) (*Backend, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("drive.New: access token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)

	service, err := drive.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("drive.New: creating service: %w", err)
	}
	return &Backend{service: service}, nil
}

// NewFromService wraps an already configured Drive service.
func NewFromService(service *drive.Service) *Backend {
	return &Backend{service: service}
}

// Find implements remote.Backend.
func (b *Backend) Find(ctx context.Context, name string, scope remote.Scope) (remote.Handle, error) {
	call := b.service.Files.List().Fields("files(id,name)").PageSize(1).Context(ctx)

	switch scope {
	case remote.ScopePrivate:
		call = call.Spaces(appDataFolder).
			Q(fmt.Sprintf("name=%s and '%s' in parents and trashed=false", quote(name), appDataFolder))
	default:
		call = call.Spaces("drive").
			Q(fmt.Sprintf("name=%s and 'me' in owners and trashed=false", quote(name)))
	}

	list, err := call.Do()
	if err != nil {
		return "", mapError("find", err)
	}
	if len(list.Files) == 0 {
		return "", remote.ErrNotFound
	}
	return remote.Handle(list.Files[0].Id), nil
}

// Create implements remote.Backend as a multipart upload.
func (b *Backend) Create(ctx context.Context, name string, scope remote.Scope, content []byte) (remote.Handle, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: jsonMimeType,
	}
	if scope == remote.ScopePrivate {
		meta.Parents = []string{appDataFolder}
	}

	created, err := b.service.Files.Create(meta).
		Media(bytes.NewReader(content), googleapi.ContentType(jsonMimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", mapError("create", err)
	}
	return remote.Handle(created.Id), nil
}

// Download implements remote.Backend.
func (b *Backend) Download(ctx context.Context, h remote.Handle) ([]byte, error) {
	resp, err := b.service.Files.Get(string(h)).Context(ctx).Download()
	if err != nil {
		return nil, mapError("download", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: reading body: %w", h, err)
	}
	return data, nil
}

// Upload implements remote.Backend as a media-only update.
func (b *Backend) Upload(ctx context.Context, h remote.Handle, content []byte) error {
	_, err := b.service.Files.Update(string(h), &drive.File{}).
		Media(bytes.NewReader(content), googleapi.ContentType(jsonMimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return mapError("upload", err)
	}
	return nil
}

// GrantReader implements remote.Backend.
func (b *Backend) GrantReader(ctx context.Context, h remote.Handle, email string) error {
	perm := &drive.Permission{
		Type:         "user",
		Role:         "reader",
		EmailAddress: email,
	}

	_, err := b.service.Permissions.Create(string(h), perm).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			reason := gerr.Message
			if reason == "" {
				reason = fmt.Sprintf("Failed to share (%d)", gerr.Code)
			}
			return &remote.PermissionError{Handle: h, Email: email, Reason: reason, Err: err}
		}
		return &remote.PermissionError{Handle: h, Email: email, Err: err}
	}
	return nil
}

// ListSharedWithMe implements remote.Backend, following every result page.
func (b *Backend) ListSharedWithMe(ctx context.Context, name string) ([]remote.SharedFile, error) {
	var shared []remote.SharedFile

	err := b.service.Files.List().
		Q(fmt.Sprintf("name=%s and sharedWithMe=true and trashed=false", quote(name))).
		Fields("nextPageToken", "files(id,name,owners(emailAddress))").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				owners := make([]string, 0, len(f.Owners))
				for _, o := range f.Owners {
					if o != nil && o.EmailAddress != "" {
						owners = append(owners, o.EmailAddress)
					}
				}
				shared = append(shared, remote.SharedFile{
					Handle:      remote.Handle(f.Id),
					Name:        f.Name,
					OwnerEmails: owners,
				})
			}
			return nil
		})
	if err != nil {
		return nil, mapError("list shared", err)
	}
	return shared, nil
}

// Exists implements remote.Backend.
func (b *Backend) Exists(ctx context.Context, h remote.Handle) (bool, error) {
	f, err := b.service.Files.Get(string(h)).Fields("id", "trashed").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapError("exists", err)
	}
	return !f.Trashed, nil
}

// quote renders s as a single-quoted Drive query literal.
func quote(s string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
	return "'" + escaped + "'"
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func mapError(op string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", op, remote.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ remote.Backend = (*Backend)(nil)
