// Package gcs stores transaction documents as objects in a Cloud Storage
// bucket shared by all users of an installation. Objects are named
// "<owner>/<scope>/<document name>"; ownership and reader grants are
// recorded both as object ACLs and as object metadata so that a user can
// find the documents shared with them.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/expense-sync/internal/remote"
)

const (
	metaOwner   = "owner"
	metaReaders = "readers"
	jsonType    = "application/json"
)

// Backend implements remote.Backend for one user on a bucket.
type Backend struct {
	client *storage.Client
	bucket string
	self   string
}

// New creates a Backend using Application Default Credentials.
func New(ctx context.Context, bucket, selfEmail string) (*Backend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs.New: bucket is required")
	}
	if selfEmail == "" {
		return nil, fmt.Errorf("gcs.New: user email is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs.New: create storage client: %w", err)
	}
	return NewWithClient(client, bucket, selfEmail), nil
}

// NewWithClient creates a Backend on an existing storage client. Close
// closes the client.
func NewWithClient(client *storage.Client, bucket, selfEmail string) *Backend {
	return &Backend{client: client, bucket: bucket, self: normalizeEmail(selfEmail)}
}

// Close releases the storage client.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Find implements remote.Backend.
func (b *Backend) Find(ctx context.Context, name string, scope remote.Scope) (remote.Handle, error) {
	object := objectName(b.self, scope, name)
	if _, err := b.bkt().Object(object).Attrs(ctx); err != nil {
		return "", mapError("find", object, err)
	}
	return remote.Handle(object), nil
}

// Create implements remote.Backend. It refuses to replace an existing object.
func (b *Backend) Create(ctx context.Context, name string, scope remote.Scope, content []byte) (remote.Handle, error) {
	object := objectName(b.self, scope, name)

	w := b.bkt().Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = jsonType
	w.Metadata = map[string]string{metaOwner: b.self}

	if err := writeAll(w, content); err != nil {
		return "", fmt.Errorf("create %s: %w", object, err)
	}
	return remote.Handle(object), nil
}

// Download implements remote.Backend.
func (b *Backend) Download(ctx context.Context, h remote.Handle) ([]byte, error) {
	r, err := b.bkt().Object(string(h)).NewReader(ctx)
	if err != nil {
		return nil, mapError("download", string(h), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("download %s: read object: %w", h, err)
	}
	return data, nil
}

// Upload implements remote.Backend. A new object generation would otherwise
// drop metadata and ACLs, so both are carried over from the current one.
func (b *Backend) Upload(ctx context.Context, h remote.Handle, content []byte) error {
	obj := b.bkt().Object(string(h))

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return mapError("upload", string(h), err)
	}
	if attrs.Metadata[metaOwner] != b.self {
		return fmt.Errorf("upload %s: caller %s is not the owner", h, b.self)
	}

	w := obj.If(storage.Conditions{GenerationMatch: attrs.Generation}).NewWriter(ctx)
	w.ContentType = jsonType
	w.Metadata = attrs.Metadata
	w.ACL = attrs.ACL

	if err := writeAll(w, content); err != nil {
		return fmt.Errorf("upload %s: %w", h, err)
	}
	return nil
}

// GrantReader implements remote.Backend.
func (b *Backend) GrantReader(ctx context.Context, h remote.Handle, email string) error {
	obj := b.bkt().Object(string(h))
	email = normalizeEmail(email)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return mapError("grant", string(h), err)
	}
	if !strings.HasPrefix(string(h), b.self+"/"+remote.ScopeShared.String()+"/") {
		return &remote.PermissionError{Handle: h, Email: email, Reason: "only shared-scope documents of the caller can be shared"}
	}

	if err := obj.ACL().Set(ctx, storage.ACLEntity("user-"+email), storage.RoleReader); err != nil {
		return &remote.PermissionError{Handle: h, Email: email, Reason: err.Error(), Err: err}
	}

	md := make(map[string]string, len(attrs.Metadata)+1)
	for k, v := range attrs.Metadata {
		md[k] = v
	}
	md[metaReaders] = addReader(md[metaReaders], email)

	if _, err := obj.Update(ctx, storage.ObjectAttrsToUpdate{Metadata: md}); err != nil {
		return fmt.Errorf("grant %s: record reader: %w", h, err)
	}
	return nil
}

// ListSharedWithMe implements remote.Backend.
func (b *Backend) ListSharedWithMe(ctx context.Context, name string) ([]remote.SharedFile, error) {
	query := &storage.Query{MatchGlob: "*/" + remote.ScopeShared.String() + "/" + name}

	var shared []remote.SharedFile
	it := b.bkt().Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list shared %s: %w", name, err)
		}

		owner := attrs.Metadata[metaOwner]
		if owner == b.self || !hasReader(attrs.Metadata[metaReaders], b.self) {
			continue
		}
		shared = append(shared, remote.SharedFile{
			Handle:      remote.Handle(attrs.Name),
			Name:        path.Base(attrs.Name),
			OwnerEmails: []string{owner},
		})
	}

	sort.Slice(shared, func(i, j int) bool { return shared[i].Handle < shared[j].Handle })
	return shared, nil
}

// Exists implements remote.Backend.
func (b *Backend) Exists(ctx context.Context, h remote.Handle) (bool, error) {
	_, err := b.bkt().Object(string(h)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", h, err)
	}
	return true, nil
}

func (b *Backend) bkt() *storage.BucketHandle {
	return b.client.Bucket(b.bucket)
}

// objectName builds "<owner>/<scope>/<name>".
func objectName(owner string, scope remote.Scope, name string) string {
	return path.Join(normalizeEmail(owner), scope.String(), name)
}

func writeAll(w *storage.Writer, content []byte) error {
	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to writer: %w", err)
	}
	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// addReader adds email to a comma-separated reader list, keeping it sorted and unique.
func addReader(readers, email string) string {
	set := map[string]bool{email: true}
	for _, r := range strings.Split(readers, ",") {
		if r = strings.TrimSpace(r); r != "" {
			set[r] = true
		}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func hasReader(readers, email string) bool {
	for _, r := range strings.Split(readers, ",") {
		if strings.TrimSpace(r) == email {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func mapError(op, object string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s %s: %w", op, object, remote.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, object, err)
}

var _ remote.Backend = (*Backend)(nil)
