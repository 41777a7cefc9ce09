// Package inmemory is a process-local remote file store that models several
// users, document ownership, and reader grants. It backs tests and the
// "memory" remote backend.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dvloznov/expense-sync/internal/remote"
)

// Op names a backend operation for failure injection.
type Op string

const (
	OpFind     Op = "find"
	OpCreate   Op = "create"
	OpDownload Op = "download"
	OpUpload   Op = "upload"
	OpGrant    Op = "grant"
	OpList     Op = "list"
	OpExists   Op = "exists"
)

type file struct {
	handle  remote.Handle
	name    string
	scope   remote.Scope
	owner   string
	readers map[string]bool
	content []byte
	trashed bool
	seq     int
}

// Server holds every user's documents. It is safe for concurrent use.
type Server struct {
	mu       sync.Mutex
	files    map[remote.Handle]*file
	failures map[Op]error
	seq      int
}

// NewServer creates an empty store.
func NewServer() *Server {
	return &Server{
		files:    make(map[remote.Handle]*file),
		failures: make(map[Op]error),
	}
}

// As returns the view of the store seen by the user identified by email.
func (s *Server) As(email string) *Backend {
	return &Backend{server: s, self: normalize(email)}
}

// FailOn makes every subsequent op return err until cleared with a nil err.
func (s *Server) FailOn(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Trash marks a document as deleted.
func (s *Server) Trash(h remote.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[h]; ok {
		f.trashed = true
	}
}

// Put writes raw content to a document regardless of ownership.
func (s *Server) Put(h remote.Handle, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[h]; ok {
		f.content = append([]byte(nil), content...)
	}
}

// Content returns the raw content of a document regardless of ownership.
func (s *Server) Content(h remote.Handle) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[h]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.content...), true
}

// Readers returns the emails granted read access to a document.
func (s *Server) Readers(h remote.Handle) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[h]
	if !ok {
		return nil
	}
	readers := make([]string, 0, len(f.readers))
	for email := range f.readers {
		readers = append(readers, email)
	}
	sort.Strings(readers)
	return readers
}

// Count returns the number of documents owned by email, trashed ones included.
func (s *Server) Count(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, f := range s.files {
		if f.owner == normalize(email) {
			n++
		}
	}
	return n
}

func (s *Server) fail(op Op) error {
	return s.failures[op]
}

// Backend is one user's view of a Server and implements remote.Backend.
type Backend struct {
	server *Server
	self   string
}

// Find implements remote.Backend.
func (b *Backend) Find(ctx context.Context, name string, scope remote.Scope) (remote.Handle, error) {
	s := b.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpFind); err != nil {
		return "", err
	}

	var found *file
	for _, f := range s.files {
		if f.trashed || f.owner != b.self || f.name != name || f.scope != scope {
			continue
		}
		if found == nil || f.seq < found.seq {
			found = f
		}
	}
	if found == nil {
		return "", remote.ErrNotFound
	}
	return found.handle, nil
}

// Create implements remote.Backend.
func (b *Backend) Create(ctx context.Context, name string, scope remote.Scope, content []byte) (remote.Handle, error) {
	s := b.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpCreate); err != nil {
		return "", err
	}

	s.seq++
	h := remote.Handle(uuid.NewString())
	s.files[h] = &file{
		handle:  h,
		name:    name,
		scope:   scope,
		owner:   b.self,
		readers: make(map[string]bool),
		content: append([]byte(nil), content...),
		seq:     s.seq,
	}
	return h, nil
}

// Download implements remote.Backend. Documents the caller can neither own
// nor read look absent, as they do on real backends.
func (b *Backend) Download(ctx context.Context, h remote.Handle) ([]byte, error) {
	s := b.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpDownload); err != nil {
		return nil, err
	}

	f, err := b.visible(h)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), f.content...), nil
}

// Upload implements remote.Backend.
func (b *Backend) Upload(ctx context.Context, h remote.Handle, content []byte) error {
	s := b.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpUpload); err != nil {
		return err
	}

	f, err := b.visible(h)
	if err != nil {
		return err
	}
	if f.owner != b.self {
		return fmt.Errorf("upload %s: caller %s is not the owner", h, b.self)
	}
	f.content = append([]byte(nil), content...)
	return nil
}

// GrantReader implements remote.Backend.
func (b *Backend) GrantReader(ctx context.Context, h remote.Handle, email string) error {
	s := b.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpGrant); err != nil {
		return err
	}

	f, err := b.visible(h)
	if err != nil {
		return err
	}
	if f.owner != b.self {
		return &remote.PermissionError{Handle: h, Email: email, Reason: "only the owner can share this file"}
	}
	if f.scope != remote.ScopeShared {
		return &remote.PermissionError{Handle: h, Email: email, Reason: "files in the private scope cannot be shared"}
	}
	f.readers[normalize(email)] = true
	return nil
}

// ListSharedWithMe implements remote.Backend. Results are in creation order.
func (b *Backend) ListSharedWithMe(ctx context.Context, name string) ([]remote.SharedFile, error) {
	s := b.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpList); err != nil {
		return nil, err
	}

	var matches []*file
	for _, f := range s.files {
		if f.trashed || f.name != name || f.owner == b.self || !f.readers[b.self] {
			continue
		}
		matches = append(matches, f)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })

	shared := make([]remote.SharedFile, 0, len(matches))
	for _, f := range matches {
		shared = append(shared, remote.SharedFile{Handle: f.handle, Name: f.name, OwnerEmails: []string{f.owner}})
	}
	return shared, nil
}

// Exists implements remote.Backend.
func (b *Backend) Exists(ctx context.Context, h remote.Handle) (bool, error) {
	s := b.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(OpExists); err != nil {
		return false, err
	}

	_, err := b.visible(h)
	return err == nil, nil
}

func (b *Backend) visible(h remote.Handle) (*file, error) {
	f, ok := b.server.files[h]
	if !ok || f.trashed || (f.owner != b.self && !f.readers[b.self]) {
		return nil, remote.ErrNotFound
	}
	return f, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ remote.Backend = (*Backend)(nil)
