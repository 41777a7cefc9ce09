package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testBucket = "expenses-test"

type aclRule struct {
	Entity string `json:"entity"`
	Role   string `json:"role"`
}

type objectMeta struct {
	Name        string            `json:"name"`
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata"`
	ACL         []aclRule         `json:"acl"`
}

type fakeObject struct {
	objectMeta
	generation int64
	data       []byte
}

type uploadSession struct {
	meta         objectMeta
	precondition string
}

// fakeGCS serves the subset of the Cloud Storage JSON API the backend uses:
// media and resumable inserts with ifGenerationMatch, object get and patch,
// object ACL updates and listing with matchGlob.
type fakeGCS struct {
	mu       sync.Mutex
	objects  map[string]*fakeObject
	sessions map[string]uploadSession
	nextGen  int64
	uploads  int
	// inserts records the ifGenerationMatch value of every insert per object.
	inserts map[string][]string
	globs   []string
	srv     *httptest.Server
}

func newFakeGCS(t *testing.T) *fakeGCS {
	t.Helper()
	f := &fakeGCS{
		objects:  make(map[string]*fakeObject),
		sessions: make(map[string]uploadSession),
		inserts:  make(map[string][]string),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// backend returns a Backend acting as email against the fake server.
func (f *fakeGCS) backend(t *testing.T, email string) *Backend {
	t.Helper()
	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(f.srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		storage.WithJSONReads(),
	)
	require.NoError(t, err)
	b := NewWithClient(client, testBucket, email)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func (f *fakeGCS) object(name string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[name]
	if !ok {
		return fakeObject{}, false
	}
	out := *obj
	out.Metadata = make(map[string]string, len(obj.Metadata))
	for k, v := range obj.Metadata {
		out.Metadata[k] = v
	}
	out.ACL = append([]aclRule(nil), obj.ACL...)
	return out, true
}

// preconditions returns the ifGenerationMatch value sent with each insert of name.
func (f *fakeGCS) preconditions(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inserts[name]...)
}

func (f *fakeGCS) lastGlob() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.globs) == 0 {
		return ""
	}
	return f.globs[len(f.globs)-1]
}

func (f *fakeGCS) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	escaped := r.URL.EscapedPath()
	uploadPrefix := "/upload/storage/v1/b/" + testBucket + "/o"
	objectsPrefix := "/storage/v1/b/" + testBucket + "/o"

	switch {
	case strings.HasPrefix(escaped, uploadPrefix):
		f.upload(w, r)
	case escaped == objectsPrefix && r.Method == http.MethodGet:
		f.list(w, r)
	case strings.HasPrefix(escaped, objectsPrefix+"/"):
		rest := strings.TrimPrefix(escaped, objectsPrefix+"/")
		escapedName, entity, isACL := strings.Cut(rest, "/acl/")
		name, err := url.PathUnescape(escapedName)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		switch {
		case isACL && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
			f.setACL(w, r, name, entity)
		case r.Method == http.MethodGet && r.URL.Query().Get("alt") == "media":
			f.media(w, name)
		case r.Method == http.MethodGet:
			f.get(w, name)
		case r.Method == http.MethodPatch:
			f.patch(w, r, name)
		default:
			writeError(w, http.StatusMethodNotAllowed, r.Method)
		}
	case strings.HasPrefix(r.URL.Path, "/"+testBucket+"/"):
		f.media(w, strings.TrimPrefix(r.URL.Path, "/"+testBucket+"/"))
	default:
		writeError(w, http.StatusNotFound, "unknown path "+escaped)
	}
}

func (f *fakeGCS) upload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch q.Get("uploadType") {
	case "multipart":
		meta, data, err := readMultipart(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.commit(w, meta, q.Get("ifGenerationMatch"), data)
	case "resumable":
		if id := q.Get("upload_id"); id != "" {
			session, ok := f.sessions[id]
			if !ok {
				writeError(w, http.StatusNotFound, "unknown upload "+id)
				return
			}
			data, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			delete(f.sessions, id)
			f.commit(w, session.meta, session.precondition, data)
			return
		}
		var meta objectMeta
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if meta.Name == "" {
			meta.Name = q.Get("name")
		}
		f.uploads++
		id := strconv.Itoa(f.uploads)
		f.sessions[id] = uploadSession{meta: meta, precondition: q.Get("ifGenerationMatch")}
		w.Header().Set("Location", f.srv.URL+"/upload/storage/v1/b/"+testBucket+"/o?uploadType=resumable&upload_id="+id)
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusBadRequest, "unsupported uploadType "+q.Get("uploadType"))
	}
}

func readMultipart(r *http.Request) (objectMeta, []byte, error) {
	var meta objectMeta
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return meta, nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	part, err := mr.NextPart()
	if err != nil {
		return meta, nil, fmt.Errorf("metadata part: %w", err)
	}
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		return meta, nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta.Name == "" {
		meta.Name = r.URL.Query().Get("name")
	}

	part, err = mr.NextPart()
	if err != nil {
		return meta, nil, fmt.Errorf("media part: %w", err)
	}
	data, err := io.ReadAll(part)
	return meta, data, err
}

// commit stores an inserted object, honouring ifGenerationMatch.
func (f *fakeGCS) commit(w http.ResponseWriter, meta objectMeta, precondition string, data []byte) {
	f.inserts[meta.Name] = append(f.inserts[meta.Name], precondition)

	existing, exists := f.objects[meta.Name]
	if precondition != "" {
		want, err := strconv.ParseInt(precondition, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if (want == 0 && exists) || (want != 0 && (!exists || existing.generation != want)) {
			writeError(w, http.StatusPreconditionFailed, "conditionNotMet")
			return
		}
	}

	f.nextGen++
	obj := &fakeObject{objectMeta: meta, generation: f.nextGen, data: data}
	f.objects[meta.Name] = obj
	writeJSON(w, obj.resource())
}

func (f *fakeGCS) get(w http.ResponseWriter, name string) {
	obj, ok := f.objects[name]
	if !ok {
		writeError(w, http.StatusNotFound, "No such object: "+name)
		return
	}
	writeJSON(w, obj.resource())
}

func (f *fakeGCS) media(w http.ResponseWriter, name string) {
	obj, ok := f.objects[name]
	if !ok {
		writeError(w, http.StatusNotFound, "No such object: "+name)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	w.Header().Set("Last-Modified", time.Unix(0, 0).UTC().Format(http.TimeFormat))
	w.Header().Set("X-Goog-Generation", strconv.FormatInt(obj.generation, 10))
	w.Header().Set("X-Goog-Metageneration", "1")
	_, _ = w.Write(obj.data)
}

func (f *fakeGCS) patch(w http.ResponseWriter, r *http.Request, name string) {
	obj, ok := f.objects[name]
	if !ok {
		writeError(w, http.StatusNotFound, "No such object: "+name)
		return
	}
	var body struct {
		Metadata map[string]*string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if obj.Metadata == nil {
		obj.Metadata = make(map[string]string)
	}
	for k, v := range body.Metadata {
		if v == nil {
			delete(obj.Metadata, k)
			continue
		}
		obj.Metadata[k] = *v
	}
	writeJSON(w, obj.resource())
}

func (f *fakeGCS) setACL(w http.ResponseWriter, r *http.Request, name, escapedEntity string) {
	obj, ok := f.objects[name]
	if !ok {
		writeError(w, http.StatusNotFound, "No such object: "+name)
		return
	}
	var rule aclRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rule.Entity == "" {
		rule.Entity, _ = url.PathUnescape(escapedEntity)
	}

	replaced := false
	for i := range obj.ACL {
		if obj.ACL[i].Entity == rule.Entity {
			obj.ACL[i].Role = rule.Role
			replaced = true
		}
	}
	if !replaced {
		obj.ACL = append(obj.ACL, rule)
	}
	writeJSON(w, rule)
}

func (f *fakeGCS) list(w http.ResponseWriter, r *http.Request) {
	glob := r.URL.Query().Get("matchGlob")
	f.globs = append(f.globs, glob)

	items := []map[string]any{}
	for name, obj := range f.objects {
		if glob != "" {
			if ok, _ := path.Match(glob, name); !ok {
				continue
			}
		}
		items = append(items, obj.resource())
	}
	writeJSON(w, map[string]any{"kind": "storage#objects", "items": items})
}

func (o *fakeObject) resource() map[string]any {
	acl := make([]aclRule, len(o.ACL))
	copy(acl, o.ACL)
	return map[string]any{
		"kind":           "storage#object",
		"bucket":         testBucket,
		"name":           o.Name,
		"generation":     strconv.FormatInt(o.generation, 10),
		"metageneration": "1",
		"contentType":    o.ContentType,
		"size":           strconv.Itoa(len(o.data)),
		"metadata":       o.Metadata,
		"acl":            acl,
		"updated":        time.Unix(0, 0).UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
