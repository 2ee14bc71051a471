package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"package-registry/auth"
	"package-registry/config"
	"package-registry/index"
	"package-registry/orm"
	"package-registry/proxy"
	"package-registry/storage"
)

// fakeDirectory is an in-memory Directory with the same miss/conflict
// semantics as the database layer.
type fakeDirectory struct {
	mu     sync.Mutex
	users  map[string]orm.User
	tokens map[string]orm.Token
	groups map[string]orm.Group
	grants []orm.PermissionGrant
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:  map[string]orm.User{},
		tokens: map[string]orm.Token{},
		groups: map[string]orm.Group{},
	}
}

func (f *fakeDirectory) CreateUser(_ context.Context, user *orm.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.users {
		if existing.Username == user.Username {
			return &orm.ConflictError{Conflict: "create user"}
		}
	}
	if user.ID == "" {
		user.ID = orm.NewID()
	}
	f.users[user.ID] = *user

	return nil
}

func (f *fakeDirectory) UserByID(_ context.Context, id string) (*orm.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return nil, &orm.NotFoundError{Search: "user id " + id}
	}

	return &user, nil
}

func (f *fakeDirectory) UserByUsername(_ context.Context, username string) (*orm.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, user := range f.users {
		if user.Username == username {
			return &user, nil
		}
	}

	return nil, &orm.NotFoundError{Search: "username " + username}
}

func (f *fakeDirectory) ListUsers(_ context.Context) ([]orm.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users := make([]orm.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b orm.User) int {
		switch {
		case a.Username < b.Username:
			return -1
		case a.Username > b.Username:
			return 1
		default:
			return 0
		}
	})

	return users, nil
}

func (f *fakeDirectory) SaveUser(_ context.Context, user *orm.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[user.ID]; !ok {
		return &orm.NotFoundError{Search: "user id " + user.ID}
	}
	f.users[user.ID] = *user

	return nil
}

func (f *fakeDirectory) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[id]; !ok {
		return &orm.NotFoundError{Search: "user id " + id}
	}
	delete(f.users, id)

	f.grants = slices.DeleteFunc(f.grants, func(grant orm.PermissionGrant) bool {
		return grant.TargetID == id
	})
	for tokenID, token := range f.tokens {
		if token.LinkedUser != nil && *token.LinkedUser == id {
			delete(f.tokens, tokenID)
		}
	}

	return nil
}

func (f *fakeDirectory) CreateToken(_ context.Context, token *orm.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.tokens {
		if existing.Secret == token.Secret {
			return &orm.ConflictError{Conflict: "create token"}
		}
	}
	if token.ID == "" {
		token.ID = orm.NewID()
	}
	f.tokens[token.ID] = *token

	return nil
}

func (f *fakeDirectory) TokenByID(_ context.Context, id string) (*orm.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[id]
	if !ok {
		return nil, &orm.NotFoundError{Search: "token id " + id}
	}

	return &token, nil
}

func (f *fakeDirectory) TokenBySecret(_ context.Context, secret string) (*orm.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, token := range f.tokens {
		if token.Secret == secret {
			return &token, nil
		}
	}

	return nil, &orm.NotFoundError{Search: "token secret"}
}

func (f *fakeDirectory) TokensForUser(_ context.Context, userID string) ([]orm.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var tokens []orm.Token
	for _, token := range f.tokens {
		if token.LinkedUser != nil && *token.LinkedUser == userID {
			tokens = append(tokens, token)
		}
	}

	return tokens, nil
}

func (f *fakeDirectory) SaveToken(_ context.Context, token *orm.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.tokens[token.ID]; !ok {
		return &orm.NotFoundError{Search: "token id " + token.ID}
	}
	f.tokens[token.ID] = *token

	return nil
}

func (f *fakeDirectory) CreateGroup(_ context.Context, group *orm.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.groups {
		if existing.Name == group.Name {
			return &orm.ConflictError{Conflict: "create group"}
		}
	}
	if group.ID == "" {
		group.ID = orm.NewID()
	}
	f.groups[group.ID] = *group

	return nil
}

func (f *fakeDirectory) GroupByID(_ context.Context, id string) (*orm.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	group, ok := f.groups[id]
	if !ok {
		return nil, &orm.NotFoundError{Search: "group id " + id}
	}

	return &group, nil
}

func (f *fakeDirectory) GroupByName(_ context.Context, name string) (*orm.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, group := range f.groups {
		if group.Name == name {
			return &group, nil
		}
	}

	return nil, &orm.NotFoundError{Search: "group name " + name}
}

func (f *fakeDirectory) ListGroups(_ context.Context) ([]orm.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	groups := make([]orm.Group, 0, len(f.groups))
	for _, group := range f.groups {
		groups = append(groups, group)
	}

	return groups, nil
}

func (f *fakeDirectory) GroupsByIDs(_ context.Context, ids []string) ([]orm.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var groups []orm.Group
	for _, id := range ids {
		if group, ok := f.groups[id]; ok {
			groups = append(groups, group)
		}
	}

	return groups, nil
}

func (f *fakeDirectory) MembersOf(
	_ context.Context,
	groupID string,
) ([]orm.User, []orm.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var users []orm.User
	for _, user := range f.users {
		if slices.Contains(user.Groups, groupID) {
			users = append(users, user)
		}
	}
	var tokens []orm.Token
	for _, token := range f.tokens {
		if slices.Contains(token.Groups, groupID) {
			tokens = append(tokens, token)
		}
	}

	return users, tokens, nil
}

func (f *fakeDirectory) DeleteGroup(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.groups[id]; !ok {
		return &orm.NotFoundError{Search: "group id " + id}
	}
	delete(f.groups, id)

	f.grants = slices.DeleteFunc(f.grants, func(grant orm.PermissionGrant) bool {
		return grant.TargetID == id
	})
	for userID, user := range f.users {
		user.Groups = slices.DeleteFunc(user.Groups, func(g string) bool { return g == id })
		f.users[userID] = user
	}
	for tokenID, token := range f.tokens {
		token.Groups = slices.DeleteFunc(token.Groups, func(g string) bool { return g == id })
		f.tokens[tokenID] = token
	}

	return nil
}

func (f *fakeDirectory) CreateGrant(_ context.Context, grant *orm.PermissionGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if grant.ID == "" {
		grant.ID = orm.NewID()
	}
	f.grants = append(f.grants, *grant)

	return nil
}

func matchProject(grantProject, filter *string) bool {
	if filter == nil {
		return true
	}

	return grantProject == nil || *grantProject == *filter
}

func (f *fakeDirectory) GrantsForTarget(
	_ context.Context,
	targetType, targetID string,
	project *string,
) ([]orm.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []orm.PermissionGrant
	for _, grant := range f.grants {
		if grant.TargetType == targetType && grant.TargetID == targetID &&
			matchProject(grant.Project, project) {
			out = append(out, grant)
		}
	}

	return out, nil
}

func (f *fakeDirectory) GrantsForTargets(
	_ context.Context,
	targetIDs []string,
	project *string,
) ([]orm.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []orm.PermissionGrant
	for _, grant := range f.grants {
		if slices.Contains(targetIDs, grant.TargetID) &&
			matchProject(grant.Project, project) {
			out = append(out, grant)
		}
	}

	return out, nil
}

func (f *fakeDirectory) DeleteGrant(
	_ context.Context,
	targetType, targetID, permission string,
	project *string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.grants = slices.DeleteFunc(f.grants, func(grant orm.PermissionGrant) bool {
		if grant.TargetType != targetType || grant.TargetID != targetID ||
			grant.Permission != permission {
			return false
		}
		if project == nil {
			return grant.Project == nil
		}

		return grant.Project != nil && *grant.Project == *project
	})

	return nil
}

// testRegistry bundles everything a handler test touches.
type testRegistry struct {
	cfg    *config.AppConfig
	dir    *fakeDirectory
	idx    *index.Index
	router *gin.Engine
}

func newTestRegistry(t *testing.T) *testRegistry {
	return newTestRegistryWith(t, nil)
}

func newTestRegistryWith(t *testing.T, mutate func(*config.AppConfig)) *testRegistry {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		LogLevel: "error",
		API:      config.APIConfig{PathBase: "/", Listen: ":0"},
		Auth: config.AuthConfig{
			Admin: config.AdminConfig{
				Username: "admin",
				Password: "admin-pw",
				Enabled:  true,
			},
		},
		Features: config.FeatureConfig{Auth: true, Proxy: false},
	}
	if mutate != nil {
		mutate(cfg)
	}

	dir := newFakeDirectory()
	idx := index.New(storage.NewMemory())
	server := NewServer(cfg, dir, idx, proxy.New(cfg.Mirrors(), time.Second))

	return &testRegistry{cfg: cfg, dir: dir, idx: idx, router: server.Router()}
}

// seedUser creates a stored user, optionally with grants.
func (r *testRegistry) seedUser(
	t *testing.T,
	username, password string,
	grants ...orm.PermissionGrant,
) *orm.User {
	t.Helper()

	user, err := auth.NewUser(username, &password)
	require.NoError(t, err)
	require.NoError(t, r.dir.CreateUser(context.Background(), user))

	for i := range grants {
		grants[i].TargetType = orm.TargetAuth
		grants[i].TargetID = user.ID
		require.NoError(t, r.dir.CreateGrant(context.Background(), &grants[i]))
	}

	return user
}

func (r *testRegistry) seedFile(t *testing.T, name, version, filename string) {
	t.Helper()

	meta := &index.FileMetadata{
		MetadataVersion: "2.1",
		Name:            name,
		Version:         version,
		Filename:        filename,
	}
	require.NoError(t, r.idx.Publish(context.Background(), meta, []byte("blob")))
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// do performs one request against the router. A nil body sends no payload;
// non-nil bodies are JSON-encoded.
func (r *testRegistry) do(
	t *testing.T,
	method, path, authHeader string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	rec := httptest.NewRecorder()
	r.router.ServeHTTP(rec, req)

	return rec
}

// upload performs a multipart legacy upload.
func (r *testRegistry) upload(
	t *testing.T,
	authHeader, name, version, filename string,
) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("metadata_version", "2.1"))
	require.NoError(t, writer.WriteField("name", name))
	require.NoError(t, writer.WriteField("version", version))
	part, err := writer.CreateFormFile("content", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("distribution bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/packages/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	rec := httptest.NewRecorder()
	r.router.ServeHTTP(rec, req)

	return rec
}
