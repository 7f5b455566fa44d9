package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/auth"
	"github.com/bortube/gateway/internal/models"
	"github.com/bortube/gateway/internal/users"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type userServiceStub struct {
	users    map[string]models.User
	password map[string]string
	created  []users.NewUser
	updated  map[string]users.Update
	deleted  []string
	err      error
}

func newUserServiceStub(list ...models.User) *userServiceStub {
	s := &userServiceStub{
		users:    make(map[string]models.User),
		password: make(map[string]string),
		updated:  make(map[string]users.Update),
	}
	for _, u := range list {
		s.users[u.ID] = u
		s.password[u.Email] = u.Password
	}
	return s
}

func (s *userServiceStub) Authenticate(_ context.Context, email, password string) (models.UserView, error) {
	if s.err != nil {
		return models.UserView{}, s.err
	}
	for _, u := range s.users {
		if u.Email == email && s.password[email] == password {
			return u.View(), nil
		}
	}
	return models.UserView{}, apperr.NotFound(users.OpAuthenticate, "user not found")
}

func (s *userServiceStub) List(context.Context) ([]models.UserView, error) {
	out := make([]models.UserView, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.View())
	}
	return out, s.err
}

func (s *userServiceStub) Get(_ context.Context, id string) (models.UserView, error) {
	u, ok := s.users[id]
	if !ok {
		return models.UserView{}, apperr.NotFound(users.OpGet, "user not found")
	}
	return u.View(), nil
}

func (s *userServiceStub) Delete(_ context.Context, id string) (models.UserView, error) {
	u, ok := s.users[id]
	if !ok {
		return models.UserView{}, apperr.NotFound(users.OpDelete, "user not found")
	}
	delete(s.users, id)
	s.deleted = append(s.deleted, id)
	return u.View(), nil
}

func (s *userServiceStub) Create(_ context.Context, in users.NewUser) (models.UserView, error) {
	if s.err != nil {
		return models.UserView{}, s.err
	}
	s.created = append(s.created, in)
	u := models.User{ID: "new-user", Email: in.Email, Password: in.Password, DisplayName: in.DisplayName}
	s.users[u.ID] = u
	return u.View(), nil
}

func (s *userServiceStub) Update(_ context.Context, id string, in users.Update) (models.UserView, error) {
	u, ok := s.users[id]
	if !ok {
		return models.UserView{}, apperr.NotFound(users.OpUpdate, "user not found")
	}
	s.updated[id] = in
	if in.DisplayName != nil {
		u.DisplayName = *in.DisplayName
	}
	s.users[id] = u
	return u.View(), nil
}

func newSessions() *auth.Manager {
	return auth.NewManager(time.Minute, time.Hour, testSecret, auth.NewInMemorySessionStore())
}

func bearer(t *testing.T, sessions *auth.Manager, userID string) string {
	t.Helper()
	tokens, err := sessions.Issue(context.Background(), userID)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	return "Bearer " + tokens.AccessToken
}

func do(t *testing.T, h http.Handler, method, target, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}
