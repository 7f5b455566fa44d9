package users

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/rpc"
)

type call struct {
	op      string
	payload string
}

type stubCaller struct {
	calls []call
	data  string
	err   error
}

func (s *stubCaller) Call(_ context.Context, op string, payload, result any, _ ...rpc.CallOption) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.calls = append(s.calls, call{op: op, payload: string(encoded)})
	if s.err != nil {
		return s.err
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal([]byte(s.data), result)
}

const storedUser = `{"id":"u1","email":"a@b.c","password":"$2b$10$hash","displayName":"Ann"}`

func TestAuthenticateProjectsView(t *testing.T) {
	caller := &stubCaller{data: storedUser}
	svc := NewService(caller)

	view, err := svc.Authenticate(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", view.ID)
	assert.Equal(t, "Ann", view.DisplayName)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, OpAuthenticate, caller.calls[0].op)
	assert.JSONEq(t, `{"email":"a@b.c","password":"pw"}`, caller.calls[0].payload)

	encoded, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "hash")
}

func TestAuthenticateMismatchIsNotFound(t *testing.T) {
	caller := &stubCaller{err: apperr.FromCode(OpAuthenticate, 401, "invalid credentials")}
	svc := NewService(caller)

	_, err := svc.Authenticate(context.Background(), "a@b.c", "wrong")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListProjectsEveryUser(t *testing.T) {
	caller := &stubCaller{data: `[` + storedUser + `,{"id":"u2","email":"x@y.z","password":"p","displayName":"X"}]`}
	svc := NewService(caller)

	views, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "u2", views[1].ID)
	assert.Equal(t, `{}`, caller.calls[0].payload)

	encoded, err := json.Marshal(views)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(encoded), "password"))
}

func TestResultWithoutIDIsInternal(t *testing.T) {
	caller := &stubCaller{data: `{"email":"a@b.c"}`}
	svc := NewService(caller)

	_, err := svc.Get(context.Background(), "u1")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestMissingIDRejectedBeforeCall(t *testing.T) {
	caller := &stubCaller{data: storedUser}
	svc := NewService(caller)

	_, err := svc.Get(context.Background(), " ")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	_, err = svc.Delete(context.Background(), "")
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	assert.Empty(t, caller.calls)
}

func TestCreateSendsAllFields(t *testing.T) {
	caller := &stubCaller{data: storedUser}
	svc := NewService(caller)

	_, err := svc.Create(context.Background(), NewUser{Email: " a@b.c ", Password: "pw", DisplayName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, OpCreate, caller.calls[0].op)
	assert.JSONEq(t, `{"email":"a@b.c","password":"pw","displayName":"Ann"}`, caller.calls[0].payload)

	_, err = svc.Create(context.Background(), NewUser{Email: "a@b.c"})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	assert.Len(t, caller.calls, 1)
}

func TestUpdateOmitsUnsetFields(t *testing.T) {
	caller := &stubCaller{data: storedUser}
	svc := NewService(caller)

	name := "Annie"
	_, err := svc.Update(context.Background(), "u1", Update{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, OpUpdate, caller.calls[0].op)
	assert.JSONEq(t, `{"id":"u1","displayName":"Annie"}`, caller.calls[0].payload)
	assert.NotContains(t, caller.calls[0].payload, "null")

	_, err = svc.Update(context.Background(), "u1", Update{})
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	assert.Len(t, caller.calls, 1)
}

func TestDeleteReturnsDeletedUser(t *testing.T) {
	caller := &stubCaller{data: storedUser}
	svc := NewService(caller)

	view, err := svc.Delete(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", view.ID)
	assert.JSONEq(t, `{"id":"u1"}`, caller.calls[0].payload)
}
