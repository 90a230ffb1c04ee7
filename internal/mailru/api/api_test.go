package api

import (
	"context"
	"errors"
	"mailru-backend/internal/mailru/session"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRequester struct {
	calls []session.Params
	err   error
}

func (f *fakeRequester) Request(_ context.Context, params session.Params) (any, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return params["method"], nil
}

func TestMethodPath(t *testing.T) {
	req := &fakeRequester{}
	a := New(req)

	res, err := a.Method("a").Sub("b").Sub("c").Call(context.Background(), session.Params{"x": 1})
	require.NoError(t, err)
	require.Equal(t, "a.b.c", res)
	require.Equal(t, session.Params{"x": 1, "method": "a.b.c"}, req.calls[0])
}

func TestCallDoesNotMutateParams(t *testing.T) {
	req := &fakeRequester{}
	params := session.Params{"uids": "1"}
	_, err := New(req).Call(context.Background(), "users.getInfo", params)
	require.NoError(t, err)
	require.NotContains(t, params, "method")
}

func TestErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	req := &fakeRequester{err: boom}
	_, err := New(req).Call(context.Background(), "users.getInfo", session.Params{})
	require.ErrorIs(t, err, boom)
}

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("users.getInfo"))
	require.Error(t, ValidateName(""))
	require.Error(t, ValidateName("users..getInfo"))
	require.Error(t, ValidateName(".getInfo"))
}

func TestJoin(t *testing.T) {
	require.Equal(t, "stream.getByAuthor", Join("stream", "getByAuthor"))
	require.Equal(t, "getByAuthor", Join("", "getByAuthor"))
}
