package reqerr

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		err  error
		name string
	}{
		{ErrAbort, NameAbort},
		{errors.Wrap(ErrBusy, "run"), NameConfiguration},
		{&StatusError{StatusCode: http.StatusNotFound}, NameHTTP},
		{fmt.Errorf("send: %w", context.Canceled), NameAbort},
		{context.DeadlineExceeded, NameTimeout},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, NameNetwork},
		{errors.New("boom"), NameUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			e := Normalize(tc.err)
			require.NotNil(t, e)
			assert.Equal(t, tc.name, e.Name)
			assert.True(t, Is(tc.err, tc.name))
		})
	}
	assert.Nil(t, Normalize(nil))
	assert.Same(t, ErrTimeout, Normalize(ErrTimeout))
}

func TestErrorIsMatchesByName(t *testing.T) {
	err := Wrap(NameDecode, errors.New("bad"), "decode body")
	assert.True(t, errors.Is(err, &Error{Name: NameDecode}))
	assert.False(t, errors.Is(err, &Error{Name: NameDecode, Message: "other"}))
	assert.False(t, errors.Is(err, ErrAbort))
	assert.Equal(t, "DecodeError: decode body", err.Error())
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{StatusCode: http.StatusBadGateway, Body: []byte(" upstream down \n")}
	assert.Equal(t, "http 502 Bad Gateway: upstream down", err.Error())
}
