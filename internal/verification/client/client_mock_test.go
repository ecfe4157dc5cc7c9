package client

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"kycflow/internal/verification/client/mocks"
	"kycflow/pkg/domain"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestRetryReplaysBodyWithStartingCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)

	c := New(Config{BaseURL: "http://verification.test", RetryAttempts: 1},
		domain.Credentials{APIKey: "original-key-1"},
		WithHTTPClient(doer), WithBackoff(fastBackoff))

	var bodies []string
	var keys []string
	var requestIDs []string
	record := func(req *http.Request) {
		data, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		bodies = append(bodies, string(data))
		keys = append(keys, req.Header.Get("x-api-key"))
		requestIDs = append(requestIDs, req.Header.Get("X-Request-ID"))
	}

	gomock.InOrder(
		doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			record(req)
			c.UpdateCredentials(domain.Credentials{APIKey: "rotated-key-2"})
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}),
		doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			record(req)
			return jsonResponse(http.StatusOK, `{"success":true,"data":{}}`), nil
		}),
	)

	img := &domain.Image{Name: "front.png", ContentType: "image/png", Data: []byte("png-bytes")}
	_, err := c.SubmitDocument(context.Background(), "sess-1", "passport", img, nil, "")
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
	assert.Contains(t, bodies[0], "png-bytes")
	assert.Equal(t, []string{"original-key-1", "original-key-1"}, keys)
	assert.Equal(t, requestIDs[0], requestIDs[1])
	assert.Equal(t, "rotated-key-2", c.Credentials().APIKey)
}

func TestSubmissionNotRepeatedAfterConnectionReset(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).
		Return(nil, &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}).
		Times(1)

	c := New(Config{BaseURL: "http://verification.test", RetryAttempts: 3},
		domain.Credentials{APIKey: "key-123456"}, WithHTTPClient(doer), WithBackoff(fastBackoff))

	img := &domain.Image{Name: "front.png", ContentType: "image/png", Data: []byte("png-bytes")}
	_, err := c.SubmitDocument(context.Background(), "sess-1", "passport", img, nil, "")
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestShouldRetry(t *testing.T) {
	dial := newAPIError(KindNetwork, OpSubmitDocument, "no response", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")})
	reset := newAPIError(KindNetwork, OpSubmitDocument, "no response", errors.New("connection reset by peer"))
	server := statusError(OpSubmitDocument, http.StatusServiceUnavailable, nil)
	limited := statusError(OpSubmitDocument, http.StatusTooManyRequests, nil)
	auth := statusError(OpSubmitDocument, http.StatusUnauthorized, nil)

	tests := []struct {
		name   string
		method string
		err    error
		retry  bool
	}{
		{"read after server error", http.MethodGet, server, true},
		{"read after reset", http.MethodGet, reset, true},
		{"read after auth failure", http.MethodGet, auth, false},
		{"submission after server error", http.MethodPost, server, false},
		{"submission after reset", http.MethodPost, reset, false},
		{"submission after failed dial", http.MethodPost, dial, true},
		{"submission after rate limit", http.MethodPost, limited, true},
		{"plain error", http.MethodGet, errors.New("plain"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retry, shouldRetry(tt.method, tt.err))
		})
	}
}

func TestNetworkErrorKeepsCause(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	cause := errors.New("dial tcp: connection refused")
	doer.EXPECT().Do(gomock.Any()).Return(nil, cause)

	c := New(Config{BaseURL: "http://verification.test"}, domain.Credentials{APIKey: "key-123456"}, WithHTTPClient(doer))
	_, err := c.FetchResult(context.Background(), "sess-1", "")

	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(*http.Request) (*http.Response, error) {
		cancel()
		return jsonResponse(http.StatusServiceUnavailable, "down"), nil
	}).Times(1)

	c := New(Config{BaseURL: "http://verification.test", RetryAttempts: 5},
		domain.Credentials{APIKey: "key-123456"}, WithHTTPClient(doer), WithBackoff(fastBackoff))
	_, err := c.GetSession(ctx, "sess-1")
	assert.Equal(t, KindServer, KindOf(err))
}

func TestAPIErrorMessage(t *testing.T) {
	err := statusError(OpSubmitFace, 404, []byte("missing"))
	assert.Equal(t, "submit_face [transport]: unexpected response: missing (status 404)", err.Error())
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
