package docker

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func fakeClient(status int, body string, seen *string) *Client {
	return &Client{http: &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if seen != nil {
			*seen = req.URL.RequestURI()
		}
		return &http.Response{StatusCode: status, Status: http.StatusText(status), Body: io.NopCloser(strings.NewReader(body))}, nil
	})}}
}

func TestListContainersIncludesStopped(t *testing.T) {
	var uri string
	c := fakeClient(http.StatusOK, `[
		{"Id":"abcdef0123456789","Names":["/web"],"Image":"nginx","State":"running","Status":"Up 2 hours"},
		{"Id":"9876543210fedcba","Names":[],"Image":"redis","State":"exited","Status":"Exited (1)"}
	]`, &uri)

	got, err := c.ListContainers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/containers/json?all=1", uri)
	require.Len(t, got, 2)
	assert.Equal(t, "web", got[0].DisplayName())
	assert.Equal(t, "running", got[0].State)
	assert.Equal(t, "9876543210fe", got[1].DisplayName())
}

func TestListContainersAPIError(t *testing.T) {
	c := fakeClient(http.StatusInternalServerError, `{"message":"boom"}`, nil)
	_, err := c.ListContainers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestPing(t *testing.T) {
	var uri string
	c := fakeClient(http.StatusOK, "OK", &uri)
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "/_ping", uri)
}
