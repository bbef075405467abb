//go:build integration

package integration

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"go-news-cms/internal/router"
)

func TestOpenAPIAndSwaggerServed(t *testing.T) {
	env := newTestEnv(t, router.Limiters{})

	resp, err := http.Get(env.server.URL + "/openapi.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "/auth/login")

	swagger, err := http.Get(env.server.URL + "/swagger")
	require.NoError(t, err)
	t.Cleanup(func() { _ = swagger.Body.Close() })
	require.Equal(t, http.StatusOK, swagger.StatusCode)
}
