// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaults(t *testing.T) {
	s := resolve()

	assert.Equal(t, 5, s.DeliveryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, s.DeliveryBaseDelay)
	assert.Equal(t, 8*time.Second, s.DeliveryMaxDelay)
	assert.Equal(t, 3*time.Second, s.FlushTimeout)
	assert.Equal(t, 500*time.Millisecond, s.WatcherInterval)
	assert.NotEmpty(t, s.GraphQLEndpoint)
}

func TestResolveEnvOverrides(t *testing.T) {
	t.Setenv("EXIBRIDGE_GRAPHQL_ENDPOINT", "http://localhost:9999/graphql")
	t.Setenv("EXIBRIDGE_DELIVERY_MAX_ATTEMPTS", "2")
	t.Setenv("EXIBRIDGE_DELIVERY_FLUSH_TIMEOUT", "1s")

	s := resolve()

	assert.Equal(t, "http://localhost:9999/graphql", s.GraphQLEndpoint)
	assert.Equal(t, 2, s.DeliveryMaxAttempts)
	assert.Equal(t, time.Second, s.FlushTimeout)
}

func TestResolveInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("EXIBRIDGE_DELIVERY_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("EXIBRIDGE_DELIVERY_BASE_DELAY", "soon")

	s := resolve()

	assert.Equal(t, 5, s.DeliveryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, s.DeliveryBaseDelay)
}

func TestResolveTOMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exibridge.toml")
	body := "delivery_max_attempts = 3\nlogin_page_url = \"http://example.test/login\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("EXIBRIDGE_CONFIG_FILE", path)

	s := resolve()

	assert.Equal(t, 3, s.DeliveryMaxAttempts)
	assert.Equal(t, "http://example.test/login", s.LoginPageURL)
}

func TestResolveEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exibridge.toml")
	require.NoError(t, os.WriteFile(path, []byte("delivery_max_attempts = 3\n"), 0o600))

	t.Setenv("EXIBRIDGE_CONFIG_FILE", path)
	t.Setenv("EXIBRIDGE_DELIVERY_MAX_ATTEMPTS", "7")

	s := resolve()
	assert.Equal(t, 7, s.DeliveryMaxAttempts)
}

func TestResolveClampsNonsense(t *testing.T) {
	t.Setenv("EXIBRIDGE_DELIVERY_MAX_ATTEMPTS", "0")
	t.Setenv("EXIBRIDGE_DELIVERY_FLUSH_TIMEOUT", "-5s")

	s := resolve()

	assert.Equal(t, 1, s.DeliveryMaxAttempts)
	assert.Equal(t, 3*time.Second, s.FlushTimeout)
}

func TestParseBool(t *testing.T) {
	t.Setenv("EXIBRIDGE_TEST_FLAG", "true")
	assert.True(t, ParseBool("EXIBRIDGE_TEST_FLAG", false))

	t.Setenv("EXIBRIDGE_TEST_FLAG", "banana")
	assert.False(t, ParseBool("EXIBRIDGE_TEST_FLAG", false))

	assert.True(t, ParseBool("EXIBRIDGE_TEST_FLAG_UNSET", true))
}
