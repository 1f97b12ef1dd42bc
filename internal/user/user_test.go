// SPDX-License-Identifier: MIT

package user

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testInterval = 20 * time.Millisecond

func writeCredentials(t *testing.T, path string, info UserInfo) {
	t.Helper()
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

// eventually polls cond for up to ~50 watcher intervals.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(50 * testInterval)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(testInterval / 4)
	}
	t.Fatalf("condition not met: %s", msg)
}

func TestLoginOnFileAppearance(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")

	svc := NewService(path, "http://example.test/login", nil, WithInterval(testInterval))
	svc.Watch()
	defer svc.Close()

	assert.False(t, svc.IsLoggedIn())

	writeCredentials(t, path, UserInfo{UID: "uid-1", PlayKey: "key-1", DisplayName: "Fox", ConnectCode: "FOX#123"})

	eventually(t, svc.IsLoggedIn, "user should be logged in after file appears")

	info, ok := svc.Get()
	require.True(t, ok)
	assert.Equal(t, "uid-1", info.UID)
	assert.Equal(t, "FOX#123", info.ConnectCode)
}

func TestLogoutOnFileDeletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")
	writeCredentials(t, path, UserInfo{UID: "uid-1", PlayKey: "key-1"})

	svc := NewService(path, "http://example.test/login", nil, WithInterval(testInterval))
	svc.Watch()
	defer svc.Close()

	require.True(t, svc.IsLoggedIn())

	require.NoError(t, os.Remove(path))

	eventually(t, func() bool { return !svc.IsLoggedIn() }, "deletion should log the user out")
}

func TestMalformedFileKeepsPreviousState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")
	writeCredentials(t, path, UserInfo{UID: "uid-1", PlayKey: "key-1"})

	svc := NewService(path, "http://example.test/login", nil, WithInterval(testInterval))
	require.True(t, svc.IsLoggedIn())

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	svc.refresh()

	assert.True(t, svc.IsLoggedIn(), "malformed file must be treated as no change")
	info, _ := svc.Get()
	assert.Equal(t, "uid-1", info.UID)
}

func TestLogoutRemovesFileAndState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")
	writeCredentials(t, path, UserInfo{UID: "uid-1", PlayKey: "key-1"})

	svc := NewService(path, "http://example.test/login", nil, WithInterval(testInterval))
	require.True(t, svc.IsLoggedIn())

	svc.Logout()

	assert.False(t, svc.IsLoggedIn())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

type fakeValidator struct {
	latest string
	err    error
	calls  int
}

func (f *fakeValidator) ValidateUser(_ context.Context, uid, playKey string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.latest, nil
}

func TestAttemptLogin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")

	validator := &fakeValidator{latest: "3.5.0"}
	svc := NewService(path, "http://example.test/login", validator, WithInterval(testInterval))

	// No file yet: login fails without hitting the network.
	assert.False(t, svc.AttemptLogin(context.Background()))
	assert.Zero(t, validator.calls)

	writeCredentials(t, path, UserInfo{UID: "uid-1", PlayKey: "key-1", LatestVersion: "3.4.0"})

	assert.True(t, svc.AttemptLogin(context.Background()))
	assert.Equal(t, 1, validator.calls)

	info, _ := svc.Get()
	assert.Equal(t, "3.5.0", info.LatestVersion, "server-known latest version should overwrite the stored one")
}

func TestAttemptLoginNetworkFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")
	writeCredentials(t, path, UserInfo{UID: "uid-1", PlayKey: "key-1"})

	validator := &fakeValidator{err: fmt.Errorf("connection refused")}
	svc := NewService(path, "http://example.test/login", validator, WithInterval(testInterval))

	assert.False(t, svc.AttemptLogin(context.Background()))
}

func TestChatMessageCatalogs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")

	svc := NewService(path, "http://example.test/login", nil)
	assert.Len(t, svc.ChatMessages(), 16, "fall back to default catalog when logged out")

	writeCredentials(t, path, UserInfo{UID: "uid-1", ChatMessages: []string{"hi", "gg"}})
	svc.refresh()
	assert.Equal(t, []string{"hi", "gg"}, svc.ChatMessages())

	defaults := DefaultChatMessages()
	assert.Len(t, defaults, 16)
	assert.Equal(t, "ggs", defaults[0])
}

func TestOverwriteLatestVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")
	writeCredentials(t, path, UserInfo{UID: "uid-1", LatestVersion: "3.4.0"})

	svc := NewService(path, "http://example.test/login", nil)
	svc.OverwriteLatestVersion("9.9.9")

	info, _ := svc.Get()
	assert.Equal(t, "9.9.9", info.LatestVersion)
}

func TestOpenLoginPageUsesOpener(t *testing.T) {
	var opened string
	svc := NewService(filepath.Join(t.TempDir(), "user.json"), "http://example.test/login", nil,
		WithOpener(func(url string) error {
			opened = url
			return nil
		}))

	svc.OpenLoginPage()
	assert.Equal(t, "http://example.test/login", opened)
}

func TestWatchTwiceAndCloseIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(filepath.Join(t.TempDir(), "user.json"), "http://example.test/login", nil, WithInterval(testInterval))
	svc.Watch()
	svc.Watch()
	svc.Close()
	svc.Close()
}

func TestGetSnapshotIsIsolated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")
	writeCredentials(t, path, UserInfo{UID: "uid-1", ChatMessages: []string{"hi"}})

	svc := NewService(path, "http://example.test/login", nil)
	info, _ := svc.Get()
	info.ChatMessages[0] = "mutated"

	fresh, _ := svc.Get()
	assert.Equal(t, "hi", fresh.ChatMessages[0], "snapshot mutation must not leak back")
}
