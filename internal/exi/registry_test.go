// SPDX-License-Identifier: MIT

package exi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/slhost/exibridge/internal/slippigg"
)

func TestRegistryPairedCreateDestroy(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := slippigg.NewMockServer()
	defer mock.Close()

	d := newTestDevice(t, testSettings(mock.URL))
	h := Register(d)

	got, ok := Get(h)
	require.True(t, ok)
	assert.Same(t, d, got)

	assert.True(t, Release(h), "first release closes the device")
	_, ok = Get(h)
	assert.False(t, ok)
	assert.False(t, Release(h), "double release is rejected")
}

func TestRegistryHandlesAreDistinct(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := slippigg.NewMockServer()
	defer mock.Close()

	a := newTestDevice(t, testSettings(mock.URL))
	b := newTestDevice(t, testSettings(mock.URL))

	ha, hb := Register(a), Register(b)
	assert.NotEqual(t, ha, hb)

	gotA, _ := Get(ha)
	gotB, _ := Get(hb)
	assert.Same(t, a, gotA)
	assert.Same(t, b, gotB)

	assert.True(t, Release(ha))
	assert.True(t, Release(hb))
}
