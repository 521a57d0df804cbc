package tui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateReschedulesTickAfterFetchError(t *testing.T) {
	a := New("http://127.0.0.1:0")

	model, cmd := a.Update(errMsg{errors.New("connection refused")})
	require.NotNil(t, cmd, "a failed fetch must keep the refresh loop going")

	app := model.(*App)
	assert.Contains(t, app.message, "connection refused")
}

func TestUpdateReschedulesTickAfterRefresh(t *testing.T) {
	a := New("http://127.0.0.1:0")

	_, cmd := a.Update(refreshedMsg{online: false})
	require.NotNil(t, cmd)
}
