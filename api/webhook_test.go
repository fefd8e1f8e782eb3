package api_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reading-engine/api"
	"github.com/warp/reading-engine/engine"
)

func (f *fixture) postUpdate(t *testing.T, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.server.URL+"/telegram/webhook", "application/json",
		bytes.NewBufferString(payload))
	require.NoError(t, err)
	return resp
}

// =============================================================================
// CALLBACK QUERIES
// =============================================================================

func TestWebhook_ReadButton_AppliesAndAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// WHEN: an unknown platform user presses the read button
	resp := f.postUpdate(t, `{
		"callback_query": {
			"id": "tg-cb-1",
			"from": {"id": 42, "username": "reader", "first_name": "Ana"},
			"data": "read|1|1"
		}
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[api.SubmitEventResponse](t, resp)
	assert.Equal(t, "accepted-advanced", res.Outcome)

	// THEN: the user was registered on the fly and the pointer moved
	u, err := f.engine.Store.UserByPlatformID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, engine.NewCoordinate(1, 2), u.Pointer)
}

func TestWebhook_RedeliveredCallback_IsDuplicate(t *testing.T) {
	f := newFixture(t)

	payload := `{
		"callback_query": {
			"id": "tg-cb-1",
			"from": {"id": 42, "username": "reader"},
			"data": "read|1|1"
		}
	}`

	resp := f.postUpdate(t, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Telegram redelivers the identical update.
	resp = f.postUpdate(t, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[api.SubmitEventResponse](t, resp)
	assert.Equal(t, "duplicate-callback", res.Outcome)
}

func TestWebhook_BreakButton(t *testing.T) {
	f := newFixture(t)

	resp := f.postUpdate(t, `{
		"callback_query": {
			"id": "tg-br-1",
			"from": {"id": 42},
			"data": "break"
		}
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[api.SubmitEventResponse](t, resp)
	assert.Equal(t, "accepted-break-granted", res.Outcome)
}

func TestWebhook_ForeignCallbackData_AckedWithoutEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Stale button data from some other bot feature: acknowledge so
	// Telegram stops retrying, change nothing.
	resp := f.postUpdate(t, `{
		"callback_query": {
			"id": "tg-x-1",
			"from": {"id": 42},
			"data": "poll|answer|3"
		}
	}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := f.engine.Store.UserByPlatformID(ctx, 42)
	require.ErrorIs(t, err, engine.ErrUserNotFound)
}

func TestWebhook_UnhandledUpdate_Acked(t *testing.T) {
	f := newFixture(t)

	resp := f.postUpdate(t, `{"message": {"text": "hello there"}}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// /start
// =============================================================================

func TestWebhook_StartCommand_RegistersAndSendsCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.postUpdate(t, `{
		"message": {
			"text": "/start",
			"entities": [{"type": "bot_command", "offset": 0, "length": 6}],
			"from": {"id": 99, "username": "newcomer", "first_name": "Bo"}
		}
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	u := decode[api.UserDTO](t, resp)
	assert.Equal(t, int64(99), u.PlatformID)
	assert.Equal(t, 1, u.CurrentMonth)
	assert.Equal(t, 1, u.CurrentDay)

	// The welcome card went out immediately.
	require.Len(t, f.notifier.cards, 1)

	stored, err := f.engine.Store.UserByPlatformID(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "newcomer", stored.Username)
}
