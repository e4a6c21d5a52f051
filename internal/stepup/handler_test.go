package stepup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, app *fiber.App, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestHandlerLinkingFlow(t *testing.T) {
	svc, ids := newTestService(t, StaticProvider{})
	seedVerified(t, ids, "dev-1")
	h := NewHandler(svc)

	app := fiber.New()
	app.Post("/initiate", h.Initiate)
	app.Post("/callback", h.Callback)
	app.Post("/status", h.Status)
	app.Post("/purge", h.Purge)

	code, body := call(t, app, "/initiate", `{"deviceIdentity":"dev-1"}`)
	require.Equal(t, http.StatusOK, code)
	state, _ := body["state"].(string)
	require.NotEmpty(t, state)
	assert.Equal(t, false, body["alreadyLinked"])

	code, _ = call(t, app, "/callback", `{"code":"abc","state":"tampered"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = call(t, app, "/callback", `{"code":"abc","state":"`+state+`"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["linked"])
	assert.Equal(t, "abc@sandbox.test", body["email"])

	code, body = call(t, app, "/status", `{"deviceIdentity":"dev-1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["linked"])

	code, body = call(t, app, "/purge", `{}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["purged"])

	linked, err := svc.Status(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestHandlerRequiresDevice(t *testing.T) {
	svc, _ := newTestService(t, StaticProvider{})
	app := fiber.New()
	app.Post("/initiate", NewHandler(svc).Initiate)

	code, _ := call(t, app, "/initiate", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}
