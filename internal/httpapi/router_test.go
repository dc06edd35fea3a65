package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/bat-bot-freepik/internal/queue"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealth(t *testing.T) {
	resp := get(t, NewRouter(queue.New(3)), "/healthz")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestQueueAndUserStatus(t *testing.T) {
	q := queue.New(3)
	_, err := q.Enqueue(types.Job{ID: "a", UserID: 1, ChatID: 1, URL: "u1"})
	require.NoError(t, err)
	_, err = q.Enqueue(types.Job{ID: "b", UserID: 2, ChatID: 2, URL: "u2"})
	require.NoError(t, err)
	router := NewRouter(q)

	resp := get(t, router, "/queue")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"length":2,"capacity":3,"active":0}`, resp.Body.String())

	resp = get(t, router, "/users/2/status")
	require.Equal(t, http.StatusOK, resp.Code)
	var st types.Status
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &st))
	assert.Equal(t, types.StatusQueued, st.Kind)
	assert.Equal(t, 2, st.Position)
	assert.Equal(t, 2, st.Length)

	resp = get(t, router, "/users/99/status")
	assert.JSONEq(t, `{"kind":"idle"}`, resp.Body.String())
}

func TestUserStatusRejectsBadID(t *testing.T) {
	resp := get(t, NewRouter(queue.New(1)), "/users/abc/status")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
