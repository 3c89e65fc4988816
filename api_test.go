package main

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiddenface/hiddenface/internal/hub"
	"github.com/hiddenface/hiddenface/store/mem"
)

func newTestApp(t *testing.T) (*App, http.Handler) {
	t.Helper()

	st, err := mem.New(mem.Config{})
	require.NoError(t, err)

	l := log.New(os.Stderr, "", log.LstdFlags)
	cfg := &hub.Config{
		Name:            "test",
		RoomIDLen:       8,
		MaxMessageLen:   3000,
		MaxMessageQueue: 100,
		WSTimeout:       10 * time.Second,
		MaxRooms:        100,
		RoomCapacity:    8,
		RoomTimeout:     time.Minute,
		RoomAge:         time.Hour,
	}

	app := &App{
		cfg:    cfg,
		hub:    hub.NewHub(cfg, st, l),
		logger: l,
	}

	r := chi.NewRouter()
	r.Get("/ws", wrap(handleWS, app))
	r.Get("/api/rooms", wrap(handleListRooms, app))
	r.Post("/api/rooms", wrap(handleCreateRoom, app))
	return app, r
}

func TestCreateAndListRooms(t *testing.T) {
	_, r := newTestApp(t)

	body, _ := json.Marshal(reqRoom{Name: "den"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/rooms", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var created struct {
		Error *string `json:"error"`
		Data  struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Nil(t, created.Error)
	assert.Len(t, created.Data.ID, 8)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Error *string        `json:"error"`
		Data  []hub.RoomInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 1)
	assert.Equal(t, hub.RoomInfo{ID: created.Data.ID, Name: "den", MemberCount: 0}, listed.Data[0])
}

func TestCreateRoomRejections(t *testing.T) {
	_, r := newTestApp(t)

	// Malformed body.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/rooms", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Blank name.
	body, _ := json.Marshal(reqRoom{Name: "   "})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/rooms", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error *string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "room name can't be empty", *resp.Error)
}
