package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"devicegateway/imaging"
	"devicegateway/models"
	"devicegateway/service"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu         sync.Mutex
	connected  bool
	serial     string
	width      int
	height     int
	captureErr error
	inputErr   error
	output     string
	commands   []models.InputCommand
}

func (f *fakeSession) Connect(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = f.serial != ""
	return f.connected
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) DeviceID() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.serial, f.serial != ""
}

func (f *fakeSession) Snapshot() service.SessionSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := models.SessionDisconnected
	if f.connected {
		state = models.SessionOnline
	}
	return service.SessionSnapshot{Serial: f.serial, State: state, Width: f.width, Height: f.height}
}

func (f *fakeSession) CaptureFrame(ctx context.Context) (*service.Frame, error) {
	if !f.IsConnected() {
		return nil, service.ErrNotConnected
	}
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return &service.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 8)), Width: 4, Height: 8, BPP: 32}, nil
}

func (f *fakeSession) InjectInput(ctx context.Context, cmd models.InputCommand) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return "", service.ErrNotConnected
	}
	f.commands = append(f.commands, cmd)
	return f.output, f.inputErr
}

func (f *fakeSession) Commands() []models.InputCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.InputCommand(nil), f.commands...)
}

type fakeStore struct {
	actions  []models.ActionLog
	patterns map[string][]models.Pattern
	upserted []models.Pattern
}

func (s *fakeStore) RecentActions(ctx context.Context, limit int) ([]models.ActionLog, error) {
	if limit < len(s.actions) {
		return s.actions[:limit], nil
	}
	return s.actions, nil
}

func (s *fakeStore) UpsertPattern(ctx context.Context, p *models.Pattern) error {
	if p.UISignature == "" {
		return errors.New("pattern needs ui_signature and action_type")
	}
	s.upserted = append(s.upserted, *p)
	return nil
}

func (s *fakeStore) FindPatterns(ctx context.Context, signature string) ([]models.Pattern, error) {
	return s.patterns[signature], nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func onlineSession() *fakeSession {
	return &fakeSession{connected: true, serial: "127.0.0.1:5555", width: 720, height: 1280}
}

func newTestRouter(t *testing.T, sess *fakeSession, st ActionStore) *gin.Engine {
	t.Helper()
	encoder, err := imaging.NewEncoder("png", 0)
	require.NoError(t, err)

	h := &Handlers{
		Session:    sess,
		Dispatcher: service.NewActionDispatcher(sess, nil),
		Encoder:    encoder,
		Store:      st,
		DebugDir:   t.TempDir(),
	}
	router := gin.New()
	SetupRoutes(router, h, NewHub())
	return router
}

func doJSON(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &fakeSession{}, nil)
	w := doJSON(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRoot(t *testing.T) {
	router := newTestRouter(t, onlineSession(), nil)
	body := decode(t, doJSON(router, http.MethodGet, "/", ""))
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "127.0.0.1:5555", body["device"])
}

func TestStatus_Disconnected(t *testing.T) {
	router := newTestRouter(t, &fakeSession{}, nil)
	w := doJSON(router, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["connected"])
	assert.Nil(t, body["device"])
	assert.Nil(t, body["width"])
	assert.Equal(t, "DISCONNECTED", body["state"])
}

func TestStatus_Online(t *testing.T) {
	router := newTestRouter(t, onlineSession(), nil)
	body := decode(t, doJSON(router, http.MethodGet, "/api/status", ""))
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "127.0.0.1:5555", body["device"])
	assert.EqualValues(t, 720, body["width"])
	assert.EqualValues(t, 1280, body["height"])
	assert.Equal(t, "ONLINE", body["state"])
}

func TestConnect(t *testing.T) {
	sess := &fakeSession{serial: "emulator-5554"}
	router := newTestRouter(t, sess, nil)
	body := decode(t, doJSON(router, http.MethodPost, "/api/connect", ""))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "emulator-5554", body["device"])
}

func TestScreenshot_NotConnected(t *testing.T) {
	router := newTestRouter(t, &fakeSession{}, nil)
	w := doJSON(router, http.MethodGet, "/api/screenshot", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.CodeNotConnected, decode(t, w)["code"])
}

func TestScreenshot(t *testing.T) {
	router := newTestRouter(t, onlineSession(), nil)
	w := doJSON(router, http.MethodGet, "/api/screenshot", "")
	require.Equal(t, http.StatusOK, w.Code)

	img, _ := decode(t, w)["image"].(string)
	assert.True(t, strings.HasPrefix(img, "data:image/png;base64,"), img)
}

func TestScreenshot_CaptureFailed(t *testing.T) {
	sess := onlineSession()
	sess.captureErr = fmt.Errorf("%w: short buffer", imaging.ErrDecode)
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodGet, "/api/screenshot", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.CodeCaptureFailed, decode(t, w)["code"])
}

func TestScreenshotRaw(t *testing.T) {
	router := newTestRouter(t, onlineSession(), nil)
	w := doJSON(router, http.MethodGet, "/api/screenshot/raw", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestSaveDebugScreenshot(t *testing.T) {
	router := newTestRouter(t, onlineSession(), nil)
	w := doJSON(router, http.MethodPost, "/api/debug/save-screenshot", "")
	require.Equal(t, http.StatusOK, w.Code)

	path, _ := decode(t, w)["path"].(string)
	require.NotEmpty(t, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestTap(t *testing.T) {
	sess := onlineSession()
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/tap", `{"x":100,"y":200}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.Equal(t, []models.InputCommand{models.TapCommand(100, 200)}, sess.Commands())
}

func TestTap_ZeroCoordinatesAccepted(t *testing.T) {
	sess := onlineSession()
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/tap", `{"x":0,"y":0}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sess.Commands(), 1)
}

func TestTap_MissingField(t *testing.T) {
	sess := onlineSession()
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/tap", `{"x":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, sess.Commands())
}

func TestTap_NotConnected(t *testing.T) {
	router := newTestRouter(t, &fakeSession{}, nil)
	w := doJSON(router, http.MethodPost, "/api/tap", `{"x":1,"y":2}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.CodeNotConnected, decode(t, w)["code"])
}

func TestTap_TransportFailure(t *testing.T) {
	sess := onlineSession()
	sess.inputErr = fmt.Errorf("%w: connection reset", service.ErrTransport)
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/tap", `{"x":1,"y":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "connection reset")
}

func TestTapDisplay_Maps(t *testing.T) {
	sess := onlineSession()
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/tap/display", `{"x":180,"y":320,"displayWidth":360,"displayHeight":640}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"x":360,"y":640}`, w.Body.String())
	assert.Equal(t, []models.InputCommand{models.TapCommand(360, 640)}, sess.Commands())
}

func TestTapDisplay_UnknownDimensions(t *testing.T) {
	sess := onlineSession()
	sess.width, sess.height = 0, 0
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/tap/display", `{"x":1,"y":1,"displayWidth":10,"displayHeight":10}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, sess.Commands())
}

func TestSwipe_DefaultDuration(t *testing.T) {
	sess := onlineSession()
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/swipe", `{"startX":1,"startY":2,"endX":3,"endY":4}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.InputCommand{models.SwipeCommand(1, 2, 3, 4, service.DefaultSwipeDurationMs)}, sess.Commands())
}

func TestText(t *testing.T) {
	sess := onlineSession()
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/text", `{"text":"hello world"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.InputCommand{models.TextCommand("hello world")}, sess.Commands())
}

func TestKey_StringAndNumber(t *testing.T) {
	sess := onlineSession()
	router := newTestRouter(t, sess, nil)

	require.Equal(t, http.StatusOK, doJSON(router, http.MethodPost, "/api/key", `{"keycode":"KEYCODE_HOME"}`).Code)
	require.Equal(t, http.StatusOK, doJSON(router, http.MethodPost, "/api/key", `{"keycode":4}`).Code)
	assert.Equal(t, []models.InputCommand{models.KeyCommand("KEYCODE_HOME"), models.KeyCommand("4")}, sess.Commands())

	assert.Equal(t, http.StatusBadRequest, doJSON(router, http.MethodPost, "/api/key", `{"keycode":1.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(router, http.MethodPost, "/api/key", `{"keycode":true}`).Code)
}

func TestShell(t *testing.T) {
	sess := onlineSession()
	sess.output = "Physical size: 720x1280\n"
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/shell", `{"command":"wm size"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Physical size: 720x1280\n", decode(t, w)["output"])
}

func TestShell_Failure(t *testing.T) {
	sess := onlineSession()
	sess.inputErr = fmt.Errorf("%w: closed", service.ErrTransport)
	router := newTestRouter(t, sess, nil)

	w := doJSON(router, http.MethodPost, "/api/shell", `{"command":"ls"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "output")
	assert.Nil(t, body["output"])
	assert.NotEmpty(t, body["error"])
}

func TestStoreRoutes_Disabled(t *testing.T) {
	router := newTestRouter(t, onlineSession(), nil)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/actions", ""},
		{http.MethodPut, "/api/patterns", `{"ui_signature":"a","action_type":"tap"}`},
		{http.MethodGet, "/api/patterns/a", ""},
	} {
		w := doJSON(router, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, tc.path)
		assert.Equal(t, models.CodeStoreDisabled, decode(t, w)["code"], tc.path)
	}
}

func TestActions(t *testing.T) {
	st := &fakeStore{actions: []models.ActionLog{{ID: 2, ActionType: "tap"}, {ID: 1, ActionType: "swipe"}}}
	router := newTestRouter(t, onlineSession(), st)

	w := doJSON(router, http.MethodGet, "/api/actions?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var actions []models.ActionLog
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &actions))
	require.Len(t, actions, 1)
	assert.Equal(t, int64(2), actions[0].ID)

	assert.Equal(t, http.StatusBadRequest, doJSON(router, http.MethodGet, "/api/actions?limit=zero", "").Code)
}

func TestPatterns(t *testing.T) {
	st := &fakeStore{patterns: map[string][]models.Pattern{
		"home": {{ID: 1, ActionType: "tap", Method: "adb", UISignature: "home"}},
	}}
	router := newTestRouter(t, onlineSession(), st)

	w := doJSON(router, http.MethodPut, "/api/patterns", `{"ui_signature":"home","action_type":"swipe","method":"adb","pattern_data":{"dir":"up"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, st.upserted, 1)
	assert.JSONEq(t, `{"dir":"up"}`, string(st.upserted[0].PatternData))

	w = doJSON(router, http.MethodGet, "/api/patterns/home", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/patterns/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.CodeNotFound, decode(t, w)["code"])
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, onlineSession(), nil)
	w := doJSON(router, http.MethodOptions, "/api/tap", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
