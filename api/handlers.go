package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"devicegateway/imaging"
	"devicegateway/mapper"
	"devicegateway/models"
	"devicegateway/service"
	"devicegateway/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// DeviceSession is the part of service.Session the handlers use
type DeviceSession interface {
	Connect(ctx context.Context) bool
	IsConnected() bool
	DeviceID() (string, bool)
	Snapshot() service.SessionSnapshot
	CaptureFrame(ctx context.Context) (*service.Frame, error)
}

// ActionStore is the optional persistence behind the actions and patterns routes
type ActionStore interface {
	RecentActions(ctx context.Context, limit int) ([]models.ActionLog, error)
	UpsertPattern(ctx context.Context, p *models.Pattern) error
	FindPatterns(ctx context.Context, signature string) ([]models.Pattern, error)
}

// StreamStatus reports broadcaster counters
type StreamStatus interface {
	Stats() models.StreamStats
}

// PhaseReporter reports the supervisor phase
type PhaseReporter interface {
	Phase() service.Phase
}

// Handlers holds everything the routes need. Store, Stream and Phase may be nil.
type Handlers struct {
	Session    DeviceSession
	Dispatcher *service.ActionDispatcher
	Encoder    *imaging.Encoder
	Store      ActionStore
	Stream     StreamStatus
	Phase      PhaseReporter
	DebugDir   string
}

type tapRequest struct {
	X *int `json:"x" binding:"required"`
	Y *int `json:"y" binding:"required"`
}

type displayTapRequest struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	DisplayWidth  float64 `json:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight"`
}

type swipeRequest struct {
	StartX     *int `json:"startX" binding:"required"`
	StartY     *int `json:"startY" binding:"required"`
	EndX       *int `json:"endX" binding:"required"`
	EndY       *int `json:"endY" binding:"required"`
	DurationMs int  `json:"durationMs"`
}

type textRequest struct {
	Text string `json:"text" binding:"required"`
}

type keyRequest struct {
	// string ("KEYCODE_HOME", "3") or number (3)
	Keycode any `json:"keycode" binding:"required"`
}

type shellRequest struct {
	Command string `json:"command" binding:"required"`
}

// Root returns a short service banner
func (h *Handlers) Root(c *gin.Context) {
	device, _ := h.Session.DeviceID()
	c.JSON(http.StatusOK, gin.H{
		"service":   "device-gateway",
		"connected": h.Session.IsConnected(),
		"device":    nullable(device),
	})
}

// GetStatus returns session and stream state
func (h *Handlers) GetStatus(c *gin.Context) {
	snap := h.Session.Snapshot()

	status := models.Status{
		Connected: snap.State == models.SessionOnline,
		State:     snap.State.String(),
	}
	if snap.Serial != "" {
		status.Device = &snap.Serial
	}
	if snap.Width > 0 && snap.Height > 0 {
		status.Width = &snap.Width
		status.Height = &snap.Height
	}
	if !snap.LastActivity.IsZero() {
		status.LastActivity = &snap.LastActivity
	}
	if h.Phase != nil {
		status.Phase = h.Phase.Phase().String()
	}
	if h.Stream != nil {
		stats := h.Stream.Stats()
		status.Stream = &stats
	}

	c.JSON(http.StatusOK, status)
}

// Connect runs one connect cycle on demand
func (h *Handlers) Connect(c *gin.Context) {
	ok := h.Session.Connect(c.Request.Context())
	device, _ := h.Session.DeviceID()
	c.JSON(http.StatusOK, gin.H{
		"success": ok && h.Session.IsConnected(),
		"device":  nullable(device),
	})
}

// capture grabs and encodes one frame, writing the error response itself
func (h *Handlers) capture(c *gin.Context) ([]byte, bool) {
	if !h.Session.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, models.NotConnectedResponse())
		return nil, false
	}

	frame, err := h.Session.CaptureFrame(c.Request.Context())
	if errors.Is(err, service.ErrNotConnected) {
		c.JSON(http.StatusServiceUnavailable, models.NotConnectedResponse())
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Msg("Screenshot capture failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(models.CodeCaptureFailed, "failed to capture screenshot: "+err.Error()))
		return nil, false
	}

	data, err := h.Encoder.Encode(frame.Image)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(models.CodeCaptureFailed, err.Error()))
		return nil, false
	}
	return data, true
}

// Screenshot returns the current screen as a data URL
func (h *Handlers) Screenshot(c *gin.Context) {
	data, ok := h.capture(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"image": imaging.DataURL(h.Encoder.MIME(), data)})
}

// ScreenshotRaw returns the encoded bytes directly
func (h *Handlers) ScreenshotRaw(c *gin.Context) {
	data, ok := h.capture(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="screenshot.%s"`, h.Encoder.Extension()))
	c.Data(http.StatusOK, h.Encoder.MIME(), data)
}

// SaveDebugScreenshot writes the current screen to the debug directory
func (h *Handlers) SaveDebugScreenshot(c *gin.Context) {
	data, ok := h.capture(c)
	if !ok {
		return
	}

	dir := h.DebugDir
	if dir == "" {
		dir = "debug"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(models.CodeInternal, err.Error()))
		return
	}

	name := fmt.Sprintf("screenshot_%s.%s", time.Now().Format("20060102_150405.000"), h.Encoder.Extension())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(models.CodeInternal, err.Error()))
		return
	}

	log.Info().Str("path", path).Int("bytes", len(data)).Msg("📸 Debug screenshot saved")
	c.JSON(http.StatusOK, gin.H{"message": "Screenshot saved", "path": path})
}

// runInput executes a command and writes the standard input response
func (h *Handlers) runInput(c *gin.Context, cmd models.InputCommand, extra gin.H) {
	if !h.Session.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, models.NotConnectedResponse())
		return
	}

	_, err := h.Dispatcher.Execute(c.Request.Context(), cmd)
	switch {
	case errors.Is(err, service.ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, models.NotConnectedResponse())
		return
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, models.ResultResponse(err))
		return
	}

	if extra == nil {
		c.JSON(http.StatusOK, models.ResultResponse(err))
		return
	}
	res := models.ResultResponse(err)
	extra["success"] = res.Success
	if res.Error != "" {
		extra["error"] = res.Error
	}
	c.JSON(http.StatusOK, extra)
}

func (h *Handlers) Tap(c *gin.Context) {
	var req tapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, err.Error()))
		return
	}
	h.runInput(c, models.TapCommand(*req.X, *req.Y), nil)
}

// TapDisplay maps a click on the rendered screenshot to device pixels
func (h *Handlers) TapDisplay(c *gin.Context) {
	var req displayTapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, err.Error()))
		return
	}

	snap := h.Session.Snapshot()
	if snap.State != models.SessionOnline {
		c.JSON(http.StatusServiceUnavailable, models.NotConnectedResponse())
		return
	}
	if snap.Width <= 0 || snap.Height <= 0 {
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse(models.CodeInvalidInput, "device dimensions unknown; take a screenshot first"))
		return
	}

	x, y := mapper.DisplayToDevice(req.X, req.Y, req.DisplayWidth, req.DisplayHeight, snap.Width, snap.Height)
	h.runInput(c, models.TapCommand(x, y), gin.H{"x": x, "y": y})
}

func (h *Handlers) Swipe(c *gin.Context) {
	var req swipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, err.Error()))
		return
	}
	duration := req.DurationMs
	if duration <= 0 {
		duration = service.DefaultSwipeDurationMs
	}
	h.runInput(c, models.SwipeCommand(*req.StartX, *req.StartY, *req.EndX, *req.EndY, duration), nil)
}

func (h *Handlers) Text(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, err.Error()))
		return
	}
	h.runInput(c, models.TextCommand(req.Text), nil)
}

func (h *Handlers) Key(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, err.Error()))
		return
	}

	var keycode string
	switch v := req.Keycode.(type) {
	case string:
		keycode = v
	case float64:
		if v != math.Trunc(v) || v < 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, "keycode must be a non-negative integer"))
			return
		}
		keycode = strconv.Itoa(int(v))
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, "keycode must be a string or number"))
		return
	}

	h.runInput(c, models.KeyCommand(keycode), nil)
}

// Shell runs a raw device shell command and returns its output
func (h *Handlers) Shell(c *gin.Context) {
	var req shellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, err.Error()))
		return
	}
	if !h.Session.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, models.NotConnectedResponse())
		return
	}

	out, err := h.Dispatcher.Execute(c.Request.Context(), models.ShellCommand(req.Command))
	switch {
	case errors.Is(err, service.ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, models.NotConnectedResponse())
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"output": nil, "error": err.Error()})
	case err != nil:
		c.JSON(http.StatusOK, gin.H{"output": nil, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"output": out})
	}
}

// GetActions returns the most recent action log rows
func (h *Handlers) GetActions(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse(models.CodeStoreDisabled, "action store disabled"))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 1000 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, "limit must be 1-1000"))
		return
	}

	actions, err := h.Store.RecentActions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(models.CodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, actions)
}

// PutPattern upserts one learned UI pattern
func (h *Handlers) PutPattern(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse(models.CodeStoreDisabled, "action store disabled"))
		return
	}

	var p models.Pattern
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, err.Error()))
		return
	}
	if err := h.Store.UpsertPattern(c.Request.Context(), &p); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidInput, err.Error()))
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetPatterns returns all patterns for a UI signature
func (h *Handlers) GetPatterns(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse(models.CodeStoreDisabled, "action store disabled"))
		return
	}

	patterns, err := h.Store.FindPatterns(c.Request.Context(), c.Param("signature"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && len(patterns) == 0) {
		c.JSON(http.StatusNotFound, models.ErrorResponse(models.CodeNotFound, "no patterns for signature"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(models.CodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, patterns)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
