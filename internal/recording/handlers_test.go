package recording

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-apex/internal/location"
	"backend-apex/internal/session"

	"github.com/gofiber/fiber/v2"
)

type fakeReporter struct {
	reported []location.Status
}

func (f *fakeReporter) Report(s location.Status) {
	f.reported = append(f.reported, s)
}

func testApp(t *testing.T, cap *fakeCapability) (*fiber.App, *Engine, *fakeReporter) {
	t.Helper()
	engine, _, _ := newTestEngine(t, cap)
	reporter := &fakeReporter{}

	stubAuth := func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	}

	app := fiber.New()
	RegisterRoutes(app.Group("/recording"), engine, reporter, stubAuth)
	return app, engine, reporter
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	return resp
}

func TestStartHandler(t *testing.T) {
	app, _, _ := testApp(t, &fakeCapability{status: location.StatusGranted})

	resp := postJSON(t, app, "/recording/start", fiber.Map{"bike_id": "bike-1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var state session.State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !state.IsRecording || state.BikeID != "bike-1" {
		t.Fatalf("unexpected state %+v", state)
	}

	// Starting again conflicts.
	resp = postJSON(t, app, "/recording/start", fiber.Map{"bike_id": "bike-1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestStartHandlerValidation(t *testing.T) {
	app, _, _ := testApp(t, &fakeCapability{status: location.StatusGranted})

	resp := postJSON(t, app, "/recording/start", fiber.Map{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStartHandlerDenied(t *testing.T) {
	app, _, _ := testApp(t, &fakeCapability{status: location.StatusDenied, requestStatus: location.StatusDenied})

	resp := postJSON(t, app, "/recording/start", fiber.Map{"bike_id": "bike-1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestPauseHandlerConflict(t *testing.T) {
	app, _, _ := testApp(t, &fakeCapability{status: location.StatusGranted})

	resp := postJSON(t, app, "/recording/pause", fiber.Map{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestStopHandlerDiscard(t *testing.T) {
	app, _, _ := testApp(t, &fakeCapability{status: location.StatusGranted})

	postJSON(t, app, "/recording/start", fiber.Map{"bike_id": "bike-1"})
	resp := postJSON(t, app, "/recording/stop", fiber.Map{"save": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["saved"] != false {
		t.Fatalf("expected saved=false, got %v", body)
	}
}

func TestPositionAndStateHandlers(t *testing.T) {
	app, engine, _ := testApp(t, &fakeCapability{status: location.StatusGranted})

	// No active watch yet.
	resp := postJSON(t, app, "/recording/position", location.Fix{Lng: 1, Lat: 1, Timestamp: time.Now().UnixMilli()})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 before start, got %d", resp.StatusCode)
	}

	postJSON(t, app, "/recording/start", fiber.Map{"bike_id": "bike-1"})
	resp = postJSON(t, app, "/recording/position", location.Fix{Lng: 1, Lat: 1, Timestamp: time.Now().UnixMilli()})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	waitFor(t, func() bool { return len(engine.State().Coords) == 1 })

	req := httptest.NewRequest(http.MethodGet, "/recording/state", nil)
	stateResp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("state request: %v", err)
	}
	if stateResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", stateResp.StatusCode)
	}
}

func TestOrientationHandlersRespectSelection(t *testing.T) {
	app, _, _ := testApp(t, &fakeCapability{status: location.StatusGranted})

	postJSON(t, app, "/recording/start", fiber.Map{"bike_id": "bike-1", "orientation_kind": "accelerometer"})

	resp := postJSON(t, app, "/recording/orientation/accelerometer", fiber.Map{"x": 1.0, "y": 0.0, "z": 9.8})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	resp = postJSON(t, app, "/recording/orientation/devicemotion", fiber.Map{})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unselected source, got %d", resp.StatusCode)
	}
}

func TestPermissionHandler(t *testing.T) {
	app, _, reporter := testApp(t, &fakeCapability{status: location.StatusGranted})

	resp := postJSON(t, app, "/recording/permission", fiber.Map{"location": "granted"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if len(reporter.reported) != 1 || reporter.reported[0] != location.StatusGranted {
		t.Fatalf("unexpected reports %v", reporter.reported)
	}

	resp = postJSON(t, app, "/recording/permission", fiber.Map{"location": "maybe"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", resp.StatusCode)
	}
}
