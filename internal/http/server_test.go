package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	internal_http "github.com/avizh98/gofor/internal/http"
	"github.com/avizh98/gofor/internal/log"
	"github.com/avizh98/gofor/pkg/models"
	"github.com/avizh98/gofor/pkg/service"
	"github.com/avizh98/gofor/pkg/storage"
)

var testSecret = []byte("test-secret")

type testEnv struct {
	srv       *httptest.Server
	directory *service.StaticDirectory
}

func newTestEnv(t *testing.T) *testEnv {
	store := storage.NewMockStore()
	directory := service.NewStaticDirectory()
	notifier := service.LogNotifier{Logger: log.GetLogger()}
	svc := service.NewTaskService(store, directory, notifier, log.GetLogger())
	srv := httptest.NewServer(internal_http.NewMux(svc, testSecret))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, directory: directory}
}

func (e *testEnv) addHelper(id string) {
	e.directory.Put(models.HelperSnapshot{
		ID: id, Role: "helper", Verified: true, Available: true, Active: true,
		Location: models.GeoPoint{Longitude: 74.60, Latitude: 42.87},
	})
}

func token(t *testing.T, userID, role string) string {
	tok, err := internal_http.GenerateToken(testSecret, userID, role)
	assert.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, bearer string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	assert.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	assert.NoError(t, err)
	return resp
}

func decodeTask(t *testing.T, resp *http.Response) models.Task {
	t.Helper()
	defer resp.Body.Close()
	var task models.Task
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	return task
}

func createPayload() map[string]interface{} {
	return map[string]interface{}{
		"category":    "shopping",
		"title":       "Buy groceries",
		"description": "Milk and eggs",
		"pickup_location": map[string]interface{}{
			"address": "12 Market St",
			"point":   map[string]float64{"longitude": 74.59, "latitude": 42.87},
		},
		"delivery_location": map[string]interface{}{
			"address": "40 Hill Rd",
			"point":   map[string]float64{"longitude": 74.61, "latitude": 42.88},
		},
		"urgency": "asap",
		"budget":  50,
	}
}

func TestServer(t *testing.T) {
	t.Run("HealthCheck", func(t *testing.T) {
		env := newTestEnv(t)
		resp, err := env.srv.Client().Get(env.srv.URL + "/health")
		assert.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "gofor server is running", string(body))
	})

	t.Run("AuthRequired", func(t *testing.T) {
		env := newTestEnv(t)
		resp := doJSON(t, env.srv, http.MethodPost, "/tasks", "", createPayload())
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = doJSON(t, env.srv, http.MethodPost, "/tasks", "garbage-token", createPayload())
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("CreateTask", func(t *testing.T) {
		env := newTestEnv(t)
		resp := doJSON(t, env.srv, http.MethodPost, "/tasks", token(t, "req-1", "requester"), createPayload())
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		task := decodeTask(t, resp)
		assert.Equal(t, "req-1", task.RequesterID, "requester comes from the token")
		assert.Equal(t, models.StatusPending, task.Status)
		assert.Equal(t, 8.0, task.ServiceFee)
		assert.NotNil(t, task.AcceptanceDeadline)
	})

	t.Run("CreateTaskValidationListsFields", func(t *testing.T) {
		env := newTestEnv(t)
		payload := createPayload()
		payload["budget"] = 2
		payload["title"] = ""
		resp := doJSON(t, env.srv, http.MethodPost, "/tasks", token(t, "req-1", "requester"), payload)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Contains(t, body.Fields, "budget")
		assert.Contains(t, body.Fields, "title")
	})

	t.Run("AcceptFlow", func(t *testing.T) {
		env := newTestEnv(t)
		env.addHelper("helper-1")
		env.addHelper("helper-2")

		resp := doJSON(t, env.srv, http.MethodPost, "/tasks", token(t, "req-1", "requester"), createPayload())
		task := decodeTask(t, resp)

		// helper discovers the task
		resp = doJSON(t, env.srv, http.MethodGet, "/tasks/nearby?lon=74.59&lat=42.87", token(t, "helper-1", "helper"), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var nearby []models.Task
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&nearby))
		resp.Body.Close()
		assert.Len(t, nearby, 1)

		// first accept wins
		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/accept", token(t, "helper-1", "helper"), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		accepted := decodeTask(t, resp)
		assert.True(t, accepted.AssignedTo("helper-1"))

		// second accept conflicts
		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/accept", token(t, "helper-2", "helper"), nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("RejectAndNearbyExclusion", func(t *testing.T) {
		env := newTestEnv(t)
		env.addHelper("helper-1")
		resp := doJSON(t, env.srv, http.MethodPost, "/tasks", token(t, "req-1", "requester"), createPayload())
		task := decodeTask(t, resp)

		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/reject", token(t, "helper-1", "helper"),
			map[string]string{"reason": "too far"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp = doJSON(t, env.srv, http.MethodGet, "/tasks/nearby?lon=74.59&lat=42.87", token(t, "helper-1", "helper"), nil)
		var nearby []models.Task
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&nearby))
		resp.Body.Close()
		assert.Empty(t, nearby)
	})

	t.Run("StatusAdvanceAndCancel", func(t *testing.T) {
		env := newTestEnv(t)
		env.addHelper("helper-1")
		resp := doJSON(t, env.srv, http.MethodPost, "/tasks", token(t, "req-1", "requester"), createPayload())
		task := decodeTask(t, resp)

		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/accept", token(t, "helper-1", "helper"), nil)
		decodeTask(t, resp)

		// a stranger cannot advance
		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/status", token(t, "req-1", "requester"),
			map[string]string{"status": "in-progress"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()

		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/status", token(t, "helper-1", "helper"),
			map[string]string{"status": "in-progress"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		inProgress := decodeTask(t, resp)
		assert.Equal(t, models.StatusInProgress, inProgress.Status)

		// in-progress tasks cannot be cancelled
		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/cancel", token(t, "req-1", "requester"),
			map[string]string{"reason": "changed plans"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		resp.Body.Close()

		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/status", token(t, "helper-1", "helper"),
			map[string]interface{}{"status": "completed", "completion_proof": map[string]string{"notes": "done"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		completed := decodeTask(t, resp)
		assert.Equal(t, models.StatusCompleted, completed.Status)
		assert.Len(t, completed.StatusHistory, 4)
	})

	t.Run("TimeRemainingOnWire", func(t *testing.T) {
		env := newTestEnv(t)
		env.addHelper("helper-1")
		resp := doJSON(t, env.srv, http.MethodPost, "/tasks", token(t, "req-1", "requester"), createPayload())
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var wire struct {
			ID            string `json:"id"`
			TimeRemaining *int   `json:"time_remaining"`
		}
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&wire))
		resp.Body.Close()
		assert.NotNil(t, wire.TimeRemaining, "pending asap task carries the countdown")
		assert.Greater(t, *wire.TimeRemaining, 0)
		assert.LessOrEqual(t, *wire.TimeRemaining, int(models.AcceptanceWindow.Seconds()))

		// once accepted the countdown disappears
		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+wire.ID+"/accept", token(t, "helper-1", "helper"), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		wire.TimeRemaining = nil
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&wire))
		resp.Body.Close()
		assert.Nil(t, wire.TimeRemaining)
	})

	t.Run("GetUnknownTask", func(t *testing.T) {
		env := newTestEnv(t)
		resp := doJSON(t, env.srv, http.MethodGet, "/tasks/does-not-exist", token(t, "req-1", "requester"), nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("NearbyHelpers", func(t *testing.T) {
		env := newTestEnv(t)
		env.addHelper("helper-1")
		resp := doJSON(t, env.srv, http.MethodGet, "/helpers/nearby?lon=74.59&lat=42.87", token(t, "ops-1", "requester"), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var matches []service.HelperMatch
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&matches))
		resp.Body.Close()
		assert.Len(t, matches, 1)
		assert.Equal(t, "helper-1", matches[0].Helper.ID)
	})

	t.Run("BudgetEdit", func(t *testing.T) {
		env := newTestEnv(t)
		resp := doJSON(t, env.srv, http.MethodPost, "/tasks", token(t, "req-1", "requester"), createPayload())
		task := decodeTask(t, resp)

		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/budget", token(t, "req-1", "requester"),
			map[string]float64{"budget": 100})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		updated := decodeTask(t, resp)
		assert.Equal(t, 100.0, updated.Budget)
		assert.Equal(t, 115.0, updated.TotalAmount)

		// someone else's task
		resp = doJSON(t, env.srv, http.MethodPost, "/tasks/"+task.ID+"/budget", token(t, "req-2", "requester"),
			map[string]float64{"budget": 10})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("ListOwnTasks", func(t *testing.T) {
		env := newTestEnv(t)
		for i := 0; i < 2; i++ {
			resp := doJSON(t, env.srv, http.MethodPost, "/tasks", token(t, "req-1", "requester"), createPayload())
			resp.Body.Close()
		}
		resp := doJSON(t, env.srv, http.MethodGet, fmt.Sprintf("/tasks?status=%s", models.StatusPending), token(t, "req-1", "requester"), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var tasks []models.Task
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&tasks))
		resp.Body.Close()
		assert.Len(t, tasks, 2)
	})
}
