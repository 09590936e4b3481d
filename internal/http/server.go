package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/avizh98/gofor/internal/log"
	"github.com/avizh98/gofor/pkg/models"
	"github.com/avizh98/gofor/pkg/service"
	"github.com/avizh98/gofor/pkg/storage"
)

// StartServer wires the task routes and blocks serving them.
func StartServer(port string, svc *service.TaskService, jwtSecret []byte) error {
	mux := NewMux(svc, jwtSecret)
	log.GetLogger().Infof("Starting gofor server on :%s", port)
	return http.ListenAndServe(":"+port, mux)
}

// NewMux builds the route table. Split out of StartServer so tests can
// mount it on httptest servers.
func NewMux(svc *service.TaskService, jwtSecret []byte) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/tasks", AuthMiddleware(jwtSecret, TasksHandler(svc)))
	mux.HandleFunc("/tasks/nearby", AuthMiddleware(jwtSecret, NearbyTasksHandler(svc)))
	mux.HandleFunc("/helpers/nearby", AuthMiddleware(jwtSecret, NearbyHelpersHandler(svc)))
	mux.HandleFunc("/tasks/", AuthMiddleware(jwtSecret, TaskByIDHandler(svc)))
	return mux
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "gofor server is running")
}

// TasksHandler serves POST /tasks (create) and GET /tasks (list own).
func TasksHandler(svc *service.TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			createTaskHTTP(w, r, svc)
		case http.MethodGet:
			listTasksHTTP(w, r, svc)
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		}
	}
}

func createTaskHTTP(w http.ResponseWriter, r *http.Request, svc *service.TaskService) {
	actor, _ := ActorFromContext(r.Context())
	var in models.CreateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed JSON body", nil)
		return
	}
	// The requester is whoever holds the token, not whatever the body says.
	in.RequesterID = actor.ID
	task, err := svc.CreateTask(in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func listTasksHTTP(w http.ResponseWriter, r *http.Request, svc *service.TaskService) {
	actor, _ := ActorFromContext(r.Context())
	status := models.TaskStatus(r.URL.Query().Get("status"))

	var (
		tasks []models.Task
		err   error
	)
	if r.URL.Query().Get("role") == "helper" || actor.Role == "helper" {
		tasks, err = svc.ListTasksByHelper(actor.ID, status)
	} else {
		tasks, err = svc.ListTasksByRequester(actor.ID, status)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// NearbyTasksHandler serves GET /tasks/nearby?lon=&lat=&radius= for the
// authenticated helper.
func NearbyTasksHandler(svc *service.TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
			return
		}
		actor, _ := ActorFromContext(r.Context())
		point, radius, err := parsePointQuery(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		tasks, err := svc.NearbyTasksForHelper(actor.ID, point, radius)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

// NearbyHelpersHandler serves GET /helpers/nearby?lon=&lat=&radius= for
// operational tooling.
func NearbyHelpersHandler(svc *service.TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
			return
		}
		point, radius, err := parsePointQuery(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		matches, err := svc.NearbyHelpersForTask(point, radius)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, matches)
	}
}

// TaskByIDHandler serves GET /tasks/{id} and the transition endpoints
// POST /tasks/{id}/{accept|reject|status|cancel|budget}.
func TaskByIDHandler(svc *service.TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/")
		parts := strings.SplitN(rest, "/", 2)
		taskID := parts[0]
		if taskID == "" {
			writeJSONError(w, http.StatusNotFound, "task id required", nil)
			return
		}
		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}
		actor, _ := ActorFromContext(r.Context())

		switch {
		case action == "" && r.Method == http.MethodGet:
			task, err := svc.GetTask(taskID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case r.Method != http.MethodPost:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		case action == "accept":
			task, err := svc.AcceptTask(taskID, actor.ID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case action == "reject":
			var body struct {
				Reason string `json:"reason"`
			}
			decodeOptionalBody(r, &body)
			if err := svc.RejectTask(taskID, actor.ID, body.Reason); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case action == "status":
			var body struct {
				Status models.TaskStatus       `json:"status"`
				Reason string                  `json:"reason"`
				Proof  *models.CompletionProof `json:"completion_proof"`
			}
			decodeOptionalBody(r, &body)
			task, err := svc.AdvanceStatus(taskID, actor.ID, body.Status, body.Reason, body.Proof)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case action == "cancel":
			var body struct {
				Reason string `json:"reason"`
			}
			decodeOptionalBody(r, &body)
			task, err := svc.CancelTask(taskID, actor.ID, body.Reason)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case action == "budget":
			var body struct {
				Budget float64 `json:"budget"`
			}
			decodeOptionalBody(r, &body)
			task, err := svc.UpdateBudget(taskID, actor.ID, body.Budget)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		default:
			writeJSONError(w, http.StatusNotFound, "unknown action", nil)
		}
	}
}

func parsePointQuery(r *http.Request) (models.GeoPoint, float64, error) {
	ve := models.ValidationError{Fields: map[string]string{}}
	q := r.URL.Query()
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		ve.Fields["lon"] = "must be a number"
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		ve.Fields["lat"] = "must be a number"
	}
	radius := 0.0
	if raw := q.Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			ve.Fields["radius"] = "must be a number"
		}
	}
	if len(ve.Fields) > 0 {
		return models.GeoPoint{}, 0, &ve
	}
	return models.GeoPoint{Longitude: lon, Latitude: lat}, radius, nil
}

func decodeOptionalBody(r *http.Request, dest interface{}) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(dest)
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, msg string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body := map[string]interface{}{"error": msg}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.GetLogger().Errorf("Failed to encode error response: %v", err)
	}
}

// writeServiceError maps the service error taxonomy onto status codes:
// validation 400, not found 404, authorization 403, conflicts 409.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		writeJSONError(w, http.StatusBadRequest, "validation failed", ve.Fields)
		return
	}
	var ite *service.IllegalTransitionError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, service.ErrHelperUnknown):
		writeJSONError(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, service.ErrNotAuthorized):
		writeJSONError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, service.ErrTaskUnavailable),
		errors.Is(err, service.ErrDeadlineExpired),
		errors.Is(err, service.ErrHelperIneligible),
		errors.As(err, &ite):
		writeJSONError(w, http.StatusConflict, err.Error(), nil)
	default:
		log.GetLogger().Errorf("Internal error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
