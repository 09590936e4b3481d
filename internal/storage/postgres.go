package storage

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/avizh98/gofor/pkg/models"
	"github.com/avizh98/gofor/pkg/storage"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore persists tasks in PostgreSQL. Status history and the
// rejection list live in JSONB columns so a transition appends to them in
// the same UPDATE that swaps the status. The statement-level atomicity is
// what implements compare-and-swap.
type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil
}

// proofColumn makes the nullable completion_proof JSONB column scannable.
type proofColumn struct {
	Proof *models.CompletionProof
}

func (p proofColumn) Value() (driver.Value, error) {
	if p.Proof == nil {
		return nil, nil
	}
	return json.Marshal(p.Proof)
}

func (p *proofColumn) Scan(src interface{}) error {
	if src == nil {
		p.Proof = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into completion proof", src)
	}
	p.Proof = &models.CompletionProof{}
	return json.Unmarshal(b, p.Proof)
}

// taskRow is the flat column layout of the tasks table.
type taskRow struct {
	ID                 string               `db:"id"`
	RequesterID        string               `db:"requester_id"`
	HelperID           *string              `db:"helper_id"`
	Category           string               `db:"category"`
	Title              string               `db:"title"`
	Description        string               `db:"description"`
	PickupAddress      string               `db:"pickup_address"`
	PickupLandmark     string               `db:"pickup_landmark"`
	PickupLon          float64              `db:"pickup_lon"`
	PickupLat          float64              `db:"pickup_lat"`
	DeliveryAddress    string               `db:"delivery_address"`
	DeliveryLandmark   string               `db:"delivery_landmark"`
	DeliveryLon        float64              `db:"delivery_lon"`
	DeliveryLat        float64              `db:"delivery_lat"`
	Urgency            string               `db:"urgency"`
	ScheduledTime      *time.Time           `db:"scheduled_time"`
	EstimatedDuration  int                  `db:"estimated_duration"`
	Budget             float64              `db:"budget"`
	ServiceFee         float64              `db:"service_fee"`
	TotalAmount        float64              `db:"total_amount"`
	Status             string               `db:"status"`
	StatusHistory      models.StatusHistory `db:"status_history"`
	AcceptanceDeadline *time.Time           `db:"acceptance_deadline"`
	RejectedHelpers    models.RejectionList `db:"rejected_helpers"`
	CompletedAt        *time.Time           `db:"completed_at"`
	CompletionProof    proofColumn          `db:"completion_proof"`
	CancellationReason string               `db:"cancellation_reason"`
	CancelledBy        string               `db:"cancelled_by"`
	ViewCount          int                  `db:"view_count"`
	DistanceKm         float64              `db:"distance_km"`
	CreatedAt          time.Time            `db:"created_at"`
	UpdatedAt          time.Time            `db:"updated_at"`
}

func toRow(t models.Task) taskRow {
	return taskRow{
		ID:                 t.ID,
		RequesterID:        t.RequesterID,
		HelperID:           t.HelperID,
		Category:           string(t.Category),
		Title:              t.Title,
		Description:        t.Description,
		PickupAddress:      t.Pickup.Address,
		PickupLandmark:     t.Pickup.Landmark,
		PickupLon:          t.Pickup.Point.Longitude,
		PickupLat:          t.Pickup.Point.Latitude,
		DeliveryAddress:    t.Delivery.Address,
		DeliveryLandmark:   t.Delivery.Landmark,
		DeliveryLon:        t.Delivery.Point.Longitude,
		DeliveryLat:        t.Delivery.Point.Latitude,
		Urgency:            string(t.Urgency),
		ScheduledTime:      t.ScheduledTime,
		EstimatedDuration:  t.EstimatedDuration,
		Budget:             t.Budget,
		ServiceFee:         t.ServiceFee,
		TotalAmount:        t.TotalAmount,
		Status:             string(t.Status),
		StatusHistory:      t.StatusHistory,
		AcceptanceDeadline: t.AcceptanceDeadline,
		RejectedHelpers:    t.RejectedHelpers,
		CompletedAt:        t.CompletedAt,
		CompletionProof:    proofColumn{Proof: t.CompletionProof},
		CancellationReason: t.CancellationReason,
		CancelledBy:        t.CancelledBy,
		ViewCount:          t.ViewCount,
		DistanceKm:         t.DistanceKm,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func (r taskRow) toModel() models.Task {
	return models.Task{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		HelperID:    r.HelperID,
		Category:    models.TaskCategory(r.Category),
		Title:       r.Title,
		Description: r.Description,
		Pickup: models.Location{
			Address:  r.PickupAddress,
			Landmark: r.PickupLandmark,
			Point:    models.GeoPoint{Longitude: r.PickupLon, Latitude: r.PickupLat},
		},
		Delivery: models.Location{
			Address:  r.DeliveryAddress,
			Landmark: r.DeliveryLandmark,
			Point:    models.GeoPoint{Longitude: r.DeliveryLon, Latitude: r.DeliveryLat},
		},
		Urgency:            models.TaskUrgency(r.Urgency),
		ScheduledTime:      r.ScheduledTime,
		EstimatedDuration:  r.EstimatedDuration,
		Budget:             r.Budget,
		ServiceFee:         r.ServiceFee,
		TotalAmount:        r.TotalAmount,
		Status:             models.TaskStatus(r.Status),
		StatusHistory:      r.StatusHistory,
		AcceptanceDeadline: r.AcceptanceDeadline,
		RejectedHelpers:    r.RejectedHelpers,
		CompletedAt:        r.CompletedAt,
		CompletionProof:    r.CompletionProof.Proof,
		CancellationReason: r.CancellationReason,
		CancelledBy:        r.CancelledBy,
		ViewCount:          r.ViewCount,
		DistanceKm:         r.DistanceKm,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

const taskColumns = `id, requester_id, helper_id, category, title, description,
	pickup_address, pickup_landmark, pickup_lon, pickup_lat,
	delivery_address, delivery_landmark, delivery_lon, delivery_lat,
	urgency, scheduled_time, estimated_duration,
	budget, service_fee, total_amount,
	status, status_history, acceptance_deadline, rejected_helpers,
	completed_at, completion_proof, cancellation_reason, cancelled_by,
	view_count, distance_km, created_at, updated_at`

func (s *PostgresStore) CreateTask(t models.Task) error {
	r := toRow(t)
	_, err := s.db.Exec(`INSERT INTO tasks (`+taskColumns+`) VALUES
		($1, $2, $3, $4, $5, $6,
		 $7, $8, $9, $10,
		 $11, $12, $13, $14,
		 $15, $16, $17,
		 $18, $19, $20,
		 $21, $22, $23, $24,
		 $25, $26, $27, $28,
		 $29, $30, $31, $32)`,
		r.ID, r.RequesterID, r.HelperID, r.Category, r.Title, r.Description,
		r.PickupAddress, r.PickupLandmark, r.PickupLon, r.PickupLat,
		r.DeliveryAddress, r.DeliveryLandmark, r.DeliveryLon, r.DeliveryLat,
		r.Urgency, r.ScheduledTime, r.EstimatedDuration,
		r.Budget, r.ServiceFee, r.TotalAmount,
		r.Status, r.StatusHistory, r.AcceptanceDeadline, r.RejectedHelpers,
		r.CompletedAt, r.CompletionProof, r.CancellationReason, r.CancelledBy,
		r.ViewCount, r.DistanceKm, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(id string) (models.Task, error) {
	var r taskRow
	err := s.db.Get(&r, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return models.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return r.toModel(), nil
}

func (s *PostgresStore) ListTasksByRequester(requesterID string, status models.TaskStatus) ([]models.Task, error) {
	return s.listTasks(`requester_id = $1`, requesterID, status)
}

func (s *PostgresStore) ListTasksByHelper(helperID string, status models.TaskStatus) ([]models.Task, error) {
	return s.listTasks(`helper_id = $1`, helperID, status)
}

func (s *PostgresStore) listTasks(ownerClause, ownerID string, status models.TaskStatus) ([]models.Task, error) {
	var rows []taskRow
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + ownerClause
	args := []interface{}{ownerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toModel())
	}
	return tasks, nil
}

// CompareAndSwapStatus applies the transition in a single UPDATE guarded
// by the expected status. Zero rows affected means either the task is
// gone or the guard failed; a follow-up read disambiguates.
func (s *PostgresStore) CompareAndSwapStatus(id string, expected, next models.TaskStatus, mut storage.StatusMutation) (models.Task, error) {
	entry, err := json.Marshal(mut.History)
	if err != nil {
		return models.Task{}, fmt.Errorf("marshal history entry: %w", err)
	}
	var r taskRow
	err = s.db.QueryRowx(`
		UPDATE tasks SET
			status = $1,
			status_history = status_history || $2::jsonb,
			helper_id = COALESCE($3, helper_id),
			acceptance_deadline = CASE WHEN $4 THEN NULL ELSE acceptance_deadline END,
			cancellation_reason = CASE WHEN $5 = '' THEN cancellation_reason ELSE $5 END,
			cancelled_by = CASE WHEN $6 = '' THEN cancelled_by ELSE $6 END,
			completed_at = COALESCE($7, completed_at),
			completion_proof = COALESCE($8, completion_proof),
			updated_at = $9
		WHERE id = $10 AND status = $11
		RETURNING `+taskColumns,
		string(next), entry, mut.HelperID, mut.ClearDeadline,
		mut.CancellationReason, mut.CancelledBy,
		mut.CompletedAt, proofColumn{Proof: mut.CompletionProof},
		mut.History.ChangedAt,
		id, string(expected)).StructScan(&r)
	if err == sql.ErrNoRows {
		var exists bool
		if err := s.db.Get(&exists, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id); err != nil {
			return models.Task{}, fmt.Errorf("check task %s: %w", id, err)
		}
		if !exists {
			return models.Task{}, storage.ErrNotFound
		}
		return models.Task{}, storage.ErrConflict
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("swap status of task %s: %w", id, err)
	}
	return r.toModel(), nil
}

func (s *PostgresStore) AppendRejection(id string, rej models.Rejection) error {
	b, err := json.Marshal(rej)
	if err != nil {
		return fmt.Errorf("marshal rejection: %w", err)
	}
	res, err := s.db.Exec(`
		UPDATE tasks SET rejected_helpers = rejected_helpers || $1::jsonb, updated_at = $2
		WHERE id = $3`,
		b, rej.RejectedAt, id)
	if err != nil {
		return fmt.Errorf("append rejection: %w", err)
	}
	return errIfNoRows(res)
}

func (s *PostgresStore) IncrementViewCount(id string) error {
	res, err := s.db.Exec(`UPDATE tasks SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	return errIfNoRows(res)
}

func (s *PostgresStore) UpdateBudget(id string, budget, serviceFee, totalAmount float64) error {
	res, err := s.db.Exec(`
		UPDATE tasks SET budget = $1, service_fee = $2, total_amount = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4 AND status = $5`,
		budget, serviceFee, totalAmount, id, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.Get(&exists, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id); err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// haversineMeters is the SQL rendering of the great-circle distance from
// the query point ($1 lon, $2 lat) to a task's pickup point.
const haversineMeters = `6371000 * 2 * asin(sqrt(
	power(sin(radians(pickup_lat - $2) / 2), 2) +
	cos(radians($2)) * cos(radians(pickup_lat)) *
	power(sin(radians(pickup_lon - $1) / 2), 2)))`

func (s *PostgresStore) TasksWithinRadius(p models.GeoPoint, radiusMeters float64, excludeHelperID string) ([]models.Task, error) {
	var rows []taskRow
	err := s.db.Select(&rows, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = 'pending'
		  AND `+haversineMeters+` <= $3
		  AND ($4 = '' OR NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(rejected_helpers) AS r
			WHERE r->>'helper_id' = $4))
		ORDER BY CASE WHEN urgency = 'asap' THEN 0 ELSE 1 END, created_at DESC`,
		p.Longitude, p.Latitude, radiusMeters, excludeHelperID)
	if err != nil {
		return nil, fmt.Errorf("tasks within radius: %w", err)
	}
	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toModel())
	}
	return tasks, nil
}

func (s *PostgresStore) ExpiredUrgentTasks(now time.Time) ([]models.Task, error) {
	var rows []taskRow
	err := s.db.Select(&rows, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = 'pending' AND urgency = 'asap' AND acceptance_deadline < $1`,
		now)
	if err != nil {
		return nil, fmt.Errorf("expired urgent tasks: %w", err)
	}
	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toModel())
	}
	return tasks, nil
}

func errIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
