package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaSQL string

// DBPool is the subset of pgxpool.Pool the store uses, so tests can pass a mock
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlUpsertPatient = `
        INSERT INTO patients (name, phone, synced)
        VALUES ($1, $2, TRUE)
        ON CONFLICT (name) DO UPDATE SET
            phone = CASE WHEN $3 THEN EXCLUDED.phone ELSE patients.phone END,
            updated_at = NOW()
        RETURNING id, name, phone, via_chatbot, synced, created_at, updated_at, (xmax = 0)`

	sqlFindVaccineContaining = `
        SELECT id, name, laboratory, purchase_price, sale_price, current_stock, available_stock, min_stock, created_at, updated_at
        FROM vaccines
        WHERE name ILIKE $1
        ORDER BY id
        LIMIT 1`

	sqlInsertVaccine = `
        INSERT INTO vaccines (name, current_stock, min_stock)
        VALUES ($1, 0, 10)
        ON CONFLICT (name) DO UPDATE SET updated_at = NOW()
        RETURNING id, name, laboratory, purchase_price, sale_price, current_stock, available_stock, min_stock, created_at, updated_at, (xmax = 0)`

	sqlUpsertAppointment = `
        INSERT INTO appointments (patient_id, vaccine_id, appointment_date, appointment_time, status, observations)
        VALUES ($1, $2, $3, $4, 'scheduled', $5)
        ON CONFLICT (patient_id, appointment_date, appointment_time) DO UPDATE SET
            vaccine_id = EXCLUDED.vaccine_id,
            observations = EXCLUDED.observations,
            status = 'scheduled',
            updated_at = NOW()
        RETURNING (xmax = 0)`

	sqlFindStockVaccine = `
        SELECT id FROM vaccines
        WHERE name = $1
           OR (lower(name) LIKE $2 AND laboratory = '' AND current_stock = 0
               AND available_stock = 0 AND purchase_price = 0 AND sale_price = 0)
        ORDER BY (name = $1) DESC, id
        LIMIT 1`

	sqlUpdateStock = `
        UPDATE vaccines SET
            laboratory = COALESCE(NULLIF($2, ''), laboratory),
            current_stock = $3,
            available_stock = $4,
            min_stock = $5,
            purchase_price = CASE WHEN $6::numeric > 0 THEN $6::numeric ELSE purchase_price END,
            sale_price = CASE WHEN $7::numeric > 0 THEN $7::numeric ELSE sale_price END,
            updated_at = NOW()
        WHERE id = $1`

	sqlInsertStock = `
        INSERT INTO vaccines (name, laboratory, current_stock, available_stock, min_stock, purchase_price, sale_price)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	sqlUpsertListing = `
        INSERT INTO patient_listings (name, birth_date, responsible_1, responsible_2, register_date)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (name, register_date) DO UPDATE SET
            birth_date = EXCLUDED.birth_date,
            responsible_1 = EXCLUDED.responsible_1,
            responsible_2 = EXCLUDED.responsible_2,
            updated_at = NOW()
        RETURNING (xmax = 0)`

	sqlGetSubmission = `
        SELECT id, cpf, email, full_name, status, patient_id_in_platform, error_message, attempts, last_attempt_at, raw_form_data, created_at, updated_at
        FROM submissions
        WHERE cpf = $1`

	sqlSaveSubmission = `
        INSERT INTO submissions (cpf, email, full_name, status, patient_id_in_platform, error_message, attempts, last_attempt_at, raw_form_data)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (cpf) DO UPDATE SET
            email = EXCLUDED.email,
            full_name = EXCLUDED.full_name,
            status = EXCLUDED.status,
            patient_id_in_platform = EXCLUDED.patient_id_in_platform,
            error_message = EXCLUDED.error_message,
            attempts = EXCLUDED.attempts,
            last_attempt_at = EXCLUDED.last_attempt_at,
            raw_form_data = EXCLUDED.raw_form_data,
            updated_at = NOW()
        RETURNING id, created_at, updated_at`

	sqlAppendLog = `
        INSERT INTO registration_logs (submission_id, attempt_number, step, success, message, error_details, logged_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	sqlLogs = `
        SELECT id, submission_id, attempt_number, step, success, message, error_details, logged_at
        FROM registration_logs
        WHERE submission_id = $1
        ORDER BY id`

	sqlCleanupLogs = `DELETE FROM registration_logs WHERE logged_at < $1`

	sqlSaveRun = `
        INSERT INTO sync_runs (id, kind, status, started_at, finished_at, total_new, registered, duplicates, errors, created, updated, duration_seconds, error_message)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            finished_at = EXCLUDED.finished_at,
            total_new = EXCLUDED.total_new,
            registered = EXCLUDED.registered,
            duplicates = EXCLUDED.duplicates,
            errors = EXCLUDED.errors,
            created = EXCLUDED.created,
            updated = EXCLUDED.updated,
            duration_seconds = EXCLUDED.duration_seconds,
            error_message = EXCLUDED.error_message`

	sqlRecentRuns = `
        SELECT id, kind, status, started_at, finished_at, total_new, registered, duplicates, errors, created, updated, duration_seconds, error_message
        FROM sync_runs
        ORDER BY started_at DESC
        LIMIT $1`
)

// Postgres is the PostgreSQL Store
type Postgres struct {
	pool   DBPool
	logger *logrus.Logger
}

// NewPool opens a pgx pool and verifies the connection
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// NewPostgres creates a store on pool after a successful ping
func NewPostgres(ctx context.Context, pool DBPool, logger *logrus.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Migrate creates missing tables and indexes
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Database schema applied")
	return nil
}

// likeEscape quotes LIKE wildcards in s
func likeEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func result(inserted bool) models.UpsertResult {
	if inserted {
		return models.Created
	}
	return models.Updated
}

// UpsertPatient implements Store
func (s *Postgres) UpsertPatient(ctx context.Context, name, phone string) (models.Patient, models.UpsertResult, error) {
	known := KnownPhone(phone)
	if !known {
		phone = "Não informado"
	}
	var p models.Patient
	var inserted bool
	err := s.pool.QueryRow(ctx, sqlUpsertPatient, name, phone, known).
		Scan(&p.ID, &p.Name, &p.Phone, &p.ViaChatbot, &p.Synced, &p.CreatedAt, &p.UpdatedAt, &inserted)
	if err != nil {
		return models.Patient{}, "", fmt.Errorf("failed to upsert patient %q: %w", name, err)
	}
	return p, result(inserted), nil
}

// ResolveVaccine implements Store
func (s *Postgres) ResolveVaccine(ctx context.Context, info string) (models.Vaccine, models.UpsertResult, error) {
	name := VaccineName(info)
	if name == "" {
		return models.Vaccine{}, "", ErrNotFound
	}

	var v models.Vaccine
	err := s.pool.QueryRow(ctx, sqlFindVaccineContaining, "%"+likeEscape(name)+"%").
		Scan(&v.ID, &v.Name, &v.Laboratory, &v.PurchasePrice, &v.SalePrice, &v.CurrentStock, &v.AvailableStock, &v.MinStock, &v.CreatedAt, &v.UpdatedAt)
	if err == nil {
		return v, models.Updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Vaccine{}, "", fmt.Errorf("failed to find vaccine %q: %w", name, err)
	}

	var inserted bool
	err = s.pool.QueryRow(ctx, sqlInsertVaccine, name).
		Scan(&v.ID, &v.Name, &v.Laboratory, &v.PurchasePrice, &v.SalePrice, &v.CurrentStock, &v.AvailableStock, &v.MinStock, &v.CreatedAt, &v.UpdatedAt, &inserted)
	if err != nil {
		return models.Vaccine{}, "", fmt.Errorf("failed to create vaccine %q: %w", name, err)
	}
	return v, result(inserted), nil
}

// UpsertAppointment implements Store
func (s *Postgres) UpsertAppointment(ctx context.Context, a models.ScheduledAppointment) (models.UpsertResult, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, sqlUpsertAppointment, a.PatientID, a.VaccineID, a.Date, a.Time, a.Observations).Scan(&inserted)
	if err != nil {
		return "", fmt.Errorf("failed to upsert appointment: %w", err)
	}
	return result(inserted), nil
}

// UpsertStock implements Store
func (s *Postgres) UpsertStock(ctx context.Context, item models.StockItem) (models.UpsertResult, error) {
	var id int64
	err := s.pool.QueryRow(ctx, sqlFindStockVaccine, item.Name, likeEscape(strings.ToLower(item.Name))+"%").Scan(&id)
	switch {
	case err == nil:
		_, err = s.pool.Exec(ctx, sqlUpdateStock, id, item.Laboratory, item.CurrentStock, item.AvailableStock, item.MinStock, item.PurchasePrice, item.SalePrice)
		if err != nil {
			return "", fmt.Errorf("failed to update stock of %q: %w", item.Name, err)
		}
		return models.Updated, nil
	case errors.Is(err, pgx.ErrNoRows):
		_, err = s.pool.Exec(ctx, sqlInsertStock, item.Name, item.Laboratory, item.CurrentStock, item.AvailableStock, item.MinStock, item.PurchasePrice, item.SalePrice)
		if err != nil {
			return "", fmt.Errorf("failed to create vaccine %q: %w", item.Name, err)
		}
		return models.Created, nil
	default:
		return "", fmt.Errorf("failed to find vaccine %q: %w", item.Name, err)
	}
}

// UpsertListing implements Store
func (s *Postgres) UpsertListing(ctx context.Context, u models.UserRecord) (models.UpsertResult, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, sqlUpsertListing, u.Name, u.BirthDate, u.Responsible1, u.Responsible2, u.RegisterDate).Scan(&inserted)
	if err != nil {
		return "", fmt.Errorf("failed to upsert patient listing %q: %w", u.Name, err)
	}
	return result(inserted), nil
}

// GetSubmission implements Store
func (s *Postgres) GetSubmission(ctx context.Context, cpf string) (models.Submission, error) {
	var sub models.Submission
	var status string
	var raw []byte
	err := s.pool.QueryRow(ctx, sqlGetSubmission, cpf).Scan(
		&sub.ID, &sub.CPF, &sub.Email, &sub.FullName, &status, &sub.PatientIDInPlatform, &sub.ErrorMessage,
		&sub.Attempts, &sub.LastAttemptAt, &raw, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Submission{}, ErrNotFound
	}
	if err != nil {
		return models.Submission{}, fmt.Errorf("failed to load submission: %w", err)
	}
	sub.Status = models.SubmissionStatus(status)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sub.RawFormData); err != nil {
			return models.Submission{}, fmt.Errorf("failed to decode submission form data: %w", err)
		}
	}
	return sub, nil
}

// SaveSubmission implements Store
func (s *Postgres) SaveSubmission(ctx context.Context, sub *models.Submission) error {
	raw, err := json.Marshal(sub.RawFormData)
	if err != nil {
		return fmt.Errorf("failed to encode submission form data: %w", err)
	}
	if sub.RawFormData == nil {
		raw = []byte("{}")
	}
	err = s.pool.QueryRow(ctx, sqlSaveSubmission,
		sub.CPF, sub.Email, sub.FullName, string(sub.Status), sub.PatientIDInPlatform, sub.ErrorMessage,
		sub.Attempts, sub.LastAttemptAt, raw,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}
	return nil
}

// AppendLog implements Store
func (s *Postgres) AppendLog(ctx context.Context, l models.RegistrationLog) error {
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	_, err := s.pool.Exec(ctx, sqlAppendLog, l.SubmissionID, l.AttemptNumber, string(l.Step), l.Success, l.Message, l.ErrorDetails, l.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append registration log: %w", err)
	}
	return nil
}

// Logs implements Store
func (s *Postgres) Logs(ctx context.Context, submissionID int64) ([]models.RegistrationLog, error) {
	rows, err := s.pool.Query(ctx, sqlLogs, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query registration logs: %w", err)
	}
	defer rows.Close()

	var out []models.RegistrationLog
	for rows.Next() {
		var l models.RegistrationLog
		var step string
		if err := rows.Scan(&l.ID, &l.SubmissionID, &l.AttemptNumber, &step, &l.Success, &l.Message, &l.ErrorDetails, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan registration log: %w", err)
		}
		l.Step = models.Step(step)
		out = append(out, l)
	}
	return out, rows.Err()
}

// CleanupOldLogs implements Store
func (s *Postgres) CleanupOldLogs(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, sqlCleanupLogs, before)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up registration logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SaveRun implements Store
func (s *Postgres) SaveRun(ctx context.Context, r *models.SyncRun) error {
	_, err := s.pool.Exec(ctx, sqlSaveRun,
		r.ID, string(r.Kind), string(r.Status), r.StartedAt, r.FinishedAt,
		r.TotalNew, r.Registered, r.Duplicates, r.Errors, r.Created, r.Updated,
		r.DurationSeconds, r.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to save sync run %s: %w", r.ID, err)
	}
	return nil
}

// RecentRuns implements Store
func (s *Postgres) RecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var out []models.SyncRun
	for rows.Next() {
		var r models.SyncRun
		var kind, status string
		if err := rows.Scan(&r.ID, &kind, &status, &r.StartedAt, &r.FinishedAt,
			&r.TotalNew, &r.Registered, &r.Duplicates, &r.Errors, &r.Created, &r.Updated,
			&r.DurationSeconds, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.Kind, r.Status = models.RunKind(kind), models.RunStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping implements Store
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store
func (s *Postgres) Close() {
	s.pool.Close()
}
