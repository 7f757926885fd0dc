package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medivuehealth/flarecast/internal/apperr"
	"github.com/medivuehealth/flarecast/internal/obs"
)

// PostgresStore is the relational backend for hosted deployments.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool, verifies the connection, and applies
// pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Health checks the database connection.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Record(ctx context.Context, p Prediction) error {
	observation, err := json.Marshal(p.Observation)
	if err != nil {
		return apperr.Storage(fmt.Errorf("marshal observation: %w", err))
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO predictions (id, user_id, ts, observation, probability, label, risk_level, model_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.UserID, p.Timestamp, observation, p.Probability, p.Label, p.RiskLevel, p.ModelVersion)
	if err != nil {
		return apperr.Storage(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict(fmt.Sprintf("prediction %s already recorded", p.ID))
	}
	return nil
}

const predictionColumns = `
	p.id, p.user_id, p.ts, p.observation, p.probability, p.label, p.risk_level, p.model_version,
	o.flare_occurred, o.reported_at, o.source, o.symptoms, o.severity, o.duration_days, o.notes`

func scanPrediction(row pgx.Row) (Prediction, error) {
	var (
		p            Prediction
		observation  []byte
		occurred     *bool
		reportedAt   *time.Time
		source       *string
		symptoms     []string
		severity     *int
		durationDays *int
		notes        *string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Timestamp, &observation, &p.Probability,
		&p.Label, &p.RiskLevel, &p.ModelVersion,
		&occurred, &reportedAt, &source, &symptoms, &severity, &durationDays, &notes)
	if err != nil {
		return Prediction{}, err
	}
	var o obs.Observation
	if err := json.Unmarshal(observation, &o); err != nil {
		return Prediction{}, fmt.Errorf("unmarshal observation: %w", err)
	}
	p.Observation = o
	if occurred != nil && reportedAt != nil {
		out := Outcome{FlareOccurred: *occurred, ReportedAt: *reportedAt, Symptoms: symptoms}
		if source != nil {
			out.Source = *source
		}
		if severity != nil {
			out.Severity = *severity
		}
		if durationDays != nil {
			out.DurationDays = *durationDays
		}
		if notes != nil {
			out.Notes = *notes
		}
		p.Outcome = &out
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Prediction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions p
		LEFT JOIN flare_outcomes o ON o.prediction_id = p.id
		WHERE p.id = $1`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Prediction{}, apperr.NotFound("prediction", id)
	}
	if err != nil {
		return Prediction{}, apperr.Storage(err)
	}
	return p, nil
}

func (s *PostgresStore) AttachOutcome(ctx context.Context, predictionID string, o Outcome) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM predictions WHERE id = $1)`, predictionID).Scan(&exists)
	if err != nil {
		return apperr.Storage(err)
	}
	if !exists {
		return apperr.NotFound("prediction", predictionID)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO flare_outcomes (prediction_id, flare_occurred, reported_at, source, symptoms, severity, duration_days, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (prediction_id) DO NOTHING`,
		predictionID, o.FlareOccurred, o.ReportedAt, o.Source, o.Symptoms, o.Severity, o.DurationDays, o.Notes)
	if err != nil {
		return apperr.Storage(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// An outcome already exists: a matching repeat is idempotent, a
	// disagreeing one is a conflict.
	var occurred bool
	err = s.pool.QueryRow(ctx,
		`SELECT flare_occurred FROM flare_outcomes WHERE prediction_id = $1`, predictionID).Scan(&occurred)
	if err != nil {
		return apperr.Storage(err)
	}
	if occurred == o.FlareOccurred {
		return nil
	}
	return apperr.Conflict(fmt.Sprintf("prediction %s already has a conflicting outcome", predictionID))
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]Prediction, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions p
		LEFT JOIN flare_outcomes o ON o.prediction_id = p.id
		WHERE 1=1`
	args := []any{}
	if q.UserID != "" {
		args = append(args, q.UserID)
		query += fmt.Sprintf(" AND p.user_id = $%d", len(args))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		query += fmt.Sprintf(" AND p.ts >= $%d", len(args))
	}
	query += " ORDER BY p.ts DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()
	return collectPredictions(rows)
}

func (s *PostgresStore) Verified(ctx context.Context, start, end time.Time) ([]Prediction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions p
		JOIN flare_outcomes o ON o.prediction_id = p.id
		WHERE p.ts >= $1 AND p.ts < $2
		ORDER BY p.ts DESC`, start, end)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()
	return collectPredictions(rows)
}

func collectPredictions(rows pgx.Rows) ([]Prediction, error) {
	var out []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}

func (s *PostgresStore) AppendValidation(ctx context.Context, v ValidationRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO model_metrics (
			id, run_at, window_start, window_end, sample_count, insufficient,
			accuracy, precision_score, recall_score, f1_score, auc_score,
			true_positives, false_positives, true_negatives, false_negatives, model_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		v.ID, v.RunAt, v.WindowStart, v.WindowEnd, v.SampleCount, v.Insufficient,
		v.Metrics.Accuracy, v.Metrics.Precision, v.Metrics.Recall, v.Metrics.F1, v.Metrics.AUC,
		v.Confusion.TruePositives, v.Confusion.FalsePositives,
		v.Confusion.TrueNegatives, v.Confusion.FalseNegatives, v.ModelVersion)
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

func (s *PostgresStore) ValidationHistory(ctx context.Context, limit int) ([]ValidationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_at, window_start, window_end, sample_count, insufficient,
			accuracy, precision_score, recall_score, f1_score, auc_score,
			true_positives, false_positives, true_negatives, false_negatives, model_version
		FROM model_metrics
		ORDER BY run_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()

	var out []ValidationRecord
	for rows.Next() {
		var v ValidationRecord
		err := rows.Scan(&v.ID, &v.RunAt, &v.WindowStart, &v.WindowEnd, &v.SampleCount, &v.Insufficient,
			&v.Metrics.Accuracy, &v.Metrics.Precision, &v.Metrics.Recall, &v.Metrics.F1, &v.Metrics.AUC,
			&v.Confusion.TruePositives, &v.Confusion.FalsePositives,
			&v.Confusion.TrueNegatives, &v.Confusion.FalseNegatives, &v.ModelVersion)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}

func (s *PostgresStore) AddTraining(ctx context.Context, r TrainingRecord) error {
	observation, err := json.Marshal(r.Observation)
	if err != nil {
		return apperr.Storage(fmt.Errorf("marshal observation: %w", err))
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO training_records (id, user_id, ts, observation, label)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.UserID, r.Timestamp, observation, r.Label)
	if err != nil {
		return apperr.Storage(err)
	}
	return nil
}

func (s *PostgresStore) Training(ctx context.Context, limit int) ([]TrainingRecord, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, ts, observation, label
		FROM training_records
		ORDER BY ts DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer rows.Close()

	var out []TrainingRecord
	for rows.Next() {
		var (
			r           TrainingRecord
			observation []byte
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Timestamp, &observation, &r.Label); err != nil {
			return nil, apperr.Storage(err)
		}
		if err := json.Unmarshal(observation, &r.Observation); err != nil {
			return nil, apperr.Storage(fmt.Errorf("unmarshal observation: %w", err))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err)
	}
	return out, nil
}
