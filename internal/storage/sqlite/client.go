package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/storage/models"
	"github.com/proactive-assistant/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nudge_history (
		request_id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL,
		nudge_text TEXT,
		mood TEXT,
		confidence REAL,
		rationale TEXT,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		cost_usd REAL DEFAULT 0,
		latency_ms INTEGER,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_nudge_created ON nudge_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_nudge_status ON nudge_history(status);

	CREATE TABLE IF NOT EXISTS stage_traces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		stage_index INTEGER NOT NULL,
		stage TEXT NOT NULL,
		duration_us INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		FOREIGN KEY (request_id) REFERENCES nudge_history(request_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_traces_request ON stage_traces(request_id);

	CREATE TABLE IF NOT EXISTS benchmark_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chosen TEXT NOT NULL,
		margin REAL NOT NULL,
		semantic_relevance REAL,
		semantic_latency_ms REAL,
		semantic_samples INTEGER,
		semantic_errors INTEGER,
		structured_relevance REAL,
		structured_latency_ms REAL,
		structured_samples INTEGER,
		structured_errors INTEGER,
		decided_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_benchmark_decided ON benchmark_runs(decided_at);

	CREATE TABLE IF NOT EXISTS evaluation_scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		example_id TEXT NOT NULL,
		candidate TEXT,
		semantic REAL,
		rouge1_f1 REAL,
		rouge2_f1 REAL,
		rougel_f1 REAL,
		composite REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_eval_example ON evaluation_scores(example_id);
	CREATE INDEX IF NOT EXISTS idx_eval_created ON evaluation_scores(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InsertNudge persists one run and its stage trace in a single transaction.
func (c *Client) InsertNudge(record *models.NudgeRecord, trace []models.StageTraceRow) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO nudge_history
			(request_id, snapshot_id, nudge_text, mood, confidence, rationale,
			 input_tokens, output_tokens, cost_usd, latency_ms, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RequestID,
		record.SnapshotID,
		record.NudgeText,
		record.Mood,
		record.Confidence,
		record.Rationale,
		record.InputTokens,
		record.OutputTokens,
		record.CostUSD,
		record.LatencyMS,
		record.Status,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert nudge: %w", err)
	}

	for _, row := range trace {
		_, err = tx.Exec(`
			INSERT INTO stage_traces (request_id, stage_index, stage, duration_us, outcome)
			VALUES (?, ?, ?, ?, ?)`,
			record.RequestID,
			row.StageIndex,
			row.Stage,
			row.DurationUS,
			row.Outcome,
		)
		if err != nil {
			return fmt.Errorf("failed to insert stage trace: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit nudge: %w", err)
	}

	logger.Debug("Nudge persisted", zap.String("request_id", record.RequestID))
	return nil
}

func (c *Client) GetRecentNudges(limit int) ([]*models.NudgeRecord, error) {
	rows, err := c.db.Query(`
		SELECT request_id, snapshot_id, nudge_text, mood, confidence, rationale,
		       input_tokens, output_tokens, cost_usd, latency_ms, status, created_at
		FROM nudge_history
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nudges: %w", err)
	}
	defer rows.Close()

	var records []*models.NudgeRecord
	for rows.Next() {
		var record models.NudgeRecord
		var createdAt int64

		err := rows.Scan(
			&record.RequestID,
			&record.SnapshotID,
			&record.NudgeText,
			&record.Mood,
			&record.Confidence,
			&record.Rationale,
			&record.InputTokens,
			&record.OutputTokens,
			&record.CostUSD,
			&record.LatencyMS,
			&record.Status,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan nudge: %w", err)
		}

		record.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &record)
	}

	return records, rows.Err()
}

func (c *Client) GetStageTraces(requestID string) ([]models.StageTraceRow, error) {
	rows, err := c.db.Query(`
		SELECT id, request_id, stage_index, stage, duration_us, outcome
		FROM stage_traces
		WHERE request_id = ?
		ORDER BY stage_index`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage traces: %w", err)
	}
	defer rows.Close()

	var trace []models.StageTraceRow
	for rows.Next() {
		var row models.StageTraceRow
		err := rows.Scan(&row.ID, &row.RequestID, &row.StageIndex, &row.Stage, &row.DurationUS, &row.Outcome)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage trace: %w", err)
		}
		trace = append(trace, row)
	}

	return trace, rows.Err()
}

func (c *Client) InsertBenchmark(record *models.BenchmarkRecord) error {
	_, err := c.db.Exec(`
		INSERT INTO benchmark_runs
			(chosen, margin, semantic_relevance, semantic_latency_ms, semantic_samples, semantic_errors,
			 structured_relevance, structured_latency_ms, structured_samples, structured_errors, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Chosen,
		record.Margin,
		record.SemanticRelevance,
		record.SemanticLatencyMS,
		record.SemanticSamples,
		record.SemanticErrors,
		record.StructuredRelevance,
		record.StructuredLatencyMS,
		record.StructuredSamples,
		record.StructuredErrors,
		record.DecidedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert benchmark: %w", err)
	}

	logger.Debug("Benchmark persisted", zap.String("chosen", record.Chosen))
	return nil
}

func (c *Client) GetRecentBenchmarks(limit int) ([]*models.BenchmarkRecord, error) {
	rows, err := c.db.Query(`
		SELECT id, chosen, margin, semantic_relevance, semantic_latency_ms, semantic_samples, semantic_errors,
		       structured_relevance, structured_latency_ms, structured_samples, structured_errors, decided_at
		FROM benchmark_runs
		ORDER BY decided_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmarks: %w", err)
	}
	defer rows.Close()

	var records []*models.BenchmarkRecord
	for rows.Next() {
		var record models.BenchmarkRecord
		var decidedAt int64

		err := rows.Scan(
			&record.ID,
			&record.Chosen,
			&record.Margin,
			&record.SemanticRelevance,
			&record.SemanticLatencyMS,
			&record.SemanticSamples,
			&record.SemanticErrors,
			&record.StructuredRelevance,
			&record.StructuredLatencyMS,
			&record.StructuredSamples,
			&record.StructuredErrors,
			&decidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan benchmark: %w", err)
		}

		record.DecidedAt = time.Unix(decidedAt, 0)
		records = append(records, &record)
	}

	return records, rows.Err()
}

func (c *Client) InsertEvaluationScore(row *models.EvaluationRow) error {
	_, err := c.db.Exec(`
		INSERT INTO evaluation_scores
			(example_id, candidate, semantic, rouge1_f1, rouge2_f1, rougel_f1, composite, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ExampleID,
		row.Candidate,
		row.Semantic,
		row.Rouge1F1,
		row.Rouge2F1,
		row.RougeLF1,
		row.Composite,
		row.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation score: %w", err)
	}
	return nil
}

func (c *Client) GetEvaluationScores(limit int) ([]*models.EvaluationRow, error) {
	rows, err := c.db.Query(`
		SELECT id, example_id, candidate, semantic, rouge1_f1, rouge2_f1, rougel_f1, composite, created_at
		FROM evaluation_scores
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluation scores: %w", err)
	}
	defer rows.Close()

	var records []*models.EvaluationRow
	for rows.Next() {
		var record models.EvaluationRow
		var createdAt int64

		err := rows.Scan(
			&record.ID,
			&record.ExampleID,
			&record.Candidate,
			&record.Semantic,
			&record.Rouge1F1,
			&record.Rouge2F1,
			&record.RougeLF1,
			&record.Composite,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation score: %w", err)
		}

		record.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &record)
	}

	return records, rows.Err()
}
