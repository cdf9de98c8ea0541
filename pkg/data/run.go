package data

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/riskcascade/pkg/pipeline"
	"github.com/pkg/errors"
)

const (
	RunLimitDefault = 20

	insertRunSQL = `INSERT INTO run (id, input, state, row_count, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	insertStageSQL = `INSERT INTO run_stage (run_id, seq, stage, outputs, error)
		VALUES (?, ?, ?, ?, ?)
	`
	insertWarningSQL = `INSERT INTO run_warning (run_id, seq, stage, artifact, col, kind, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	selectRunsSQL = `SELECT id, input, state, row_count, error, created_at
		FROM run
		ORDER BY created_at DESC, id
		LIMIT ?
	`
	selectRunSQL = `SELECT id, input, state, row_count, error, created_at
		FROM run
		WHERE id = ?
	`
	selectStagesSQL = `SELECT stage, outputs, error
		FROM run_stage
		WHERE run_id = ?
		ORDER BY seq
	`
	selectWarningsSQL = `SELECT stage, artifact, col, kind, message
		FROM run_warning
		WHERE run_id = ?
		ORDER BY seq
	`

	// fixed width so created_at sorts as text
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Run is a recorded pipeline run.
type Run struct {
	ID        string        `json:"id" yaml:"id"`
	Input     string        `json:"input" yaml:"input"`
	State     string        `json:"state" yaml:"state"`
	Rows      int           `json:"rows" yaml:"rows"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
	Stages    []*RunStage   `json:"stages,omitempty" yaml:"stages,omitempty"`
	Warnings  []*RunWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type RunStage struct {
	Stage   string   `json:"stage" yaml:"stage"`
	Outputs []string `json:"outputs" yaml:"outputs"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type RunWarning struct {
	Stage    string `json:"stage" yaml:"stage"`
	Artifact string `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Column   string `json:"column,omitempty" yaml:"column,omitempty"`
	Kind     string `json:"kind" yaml:"kind"`
	Message  string `json:"message" yaml:"message"`
}

// NewRunID returns a new unique run id.
func NewRunID() string {
	return uuid.NewString()
}

// NewRun builds the record of a finished pipeline run over input.
func NewRun(input string, rows int, res *pipeline.Result) *Run {
	r := &Run{
		ID:        NewRunID(),
		Input:     input,
		Rows:      rows,
		CreatedAt: time.Now().UTC(),
	}
	if res == nil {
		return r
	}

	r.State = string(res.State)
	r.Error = res.Error
	for _, s := range res.Stages {
		outputs := s.Outputs
		if outputs == nil {
			outputs = []string{}
		}
		r.Stages = append(r.Stages, &RunStage{
			Stage:   s.Stage.String(),
			Outputs: outputs,
			Error:   s.Error,
		})
	}
	for _, w := range res.Warnings() {
		r.Warnings = append(r.Warnings, &RunWarning{
			Stage:    w.Stage.String(),
			Artifact: w.Artifact,
			Column:   w.Column,
			Kind:     w.Kind,
			Message:  w.Message,
		})
	}
	return r
}

// SaveRun stores the run with its stages and warnings in a single transaction.
func SaveRun(db *sql.DB, r *Run) error {
	if db == nil {
		return errDBNotInitialized
	}
	if r == nil || r.ID == "" {
		return errors.New("run with id required")
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := saveRun(tx, r); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(rbErr, "failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func saveRun(tx *sql.Tx, r *Run) error {
	if _, err := tx.Exec(insertRunSQL, r.ID, r.Input, r.State, r.Rows, r.Error, r.CreatedAt.UTC().Format(timeFormat)); err != nil {
		return errors.Wrapf(err, "failed to insert run: %s", r.ID)
	}

	stageStmt, err := tx.Prepare(insertStageSQL)
	if err != nil {
		return errors.Wrap(err, "failed to prepare stage insert statement")
	}
	defer stageStmt.Close()

	for i, s := range r.Stages {
		b, err := json.Marshal(s.Outputs)
		if err != nil {
			return errors.Wrap(err, "failed to marshal stage outputs")
		}
		if _, err := stageStmt.Exec(r.ID, i, s.Stage, string(b), s.Error); err != nil {
			return errors.Wrapf(err, "failed to insert stage %s", s.Stage)
		}
	}

	warnStmt, err := tx.Prepare(insertWarningSQL)
	if err != nil {
		return errors.Wrap(err, "failed to prepare warning insert statement")
	}
	defer warnStmt.Close()

	for i, w := range r.Warnings {
		if _, err := warnStmt.Exec(r.ID, i, w.Stage, w.Artifact, w.Column, w.Kind, w.Message); err != nil {
			return errors.Wrapf(err, "failed to insert warning %d", i)
		}
	}
	return nil
}

// ListRuns returns the most recent runs without their stages and warnings.
func ListRuns(db *sql.DB, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = RunLimitDefault
	}

	rows, err := db.Query(selectRunsSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate runs")
	}
	return list, nil
}

// GetRun returns the run with its stages and warnings.
func GetRun(db *sql.DB, id string) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if id == "" {
		return nil, errors.New("run id required")
	}

	r, err := scanRun(db.QueryRow(selectRunSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrRunNotFound, "id: %s", id)
		}
		return nil, err
	}

	if r.Stages, err = getStages(db, id); err != nil {
		return nil, err
	}
	if r.Warnings, err = getWarnings(db, id); err != nil {
		return nil, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r       Run
		created string
	)
	if err := s.Scan(&r.ID, &r.Input, &r.State, &r.Rows, &r.Error, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan run")
	}

	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid run time: %s", created)
	}
	r.CreatedAt = t
	return &r, nil
}

func getStages(db *sql.DB, id string) ([]*RunStage, error) {
	rows, err := db.Query(selectStagesSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query stages for run: %s", id)
	}
	defer rows.Close()

	var list []*RunStage
	for rows.Next() {
		var (
			s       RunStage
			outputs string
		)
		if err := rows.Scan(&s.Stage, &outputs, &s.Error); err != nil {
			return nil, errors.Wrap(err, "failed to scan stage")
		}
		if err := json.Unmarshal([]byte(outputs), &s.Outputs); err != nil {
			return nil, errors.Wrapf(err, "invalid outputs for stage %s", s.Stage)
		}
		list = append(list, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate stages")
	}
	return list, nil
}

func getWarnings(db *sql.DB, id string) ([]*RunWarning, error) {
	rows, err := db.Query(selectWarningsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query warnings for run: %s", id)
	}
	defer rows.Close()

	var list []*RunWarning
	for rows.Next() {
		var w RunWarning
		if err := rows.Scan(&w.Stage, &w.Artifact, &w.Column, &w.Kind, &w.Message); err != nil {
			return nil, errors.Wrap(err, "failed to scan warning")
		}
		list = append(list, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate warnings")
	}
	return list, nil
}
