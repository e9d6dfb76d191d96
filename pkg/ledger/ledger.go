// Package ledger keeps a SQLite history of preprocessing and validation runs,
// so that a split can be traced back to its seed, ratio and per-file outcomes.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/menta2k/yolo-prep/pkg/report"
	"github.com/menta2k/yolo-prep/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is fixed-width so that stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run modes
const (
	ModePreprocess = "preprocess"
	ModeValidate   = "validate"
)

// Run is one recorded invocation
type Run struct {
	ID         string       `json:"id"`
	Mode       string       `json:"mode"`
	Source     string       `json:"source"`
	Output     string       `json:"output,omitempty"`
	Seed       int64        `json:"seed"`
	TrainRatio float64      `json:"train_ratio"`
	Tally      report.Tally `json:"tally"`
	Passed     bool         `json:"passed"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Files      []File       `json:"files,omitempty"`
}

// File is the stored outcome of one pair
type File struct {
	Subset string   `json:"subset"`
	Image  string   `json:"image"`
	Label  string   `json:"label,omitempty"`
	Valid  bool     `json:"valid"`
	Kind   string   `json:"kind,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// FilesFromReport converts a validation report's outcomes
func FilesFromReport(r *report.ValidationReport) []File {
	if r == nil {
		return nil
	}
	out := make([]File, 0, len(r.Outcomes)+len(r.Missing))
	for _, o := range r.Outcomes {
		f := File{Subset: r.Subset, Image: o.Image, Label: o.Label, Valid: o.Valid, Errors: o.Errors}
		if o.Kind != 0 {
			f.Kind = o.Kind.String()
		}
		out = append(out, f)
	}
	for _, m := range r.Missing {
		out = append(out, File{Subset: r.Subset, Image: m, Kind: types.MissingLabelFile.String()})
	}
	return out
}

// Ledger is an open run history
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and applies pending migrations
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ledger")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure ledger")
	}

	l := &Ledger{db: db}
	if err := l.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to load migrations")
	}
	driver, err := sqlite.WithInstance(l.db, &sqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create sqlite driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migrate instance")
	}
	// m is not closed: that would close the shared *sql.DB

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration up failed")
	}
	version, _, _ := m.Version()
	log.Debug().Uint("version", version).Msg("ledger schema ready")
	return nil
}

// Close closes the underlying database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordRun stores run and its files in one transaction. An empty ID is
// replaced by a fresh UUID, which is returned.
func (l *Ledger) RecordRun(ctx context.Context, run *Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	t := run.Tally
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, mode, source, output, seed, train_ratio,
			total, valid, corrupted, invalid_labels, missing_labels, converted,
			train_count, val_count, passed, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Source, run.Output, run.Seed, run.TrainRatio,
		t.Total, t.Valid, t.CorruptedImages, t.InvalidLabels, t.MissingLabels, t.Converted,
		t.Train, t.Val, boolInt(run.Passed),
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", errors.Wrap(err, "failed to insert run")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_files (run_id, subset, image, label, valid, kind, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", errors.Wrap(err, "failed to prepare file insert")
	}
	defer stmt.Close()

	for _, f := range run.Files {
		errs := f.Errors
		if errs == nil {
			errs = []string{}
		}
		encoded, err := json.Marshal(errs)
		if err != nil {
			return "", errors.Wrap(err, "failed to encode file errors")
		}
		if _, err := stmt.ExecContext(ctx, run.ID, f.Subset, f.Image, f.Label, boolInt(f.Valid), f.Kind, string(encoded)); err != nil {
			return "", errors.Wrapf(err, "failed to insert file %s", f.Image)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "failed to commit run")
	}
	return run.ID, nil
}

// Runs lists recorded runs newest first, without their files. limit <= 0 lists all.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT run_id, mode, source, output, seed, train_ratio,
			total, valid, corrupted, invalid_labels, missing_labels, converted,
			train_count, val_count, passed, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var passed int
		var started, finished string
		if err := rows.Scan(
			&r.ID, &r.Mode, &r.Source, &r.Output, &r.Seed, &r.TrainRatio,
			&r.Tally.Total, &r.Tally.Valid, &r.Tally.CorruptedImages, &r.Tally.InvalidLabels,
			&r.Tally.MissingLabels, &r.Tally.Converted, &r.Tally.Train, &r.Tally.Val,
			&passed, &started, &finished,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		r.Passed = passed != 0
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "failed to read runs")
}

// Files returns the stored file outcomes of a run in insertion order
func (l *Ledger) Files(ctx context.Context, runID string) ([]File, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT subset, image, label, valid, kind, errors
		FROM run_files WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run files")
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		var valid int
		var encoded string
		if err := rows.Scan(&f.Subset, &f.Image, &f.Label, &valid, &f.Kind, &encoded); err != nil {
			return nil, errors.Wrap(err, "failed to scan run file")
		}
		f.Valid = valid != 0
		if err := json.Unmarshal([]byte(encoded), &f.Errors); err != nil {
			return nil, errors.Wrap(err, "failed to decode file errors")
		}
		if len(f.Errors) == 0 {
			f.Errors = nil
		}
		files = append(files, f)
	}
	return files, errors.Wrap(rows.Err(), "failed to read run files")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
