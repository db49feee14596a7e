package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trackfit/internal/effect"
	"github.com/banshee-data/trackfit/internal/fit"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("fit run not found")

// Run statuses.
const (
	StatusConverged = "converged"
	StatusFailed    = "failed"
)

// FitRun is the summary row of one fit.
type FitRun struct {
	RunID     string  `json:"run_id"`
	Label     string  `json:"label"`
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
	NHits     int     `json:"n_hits"`
	NDomains  int     `json:"n_domains"`
	Chi2      float64 `json:"chi2"`
	NDOF      int     `json:"ndof"`
	CreatedAt int64   `json:"created_at_ns"`
}

// Segment is one piece of a stored trajectory.
type Segment struct {
	Seq    int
	Range  trajectory.TimeRange
	Params trajectory.DVec
}

// HitRecord is the final state of one measurement.
type HitRecord struct {
	Seq       int
	Time      float64
	Doca      sql.NullFloat64
	Ambiguity effect.Ambiguity
	Active    bool
	Kind      effect.ResidualKind
	Residual  float64
	Variance  float64
}

// FitStore provides persistence for fit runs.
type FitStore struct {
	db *sql.DB
}

// NewFitStore creates a new FitStore.
func NewFitStore(db *sql.DB) *FitStore {
	return &FitStore{db: db}
}

// SaveResult stores a candidate result with its hits in one transaction and
// returns the stored summary. Failed fits are stored with their error and
// no history.
func (s *FitStore) SaveResult(label string, res fit.CandidateResult, hits []*effect.WireHit) (*FitRun, error) {
	run := &FitRun{
		RunID:    res.ID.String(),
		Label:    label,
		Status:   StatusConverged,
		NHits:    len(hits),
		NDomains: res.Domains,
	}
	if res.ID == uuid.Nil {
		run.RunID = ""
	}
	if res.Err != nil {
		run.Status = StatusFailed
		run.Error = res.Err.Error()
	} else {
		run.Chi2 = res.Result.Final.Chi2
		run.NDOF = res.Result.Final.NDOF
	}

	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := insertRun(tx, run); err != nil {
			return err
		}
		if res.Err == nil {
			if err := insertIterations(tx, run.RunID, res.Result.Iterations); err != nil {
				return err
			}
			if err := insertSegments(tx, run.RunID, res.Result.Trajectory); err != nil {
				return err
			}
			if err := insertHits(tx, run.RunID, hits); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("save fit run: %w", err)
	}
	return run, nil
}

// InsertRun persists a run summary. If RunID is empty, a UUID is generated.
func (s *FitStore) InsertRun(run *FitRun) error {
	return retryOnBusy(func() error { return insertRun(s.db, run) })
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertRun(db execer, run *FitRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	var errStr any
	if run.Error != "" {
		errStr = run.Error
	}
	_, err := db.Exec(`
		INSERT INTO fit_runs (run_id, label, status, error, n_hits, n_domains, chi2, ndof, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Label, run.Status, errStr, run.NHits, run.NDomains, run.Chi2, run.NDOF, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func insertIterations(db execer, runID string, iters []fit.IterationSummary) error {
	for _, it := range iters {
		_, err := db.Exec(`
			INSERT INTO fit_iterations (run_id, iteration, refresh_field, chi2, ndof, active_hits, segments)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, it.Iteration, it.RefreshField, it.Chi2, it.NDOF, it.ActiveHits, it.Segments,
		)
		if err != nil {
			return fmt.Errorf("insert iteration %d: %w", it.Iteration, err)
		}
	}
	return nil
}

func insertSegments(db execer, runID string, ptraj *trajectory.Piecewise) error {
	if ptraj == nil {
		return nil
	}
	for i, h := range ptraj.Pieces() {
		r := h.Range()
		_, err := db.Exec(`
			INSERT INTO fit_segments (run_id, seq, t_low, t_high, rad, lam, cx, cy, phi0, t0)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, r.Low, r.High, h.Rad(), h.Lam(), h.CX(), h.CY(), h.Phi0(), h.T0(),
		)
		if err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}
	return nil
}

func insertHits(db execer, runID string, hits []*effect.WireHit) error {
	for i, h := range hits {
		var doca any
		if d, err := h.Poca().Doca(); err == nil {
			doca = d
		}
		r := h.LastResidual()
		_, err := db.Exec(`
			INSERT INTO fit_hits (run_id, seq, time, doca, ambiguity, active, kind, residual, variance)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, h.Time(), doca, int(h.Ambiguity()), h.Active(), r.Kind.String(), r.Value, r.Variance,
		)
		if err != nil {
			return fmt.Errorf("insert hit %d: %w", i, err)
		}
	}
	return nil
}

// GetRun returns a single run by ID.
func (s *FitStore) GetRun(runID string) (*FitRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, label, status, error, n_hits, n_domains, chi2, ndof, created_at_ns
		FROM fit_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (s *FitStore) ListRuns(limit int) ([]*FitRun, error) {
	rows, err := s.db.Query(`
		SELECT run_id, label, status, error, n_hits, n_domains, chi2, ndof, created_at_ns
		FROM fit_runs ORDER BY created_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*FitRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*FitRun, error) {
	var run FitRun
	var errStr sql.NullString
	var chi2 sql.NullFloat64
	var ndof sql.NullInt64
	if err := row.Scan(&run.RunID, &run.Label, &run.Status, &errStr, &run.NHits, &run.NDomains, &chi2, &ndof, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Error = errStr.String
	run.Chi2 = chi2.Float64
	run.NDOF = int(ndof.Int64)
	return &run, nil
}

// Iterations returns the iteration history of a run in order.
func (s *FitStore) Iterations(runID string) ([]fit.IterationSummary, error) {
	rows, err := s.db.Query(`
		SELECT iteration, refresh_field, chi2, ndof, active_hits, segments
		FROM fit_iterations WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("query iterations: %w", err)
	}
	defer rows.Close()

	var out []fit.IterationSummary
	for rows.Next() {
		var it fit.IterationSummary
		if err := rows.Scan(&it.Iteration, &it.RefreshField, &it.Chi2, &it.NDOF, &it.ActiveHits, &it.Segments); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Segments returns the stored trajectory segments of a run in order.
func (s *FitStore) Segments(runID string) ([]Segment, error) {
	rows, err := s.db.Query(`
		SELECT seq, t_low, t_high, rad, lam, cx, cy, phi0, t0
		FROM fit_segments WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var sg Segment
		p := &sg.Params
		if err := rows.Scan(&sg.Seq, &sg.Range.Low, &sg.Range.High,
			&p[trajectory.Rad], &p[trajectory.Lam], &p[trajectory.CX], &p[trajectory.CY], &p[trajectory.Phi0], &p[trajectory.T0]); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// Hits returns the stored hit records of a run in order.
func (s *FitStore) Hits(runID string) ([]HitRecord, error) {
	rows, err := s.db.Query(`
		SELECT seq, time, doca, ambiguity, active, kind, residual, variance
		FROM fit_hits WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query hits: %w", err)
	}
	defer rows.Close()

	var out []HitRecord
	for rows.Next() {
		var h HitRecord
		var ambig int
		var kind string
		var resid, variance sql.NullFloat64
		if err := rows.Scan(&h.Seq, &h.Time, &h.Doca, &ambig, &h.Active, &kind, &resid, &variance); err != nil {
			return nil, err
		}
		h.Ambiguity = effect.Ambiguity(ambig)
		if kind == effect.TimeResidual.String() {
			h.Kind = effect.TimeResidual
		}
		h.Residual = resid.Float64
		h.Variance = variance.Float64
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything stored with it.
func (s *FitStore) DeleteRun(runID string) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`DELETE FROM fit_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil
	})
}
