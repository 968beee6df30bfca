package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskdeck/agentexec/pkg/models"
)

// RunStatus represents the journaled state of a worker invocation.
type RunStatus string

const (
	// RunRunning means the process was spawned and no terminal state has
	// been recorded.
	RunRunning RunStatus = "running"
	// RunCompleted means the process exited zero.
	RunCompleted RunStatus = "completed"
	// RunFailed means the process exited non-zero.
	RunFailed RunStatus = "failed"
	// RunKilled means the operator deliberately terminated the process.
	RunKilled RunStatus = "killed"
	// RunInterrupted means the recovery pass found the process dead while
	// the row still said running.
	RunInterrupted RunStatus = "interrupted"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunCompleted, RunFailed, RunKilled, RunInterrupted:
		return true
	default:
		return false
	}
}

// Run is one journaled worker invocation. ID is the spawn generation token.
type Run struct {
	ID            string                `json:"id"`
	TaskID        string                `json:"task_id"`
	ProcessType   models.ProcessType    `json:"process_type"`
	ProfileID     string                `json:"profile_id,omitempty"`
	PID           int                   `json:"pid"`
	WorkDir       string                `json:"work_dir,omitempty"`
	Args          []string              `json:"args,omitempty"`
	Status        RunStatus             `json:"status"`
	Phase         models.ExecutionPhase `json:"phase"`
	Progress      int                   `json:"progress"`
	ExitCode      *int                  `json:"exit_code,omitempty"`
	FailureKind   models.FailureKind    `json:"failure_kind,omitempty"`
	FailureDetail string                `json:"failure_detail,omitempty"`
	SwappedTo     string                `json:"swapped_to,omitempty"`
	StartedAt     time.Time             `json:"started_at"`
	EndedAt       *time.Time            `json:"ended_at,omitempty"`
}

// Finish carries the terminal fields recorded when a run ends.
type Finish struct {
	Status        RunStatus
	ExitCode      *int
	FinalPhase    models.ExecutionPhase
	FailureKind   models.FailureKind
	FailureDetail string
	SwappedTo     string
	EndedAt       time.Time
}

const runColumns = `id, task_id, process_type, profile_id, pid, work_dir, args, status, phase,
	progress, exit_code, failure_kind, failure_detail, swapped_to, started_at, ended_at`

// CreateRun inserts a new run row in the running state.
func (s *Store) CreateRun(r *Run) error {
	status := r.Status
	if status == "" {
		status = RunRunning
	}
	phase := r.Phase
	if phase == "" {
		phase = models.PhaseStarting
	}
	args, _ := json.Marshal(r.Args)

	_, err := s.exec(`
		INSERT INTO runs (id, task_id, process_type, profile_id, pid, work_dir, args, status, phase, progress, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.TaskID, string(r.ProcessType), r.ProfileID, r.PID, r.WorkDir, string(args),
		string(status), string(phase), r.Progress, formatTime(r.StartedAt))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by generation token.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.queryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// LatestRun retrieves the most recently started run for a task.
func (s *Store) LatestRun(taskID string) (*Run, error) {
	row := s.queryRow(`
		SELECT `+runColumns+` FROM runs
		WHERE task_id = ? ORDER BY started_at DESC, rowid DESC LIMIT 1
	`, taskID)

	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

// UpdateProgress records the reported phase and overall progress on a run.
// Only rows still marked running change; late reports after a finish are
// no-ops.
func (s *Store) UpdateProgress(id string, phase models.ExecutionPhase, progress int) error {
	_, err := s.exec(`
		UPDATE runs SET phase = ?, progress = ? WHERE id = ? AND status = ?
	`, string(phase), progress, id, string(RunRunning))
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// FinishRun records the terminal state on a run. Only rows still marked
// running change, so a finish can happen at most once per run. An empty
// FinalPhase keeps the last reported phase, which is what a killed run
// should show.
func (s *Store) FinishRun(id string, fin Finish) error {
	var exitCode any
	if fin.ExitCode != nil {
		exitCode = *fin.ExitCode
	}
	var endedAt any
	if !fin.EndedAt.IsZero() {
		endedAt = formatTime(fin.EndedAt)
	}

	_, err := s.exec(`
		UPDATE runs SET status = ?, exit_code = ?,
			phase = CASE WHEN ? = '' THEN phase ELSE ? END,
			failure_kind = ?, failure_detail = ?, swapped_to = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`, string(fin.Status), exitCode, string(fin.FinalPhase), string(fin.FinalPhase),
		string(fin.FailureKind), fin.FailureDetail, fin.SwappedTo, endedAt,
		id, string(RunRunning))
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// MarkInterrupted flags a specific run as interrupted. The recovery pass
// uses it for rows whose process turned out to be dead. Only rows still
// marked running change.
func (s *Store) MarkInterrupted(id string, endedAt time.Time) error {
	_, err := s.exec(`
		UPDATE runs SET status = ?, ended_at = ? WHERE id = ? AND status = ?
	`, string(RunInterrupted), formatTime(endedAt), id, string(RunRunning))
	if err != nil {
		return fmt.Errorf("mark run interrupted: %w", err)
	}
	return nil
}

// ListRuns lists all runs, optionally filtered by status, newest first.
func (s *Store) ListRuns(status *RunStatus) ([]Run, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = s.query(`
			SELECT `+runColumns+` FROM runs
			WHERE status = ? ORDER BY started_at DESC, rowid DESC
		`, string(*status))
	} else {
		rows, err = s.query(`
			SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListRecent lists the most recently started runs, newest first.
func (s *Store) ListRecent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.query(`
		SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// scanRun scans one run row via the given scan function.
func scanRun(scan func(dest ...any) error) (*Run, error) {
	var r Run
	var profileID, workDir, args, failureKind, failureDetail, swappedTo sql.NullString
	var pid, exitCode sql.NullInt64
	var startedAt string
	var endedAt sql.NullString

	err := scan(&r.ID, &r.TaskID, &r.ProcessType, &profileID, &pid, &workDir, &args,
		&r.Status, &r.Phase, &r.Progress, &exitCode, &failureKind,
		&failureDetail, &swappedTo, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}

	if profileID.Valid {
		r.ProfileID = profileID.String
	}
	if pid.Valid {
		r.PID = int(pid.Int64)
	}
	if workDir.Valid {
		r.WorkDir = workDir.String
	}
	if args.Valid {
		json.Unmarshal([]byte(args.String), &r.Args)
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		r.ExitCode = &code
	}
	if failureKind.Valid {
		r.FailureKind = models.FailureKind(failureKind.String)
	}
	if failureDetail.Valid {
		r.FailureDetail = failureDetail.String
	}
	if swappedTo.Valid {
		r.SwappedTo = swappedTo.String
	}
	r.StartedAt, _ = parseTime(startedAt)
	r.EndedAt = parseNullableTime(endedAt)
	return &r, nil
}

// collectRuns scans run rows into a slice.
func collectRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
