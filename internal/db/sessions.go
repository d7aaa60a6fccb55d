package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/erg.report/internal/statistics"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one row of the sessions table. Totals are updated at every
// pause and at the stop.
type Session struct {
	ID          string     `json:"session_id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	SessionType string     `json:"session_type"`
	Status      string     `json:"status"`
	MovingTime  float64    `json:"moving_time"`
	Distance    float64    `json:"distance"`
	Strokes     int        `json:"strokes"`
	Calories    float64    `json:"calories"`
	DragFactor  *float64   `json:"drag_factor,omitempty"`
	Recording   *string    `json:"recording,omitempty"`
}

// Lap is a split or interval of a session.
type Lap struct {
	SessionID     string    `json:"session_id"`
	Number        int       `json:"lap_number"`
	WorkoutStep   int       `json:"workout_step"`
	Type          string    `json:"interval_type"`
	StartedAt     time.Time `json:"started_at"`
	StartTime     float64   `json:"start_time"`
	StartDistance float64   `json:"start_distance"`
	EndTime       *float64  `json:"end_time,omitempty"`
	EndDistance   *float64  `json:"end_distance,omitempty"`
}

// Stroke is the per-stroke summary stored for charts and history.
type Stroke struct {
	SessionID        string    `json:"session_id"`
	Number           int       `json:"stroke_number"`
	RecordedAt       time.Time `json:"recorded_at"`
	MovingTime       float64   `json:"moving_time"`
	Distance         float64   `json:"distance"`
	CycleDuration    *float64  `json:"cycle_duration,omitempty"`
	StrokeRate       *float64  `json:"stroke_rate,omitempty"`
	CycleDistance    *float64  `json:"cycle_distance,omitempty"`
	LinearVelocity   *float64  `json:"linear_velocity,omitempty"`
	Pace             *float64  `json:"pace,omitempty"`
	Power            *float64  `json:"power,omitempty"`
	DriveDuration    *float64  `json:"drive_duration,omitempty"`
	DriveLength      *float64  `json:"drive_length,omitempty"`
	RecoveryDuration *float64  `json:"recovery_duration,omitempty"`
	PeakForce        *float64  `json:"peak_force,omitempty"`
	AverageForce     *float64  `json:"average_force,omitempty"`
	DragFactor       *float64  `json:"drag_factor,omitempty"`
	ForceCurve       []float64 `json:"force_curve,omitempty"`
}

// StrokeFromMetrics extracts the stored stroke summary from a drive start
// record.
func StrokeFromMetrics(sessionID string, m statistics.Metrics) Stroke {
	return Stroke{
		SessionID:        sessionID,
		Number:           m.TotalNumberOfStrokes,
		RecordedAt:       m.Timestamp,
		MovingTime:       m.TotalMovingTime,
		Distance:         m.TotalLinearDistance,
		CycleDuration:    m.CycleDuration,
		StrokeRate:       m.CycleStrokeRate,
		CycleDistance:    m.CycleDistance,
		LinearVelocity:   m.CycleLinearVelocity,
		Pace:             m.CyclePace,
		Power:            m.CyclePower,
		DriveDuration:    m.DriveDuration,
		DriveLength:      m.DriveLength,
		RecoveryDuration: m.RecoveryDuration,
		PeakForce:        m.DrivePeakHandleForce,
		AverageForce:     m.DriveAverageHandleForce,
		DragFactor:       m.DragFactor,
		ForceCurve:       m.DriveHandleForceCurve,
	}
}

// CreateSession inserts a session started by rec and returns its new id.
func (db *DB) CreateSession(rec statistics.Metrics) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO sessions (session_id, started_at, session_type, status)
		VALUES (?, ?, ?, ?)`,
		id, unixSeconds(rec.Timestamp), rec.SessionType, rec.SessionStatus)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// UpdateSession stores the totals of rec. ended is set on the final update.
func (db *DB) UpdateSession(id string, rec statistics.Metrics, ended bool) error {
	var endedAt any
	if ended {
		endedAt = unixSeconds(rec.Timestamp)
	}
	res, err := db.Exec(`UPDATE sessions SET
			ended_at = COALESCE(?, ended_at), status = ?, moving_time = ?, distance = ?,
			strokes = ?, calories = ?, drag_factor = COALESCE(?, drag_factor)
		WHERE session_id = ?`,
		endedAt, rec.SessionStatus, rec.TotalMovingTime, rec.TotalLinearDistance,
		rec.TotalNumberOfStrokes, rec.TotalCalories, arg(rec.DragFactor), id)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// SetSessionRecording links a session to the base path of its recording files.
func (db *DB) SetSessionRecording(id, base string) error {
	if _, err := db.Exec(`UPDATE sessions SET recording = ? WHERE session_id = ?`, base, id); err != nil {
		return fmt.Errorf("failed to set recording of %s: %w", id, err)
	}
	return nil
}

// OpenLap starts lap number n at rec.
func (db *DB) OpenLap(id string, n int, rec statistics.Metrics) error {
	_, err := db.Exec(`INSERT INTO intervals (session_id, lap_number, workout_step, interval_type,
			started_at, start_time, start_distance)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, n, rec.WorkoutStepNumber, rec.SessionType,
		unixSeconds(rec.Timestamp), rec.TotalMovingTime, rec.TotalLinearDistance)
	if err != nil {
		return fmt.Errorf("failed to open lap %d: %w", n, err)
	}
	return nil
}

// CloseLap ends lap number n at rec.
func (db *DB) CloseLap(id string, n int, rec statistics.Metrics) error {
	_, err := db.Exec(`UPDATE intervals SET end_time = ?, end_distance = ?
		WHERE session_id = ? AND lap_number = ?`,
		rec.TotalMovingTime, rec.TotalLinearDistance, id, n)
	if err != nil {
		return fmt.Errorf("failed to close lap %d: %w", n, err)
	}
	return nil
}

func (db *DB) RecordStroke(s Stroke) error {
	var curve any
	if len(s.ForceCurve) > 0 {
		data, err := json.Marshal(s.ForceCurve)
		if err != nil {
			return fmt.Errorf("failed to encode force curve: %w", err)
		}
		curve = string(data)
	}
	_, err := db.Exec(`INSERT INTO strokes (
			session_id, stroke_number, recorded_at, moving_time, distance,
			cycle_duration, stroke_rate, cycle_distance, linear_velocity, pace, power,
			drive_duration, drive_length, recovery_duration, peak_force, average_force,
			drag_factor, force_curve
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Number, unixSeconds(s.RecordedAt), s.MovingTime, s.Distance,
		arg(s.CycleDuration), arg(s.StrokeRate), arg(s.CycleDistance), arg(s.LinearVelocity),
		arg(s.Pace), arg(s.Power), arg(s.DriveDuration), arg(s.DriveLength),
		arg(s.RecoveryDuration), arg(s.PeakForce), arg(s.AverageForce), arg(s.DragFactor), curve)
	if err != nil {
		return fmt.Errorf("failed to record stroke %d: %w", s.Number, err)
	}
	return nil
}

const sessionColumns = `session_id, started_at, ended_at, session_type, status, moving_time,
	distance, strokes, calories, drag_factor, recording`

// Sessions returns the most recent sessions first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions
		ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (db *DB) Session(id string) (Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return s, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		s         Session
		startedAt float64
		endedAt   sql.NullFloat64
		drag      sql.NullFloat64
		recording sql.NullString
	)
	err := row.Scan(&s.ID, &startedAt, &endedAt, &s.SessionType, &s.Status, &s.MovingTime,
		&s.Distance, &s.Strokes, &s.Calories, &drag, &recording)
	if err != nil {
		return Session{}, err
	}
	s.StartedAt = fromUnixSeconds(startedAt)
	if endedAt.Valid {
		t := fromUnixSeconds(endedAt.Float64)
		s.EndedAt = &t
	}
	s.DragFactor = nullable(drag)
	if recording.Valid {
		s.Recording = &recording.String
	}
	return s, nil
}

// Laps returns the laps of a session in order.
func (db *DB) Laps(id string) ([]Lap, error) {
	rows, err := db.Query(`SELECT session_id, lap_number, workout_step, interval_type, started_at,
			start_time, start_distance, end_time, end_distance
		FROM intervals WHERE session_id = ? ORDER BY lap_number`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list laps: %w", err)
	}
	defer rows.Close()

	var laps []Lap
	for rows.Next() {
		var (
			l                Lap
			startedAt        float64
			endTime, endDist sql.NullFloat64
		)
		if err := rows.Scan(&l.SessionID, &l.Number, &l.WorkoutStep, &l.Type, &startedAt,
			&l.StartTime, &l.StartDistance, &endTime, &endDist); err != nil {
			return nil, err
		}
		l.StartedAt = fromUnixSeconds(startedAt)
		l.EndTime = nullable(endTime)
		l.EndDistance = nullable(endDist)
		laps = append(laps, l)
	}
	return laps, rows.Err()
}

// Strokes returns the strokes of a session in order.
func (db *DB) Strokes(id string) ([]Stroke, error) {
	rows, err := db.Query(`SELECT session_id, stroke_number, recorded_at, moving_time, distance,
			cycle_duration, stroke_rate, cycle_distance, linear_velocity, pace, power,
			drive_duration, drive_length, recovery_duration, peak_force, average_force,
			drag_factor, force_curve
		FROM strokes WHERE session_id = ? ORDER BY stroke_number`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list strokes: %w", err)
	}
	defer rows.Close()

	var strokes []Stroke
	for rows.Next() {
		var (
			s          Stroke
			recordedAt float64
			opt        [12]sql.NullFloat64
			curve      sql.NullString
		)
		if err := rows.Scan(&s.SessionID, &s.Number, &recordedAt, &s.MovingTime, &s.Distance,
			&opt[0], &opt[1], &opt[2], &opt[3], &opt[4], &opt[5],
			&opt[6], &opt[7], &opt[8], &opt[9], &opt[10], &opt[11], &curve); err != nil {
			return nil, err
		}
		s.RecordedAt = fromUnixSeconds(recordedAt)
		for i, dst := range []**float64{
			&s.CycleDuration, &s.StrokeRate, &s.CycleDistance, &s.LinearVelocity, &s.Pace, &s.Power,
			&s.DriveDuration, &s.DriveLength, &s.RecoveryDuration, &s.PeakForce, &s.AverageForce,
			&s.DragFactor,
		} {
			*dst = nullable(opt[i])
		}
		if curve.Valid {
			if err := json.Unmarshal([]byte(curve.String), &s.ForceCurve); err != nil {
				return nil, fmt.Errorf("stroke %d has a corrupt force curve: %w", s.Number, err)
			}
		}
		strokes = append(strokes, s)
	}
	return strokes, rows.Err()
}

// DeleteSession removes a session with its laps and strokes.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// arg passes an optional value as SQL NULL when unset.
func arg(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}
