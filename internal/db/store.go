package db

import (
	"context"

	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/statistics"
)

// Store follows the session record stream and keeps the tables current: a
// session row per session, a lap per split or interval and a row per stroke.
type Store struct {
	db         *DB
	sessionID  string
	lap        int
	step       int
	lastStroke int
	last       statistics.Metrics
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// SessionID returns the id of the session being stored, if any.
func (s *Store) SessionID() (string, bool) {
	return s.sessionID, s.sessionID != ""
}

// Run stores records until ctx is done or metrics is closed.
func (s *Store) Run(ctx context.Context, metrics <-chan statistics.Metrics) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-metrics:
			if !ok {
				return nil
			}
			if err := s.Record(rec); err != nil {
				monitoring.Errorf("db: %v", err)
			}
		}
	}
}

// Record applies one session record.
func (s *Store) Record(rec statistics.Metrics) error {
	ctx := rec.Context
	if ctx.IsPauseStart && rec.SessionStatus == "WaitingForStart" {
		// reset: the session ends where it was last seen
		err := s.finish(s.last)
		s.sessionID = ""
		return err
	}

	if ctx.IsSessionStart && s.sessionID == "" {
		id, err := s.db.CreateSession(rec)
		if err != nil {
			return err
		}
		s.sessionID, s.lap, s.step, s.lastStroke = id, 0, rec.WorkoutStepNumber, 0
		monitoring.Infof("db: storing session %s", id)
		if err := s.db.OpenLap(id, s.lap, rec); err != nil {
			return err
		}
	}
	if s.sessionID == "" {
		return nil
	}
	s.last = rec

	// a resume within the same workout step continues its lap
	newStep := ctx.IsIntervalStart && rec.WorkoutStepNumber != s.step
	if !ctx.IsSessionStart && (ctx.IsSplitEnd || newStep) {
		s.step = rec.WorkoutStepNumber
		if err := s.db.CloseLap(s.sessionID, s.lap, rec); err != nil {
			return err
		}
		s.lap++
		if err := s.db.OpenLap(s.sessionID, s.lap, rec); err != nil {
			return err
		}
	}

	if ctx.IsMoving && ctx.IsDriveStart && rec.CycleDuration != nil && rec.TotalNumberOfStrokes > s.lastStroke {
		if err := s.db.RecordStroke(StrokeFromMetrics(s.sessionID, rec)); err != nil {
			return err
		}
		s.lastStroke = rec.TotalNumberOfStrokes
	}

	switch {
	case ctx.IsSessionStop:
		return s.finish(rec)
	case ctx.IsPauseStart:
		return s.db.UpdateSession(s.sessionID, rec, false)
	}
	return nil
}

func (s *Store) finish(rec statistics.Metrics) error {
	if s.sessionID == "" {
		return nil
	}
	if err := s.db.CloseLap(s.sessionID, s.lap, rec); err != nil {
		return err
	}
	return s.db.UpdateSession(s.sessionID, rec, true)
}
