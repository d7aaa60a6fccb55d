// Package testutil provides shared test fixtures: a simulated rowing session
// and small HTTP helpers.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/erg.report/internal/config"
	"github.com/banshee-data/erg.report/internal/ergsim"
	"github.com/banshee-data/erg.report/internal/session"
	"github.com/banshee-data/erg.report/internal/statistics"
	"github.com/banshee-data/erg.report/internal/timeutil"
	"github.com/banshee-data/erg.report/internal/workout"
)

// Epoch is the wall clock start of every simulated session.
var Epoch = time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)

// SteadyStroke is a 25 spm stroke of a moderate piece.
var SteadyStroke = ergsim.Stroke{DriveTime: 0.8, RecoveryTime: 1.6, PeakTorque: 5.7}

// Concept2 returns the validated Concept2 RowErg settings.
func Concept2(t testing.TB) config.RowerSettings {
	t.Helper()
	s, ok := config.Profile("concept2_rowerg")
	require.True(t, ok)
	return s
}

// Rowed is a simulated session: every impulse fed and every record emitted.
type Rowed struct {
	Deltas  []float64
	Records []statistics.Metrics
}

// Strokes returns the records that start a counted stroke.
func (r Rowed) Strokes() []statistics.Metrics {
	var out []statistics.Metrics
	for _, rec := range r.Records {
		if rec.Context.IsMoving && rec.Context.IsDriveStart && rec.CycleDuration != nil {
			out = append(out, rec)
		}
	}
	return out
}

// RowPlan rows plan on a simulated Concept2 at SteadyStroke until the session
// stops.
func RowPlan(t testing.TB, plan []workout.Interval) Rowed {
	t.Helper()
	s := Concept2(t)
	m := session.NewManager(s, session.Options{Averaging: 4, Clock: timeutil.NewMockClock(Epoch), SubscriberBuffer: 1 << 16})
	_, ch := m.Subscribe()
	m.HandleCommand(session.Command{Name: session.CmdUpdateIntervalSettings, Intervals: plan})

	var out Rowed
	sim := ergsim.New(s.FlywheelInertia, 100e-6, s.NumOfImpulsesPerRevolution)
	sim.SetAngularVelocity(120)
	feed := func(deltas []float64) {
		for _, dt := range deltas {
			out.Deltas = append(out.Deltas, dt)
			m.HandleRotationImpulse(dt)
		}
	}
	stopped := func() bool { return m.Last().SessionStatus == "Stopped" }

	feed(sim.Coast(0.3))
	for i := 0; i < 60 && !stopped(); i++ {
		feed(sim.Row(SteadyStroke))
	}
	require.True(t, stopped(), "the plan did not finish")

	for len(ch) > 0 {
		out.Records = append(out.Records, <-ch)
	}
	return out
}

// SplitPiece is a 60 m piece with 20 m splits.
func SplitPiece() []workout.Interval {
	return []workout.Interval{{
		Type:           workout.Distance,
		TargetDistance: 60,
		Split:          &workout.Split{Type: workout.Distance, TargetDistance: 20},
	}}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Serve runs one request against h and returns the recorded response.
// Requests come from loopback so debug routes accept them.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
