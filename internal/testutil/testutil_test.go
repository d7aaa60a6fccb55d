package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowPlan(t *testing.T) {
	rowed := RowPlan(t, SplitPiece())
	require.NotEmpty(t, rowed.Deltas)
	require.NotEmpty(t, rowed.Records)

	last := rowed.Records[len(rowed.Records)-1]
	assert.Equal(t, "Stopped", last.SessionStatus)
	assert.NotEmpty(t, rowed.Strokes())
	for _, s := range rowed.Strokes() {
		assert.True(t, s.Context.IsDriveStart)
	}
}

func TestAssertStatusCode(t *testing.T) {
	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusOK)
	assert.False(t, fakeT.Failed())
}

func TestServe(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.RemoteAddr))
	})
	rec := Serve(h, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, "127.0.0.1:1234", rec.Body.String())
}
