package api

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/erg.report/internal/httputil"
	"github.com/banshee-data/erg.report/internal/security"
)

var recordingTypes = map[string]string{
	".fit": "application/vnd.ant.fit",
	".log": "text/plain; charset=utf-8",
	".csv": "text/csv; charset=utf-8",
	".gz":  "application/gzip",
}

func isRecording(name string) bool {
	_, ok := recordingTypes[filepath.Ext(name)]
	return ok
}

// listRecordings lists the recording files, newest session first. File names
// begin with the session start time so reverse name order is newest first.
func (s *Server) listRecordings(w http.ResponseWriter, r *http.Request) {
	if s.recordingDir == "" {
		httputil.ServiceUnavailable(w, "recording is disabled")
		return
	}
	names, err := s.fsys.ReadDir(s.recordingDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list recordings: %v", err))
		return
	}
	out := []string{}
	for _, name := range names {
		if isRecording(name) && !strings.HasPrefix(name, ".") {
			out = append(out, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	httputil.WriteJSONOK(w, out)
}

func (s *Server) downloadRecording(w http.ResponseWriter, r *http.Request) {
	if s.recordingDir == "" {
		httputil.ServiceUnavailable(w, "recording is disabled")
		return
	}
	name := r.PathValue("name")
	if !isRecording(name) {
		httputil.NotFound(w, "no such recording")
		return
	}
	path, err := security.ResolveInDirectory(s.recordingDir, name)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	f, err := s.fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httputil.NotFound(w, "no such recording")
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", recordingTypes[filepath.Ext(name)])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := io.Copy(w, f); err != nil {
		// headers are gone, nothing left to report to the client
		return
	}
}
