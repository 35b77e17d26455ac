package main

import (
	"encoding/json"
	"net/http"

	"github.com/SPAIA/xiao-sense/pkg/camera"
	"github.com/SPAIA/xiao-sense/pkg/storage"
	"github.com/SPAIA/xiao-sense/pkg/uploader"
)

// Status reports trap state, detection counts and the upload policy.
type Status struct {
	Trap      *camera.Trap
	Scheduler *uploader.Scheduler
	Index     *storage.Index
	Link      *manualLink
}

func (s *Status) handleStatus(w http.ResponseWriter, r *http.Request) {
	var settings struct {
		State      string        `json:"state"`
		Detections int           `json:"detections"`
		LinkUp     bool          `json:"linkUp"`
		Upload     uploader.View `json:"upload"`
	}

	settings.State = s.Trap.State().String()
	settings.LinkUp = s.Link.Connected()
	settings.Upload = s.Scheduler.Snapshot()
	if n, err := s.Index.Count(); err == nil {
		settings.Detections = n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}
