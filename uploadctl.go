package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/SPAIA/xiao-sense/pkg/uploader"
)

// UploadControl exposes the scheduler's manual controls.
type UploadControl struct {
	Scheduler *uploader.Scheduler
}

func (u *UploadControl) handleUploadNow(w http.ResponseWriter, r *http.Request) {
	u.Scheduler.UploadNow()
	w.WriteHeader(http.StatusAccepted)
}

func (u *UploadControl) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntervalSeconds int `json:"interval_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.IntervalSeconds < 0 {
		http.Error(w, "interval must be zero or positive", http.StatusBadRequest)
		return
	}

	u.Scheduler.SetInterval(time.Duration(req.IntervalSeconds) * time.Second)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(u.Scheduler.Snapshot())
}
