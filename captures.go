package main

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SPAIA/xiao-sense/pkg/storage"

	"github.com/gorilla/mux"
)

// Captures serves the on-device capture directory and detection index.
type Captures struct {
	Store *storage.DiskStore
	Index *storage.Index
}

func (c *Captures) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := c.Store.ListDir(c.Store.Dir())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".jpg") {
			names = append(names, filepath.Base(f))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}

func (c *Captures) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["file"]
	if name == "" || strings.ContainsAny(name, "/\\") || name == ".." {
		http.Error(w, "bad file name", http.StatusBadRequest)
		return
	}

	path := filepath.Join(c.Store.Dir(), name)
	if !c.Store.Exists(path) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := c.Store.Remove(path); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Captures) handleDetections(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	detections, err := c.Index.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if detections == nil {
		detections = []storage.IndexedDetection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detections)
}
