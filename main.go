package main

import (
	"flag"
	"net/http"
	"path/filepath"
	"time"

	"github.com/SPAIA/xiao-sense/pkg/broker"
	"github.com/SPAIA/xiao-sense/pkg/camera"
	"github.com/SPAIA/xiao-sense/pkg/detector"
	h "github.com/SPAIA/xiao-sense/pkg/helper"
	"github.com/SPAIA/xiao-sense/pkg/storage"
	"github.com/SPAIA/xiao-sense/pkg/trapconfig"
	"github.com/SPAIA/xiao-sense/pkg/uploader"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// captureDir narrows DiskStore to the scheduler's view of the world: the
// one directory holding captures and daily logs.
type captureDir struct {
	store *storage.DiskStore
}

func (c captureDir) ListDir() ([]string, error) { return c.store.ListDir(c.store.Dir()) }
func (c captureDir) Remove(path string) error   { return c.store.Remove(path) }

func pollLoop(trap *camera.Trap, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		motion, ts := trap.PollMotion()
		if !motion {
			continue
		}
		if err := trap.Capture(ts); err != nil {
			log.Error("capture: ", err)
		}
	}
}

func main() {
	cfg := trapconfig.Load()

	addr := flag.String("addr", cfg.HTTPAddr, "HTTP listen address")
	uploadURL := flag.String("upload-url", cfg.UploadURL, "Base URL of the collection endpoint")
	mount := flag.String("mount", cfg.MountPath, "Storage mount point")
	flag.Parse()

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := storage.NewDiskStore(*mount, uint64(cfg.LowWaterMB)*1024*1024)
	h.CheckError(err)
	index, err := storage.OpenIndex(filepath.Join(store.Dir(), "detections.db"))
	h.CheckError(err)
	defer index.Close()

	det := detector.New(detector.Config{
		Threshold:        float64(cfg.Threshold),
		MinChangedPixels: cfg.MinChangedPixels,
		MinComponentSize: cfg.MinComponentSize,
		MaxComponents:    cfg.MaxComponents,
		MinArea:          cfg.MinArea,
		MaxArea:          cfg.MaxArea,
		FrameInitCount:   cfg.FrameInitCount,
	})

	// start broadcaster and upload worker
	caster := broker.New()
	go caster.Start()

	link := newManualLink()
	sched := uploader.New(captureDir{store}, newHTTPTransport(*uploadURL), link, index,
		uploader.Policy{Interval: time.Duration(cfg.UploadIntervalSec) * time.Second})
	go sched.Run()

	logger := storage.NewLogger(store, fixedClimate{}, index, sched, caster, store.Dir())
	go logger.Run(det.Events())

	// bring the sensor up in monitoring mode and start the trap
	lowMode := camera.Mode{Res: camera.ResQVGA, Fmt: camera.FormatGrayscale}
	highMode := camera.Mode{Res: camera.ResXGA, Fmt: camera.FormatJPEG}
	sensor := newSimSensor()
	h.CheckError(sensor.Power(true))
	h.CheckError(sensor.Init(lowMode))

	trap := camera.New(sensor, det, store, sched, lowMode, highMode, store.Dir())
	go pollLoop(trap, time.Duration(cfg.PollIntervalMs)*time.Millisecond)

	// control surface
	captures := &Captures{Store: store, Index: index}
	status := &Status{Trap: trap, Scheduler: sched, Index: index, Link: link}
	uploadCtl := &UploadControl{Scheduler: sched}

	r := mux.NewRouter()
	r.HandleFunc("/api/status", status.handleStatus).Methods("GET")
	r.HandleFunc("/api/captures", captures.handleList).Methods("GET")
	r.HandleFunc("/api/captures/{file}", captures.handleDelete).Methods("DELETE")
	r.HandleFunc("/api/detections", captures.handleDetections).Methods("GET")
	r.HandleFunc("/api/capture", func(w http.ResponseWriter, req *http.Request) {
		if err := trap.CaptureNow(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}).Methods("POST")
	r.HandleFunc("/api/upload/now", uploadCtl.handleUploadNow).Methods("POST")
	r.HandleFunc("/api/upload/interval", uploadCtl.handleSetInterval).Methods("PUT")
	r.Handle("/ws", wsHandler(caster))

	log.Info("listening on ", *addr)
	h.CheckError(http.ListenAndServe(*addr, r))
}
