package storage

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/SPAIA/xiao-sense/pkg/detector"
)

const csvHeader = "timestamp,temperature,humidity,pressure,bboxes\n"

// UploadNotifier is told about updated log files.
type UploadNotifier interface {
	NotifyNewFile(path string) error
}

// Publisher fans detection payloads out to live listeners.
type Publisher interface {
	Publish(msg interface{})
}

// Logger is the persistence worker. It drains the detector's event channel,
// reads the climate sensors, appends the daily CSV log, records the
// detection in the index and notifies the upload scheduler.
type Logger struct {
	store    Store
	climate  Climate
	index    *Index
	notifier UploadNotifier
	caster   Publisher
	dir      string
	log      *logrus.Entry
}

// NewLogger wires a persistence worker. index, notifier and caster may be
// nil.
func NewLogger(store Store, climate Climate, index *Index, notifier UploadNotifier, caster Publisher, dir string) *Logger {
	return &Logger{
		store:    store,
		climate:  climate,
		index:    index,
		notifier: notifier,
		caster:   caster,
		dir:      dir,
		log:      logrus.WithField("component", "storage"),
	}
}

// Run consumes events until the channel closes. It is the single consumer
// of the detection sink.
func (l *Logger) Run(events <-chan detector.Event) {
	for ev := range events {
		if err := l.record(ev); err != nil {
			l.log.WithError(err).Error("detection record failed")
		}
		if l.caster != nil {
			l.caster.Publish(append([]byte(nil), ev.Payload...))
		}
	}
}

func (l *Logger) record(ev detector.Event) error {
	var temperature, humidity, pressure float64
	if l.climate != nil {
		var err error
		temperature, humidity, pressure, err = l.climate.Read()
		if err != nil {
			// Climate readings are best effort; the detection row still
			// gets written.
			l.log.WithError(err).Warn("climate read failed")
			temperature, humidity, pressure = 0, 0, 0
		}
	}

	path := l.CSVPath(ev)
	row := fmt.Sprintf("%d,%f,%f,%f,%s\n",
		ev.Timestamp.Unix(), temperature, humidity, pressure, ev.Payload)
	if !l.store.Exists(path) {
		row = csvHeader + row
		l.log.Infof("creating daily log %s", path)
	}
	if err := l.store.AppendFile(path, []byte(row)); err != nil {
		return err
	}

	if l.index != nil {
		image := fmt.Sprintf("%d.jpg", ev.Timestamp.Unix())
		if err := l.index.Insert(ev.ID, ev.Timestamp, string(ev.Payload), image); err != nil {
			l.log.WithError(err).Warn("index insert failed")
		}
	}

	if l.notifier != nil {
		if err := l.notifier.NotifyNewFile(path); err != nil {
			l.log.WithError(err).Warn("upload notification failed")
		}
	}
	return nil
}

// CSVPath names the daily log file an event belongs to, dd-mm-yy.
func (l *Logger) CSVPath(ev detector.Event) string {
	return filepath.Join(l.dir, ev.Timestamp.Format("02-01-06")+".csv")
}
