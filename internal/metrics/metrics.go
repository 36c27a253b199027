// Package metrics exports run outcomes in the node_exporter textfile format.
//
// Every series carries an operation label and each operation rewrites its
// own file, so a restore never clobbers what the last backup reported.
package metrics

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"github.com/raoulx24/dir-archiver/internal/apperr"
)

const namespace = "dir_archiver"

// Outcome is what one orchestrator run reports.
type Outcome struct {
	Operation   string // backup, restore, verify
	Start, End  time.Time
	Err         error
	ArchiveSize int64
	Kept        int
	Deleted     int
	Archives    int // archives in the destination after the run
	Failed      int // archives that failed verification
}

// Recorder holds the gauges for one process.
type Recorder struct {
	path string
	reg  *prometheus.Registry
	ops  map[string]bool
	// gauges by fully qualified name, for seeding from an earlier textfile
	byName map[string]*prometheus.GaugeVec

	lastRun     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	success     *prometheus.GaugeVec
	exitCode    *prometheus.GaugeVec
	duration    *prometheus.GaugeVec
	archiveSize *prometheus.GaugeVec
	kept        *prometheus.GaugeVec
	deleted     *prometheus.GaugeVec
	archives    *prometheus.GaugeVec
	failed      *prometheus.GaugeVec
}

// New returns a Recorder writing next to path. An empty path disables
// writing while still recording.
func New(path string) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	byName := map[string]*prometheus.GaugeVec{}
	gauge := func(name, help string) *prometheus.GaugeVec {
		g := f.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, []string{"operation"})
		byName[prometheus.BuildFQName(namespace, "", name)] = g
		return g
	}

	return &Recorder{
		path:        path,
		reg:         reg,
		ops:         map[string]bool{},
		byName:      byName,
		lastRun:     gauge("last_run_timestamp_seconds", "Unix time the last run finished."),
		lastSuccess: gauge("last_success_timestamp_seconds", "Unix time the last successful run finished."),
		success:     gauge("last_run_success", "1 if the last run succeeded, 0 otherwise."),
		exitCode:    gauge("last_run_exit_code", "Process exit code the last run mapped to."),
		duration:    gauge("last_run_duration_seconds", "Wall time of the last run."),
		archiveSize: gauge("last_archive_size_bytes", "Size of the archive written by the last backup."),
		kept:        gauge("rotation_kept", "Archives kept by the last rotation."),
		deleted:     gauge("rotation_deleted", "Archives deleted by the last rotation."),
		archives:    gauge("archives", "Archives present in the destination."),
		failed:      gauge("verify_failures", "Archives that failed the last verification pass."),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Observe records o. The first observation of an operation starts from the
// values in its existing textfile, so series a failed run does not touch
// (last success, archive size, rotation counts) carry over.
func (r *Recorder) Observe(o Outcome) {
	op := o.Operation
	if !r.ops[op] {
		_ = r.seed(op)
	}
	r.ops[op] = true

	r.lastRun.WithLabelValues(op).Set(float64(o.End.Unix()))
	r.duration.WithLabelValues(op).Set(o.End.Sub(o.Start).Seconds())
	r.exitCode.WithLabelValues(op).Set(float64(apperr.ExitCode(o.Err)))
	if o.Err != nil {
		r.success.WithLabelValues(op).Set(0)
	} else {
		r.success.WithLabelValues(op).Set(1)
		r.lastSuccess.WithLabelValues(op).Set(float64(o.End.Unix()))
	}

	switch op {
	case "backup":
		if o.Err == nil {
			r.archiveSize.WithLabelValues(op).Set(float64(o.ArchiveSize))
			r.kept.WithLabelValues(op).Set(float64(o.Kept))
			r.deleted.WithLabelValues(op).Set(float64(o.Deleted))
		}
		r.archives.WithLabelValues(op).Set(float64(o.Archives))
	case "verify":
		r.archives.WithLabelValues(op).Set(float64(o.Archives))
		r.failed.WithLabelValues(op).Set(float64(o.Failed))
	}
}

// seed loads the series of op from its textfile. A missing file is not an
// error; a file that does not parse leaves the recorder as it was.
func (r *Recorder) seed(op string) error {
	path := r.PathFor(op)
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for name, mf := range families {
		g, ok := r.byName[name]
		if !ok || mf.GetType() != dto.MetricType_GAUGE {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue(m, "operation") == op {
				g.WithLabelValues(op).Set(m.GetGauge().GetValue())
			}
		}
	}
	return nil
}

// PathFor returns the textfile an operation is written to:
// /x/dir_archiver.prom becomes /x/dir_archiver_backup.prom.
func (r *Recorder) PathFor(op string) string {
	if r.path == "" {
		return ""
	}
	ext := filepath.Ext(r.path)
	return strings.TrimSuffix(r.path, ext) + "_" + op + ext
}

// Write rewrites the textfile of every operation observed so far. It is a
// no-op without a path.
func (r *Recorder) Write() error {
	if r == nil || r.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	for op := range r.ops {
		if err := prometheus.WriteToTextfile(r.PathFor(op), onlyOperation(r.reg, op)); err != nil {
			return fmt.Errorf("writing metrics textfile: %w", err)
		}
	}
	return nil
}
