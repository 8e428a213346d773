// Package metrics counts what a conversion run decoded, dropped and wrote.
//
// Every run owns its own registry, so concurrent runs and tests never share
// counters. Batch runs export through the node-exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons.
const (
	ReasonDegenerate = "degenerate"
	ReasonArea       = "area"
	ReasonExtent     = "extent"
	ReasonAspect     = "aspect"
	ReasonClip       = "clip"
	ReasonClass      = "class"
)

// Run holds the counters of one conversion run.
type Run struct {
	Registry *prometheus.Registry

	RecordsDecoded   *prometheus.CounterVec
	FeaturesDropped  *prometheus.CounterVec
	FragmentsWritten *prometheus.CounterVec
	ChannelEvictions prometheus.Counter
	TilesWritten     prometheus.Counter
	CategorySkipped  *prometheus.CounterVec
}

// New returns counters registered on a fresh registry.
func New() *Run {
	r := &Run{
		Registry: prometheus.NewRegistry(),
		RecordsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shptiles_records_decoded_total",
			Help: "Geometry/attribute pairs decoded per input category",
		}, []string{"category"}),
		FeaturesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shptiles_features_dropped_total",
			Help: "Features dropped per category and reason",
		}, []string{"category", "reason"}),
		FragmentsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shptiles_fragments_written_total",
			Help: "Tile fragments appended per output category",
		}, []string{"category"}),
		ChannelEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shptiles_channel_evictions_total",
			Help: "Fragment channel files closed to respect the open-file bound",
		}),
		TilesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shptiles_tiles_written_total",
			Help: "Tile records written by the merge pass",
		}),
		CategorySkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shptiles_category_skipped_total",
			Help: "Input categories skipped because their files were missing or unreadable",
		}, []string{"category"}),
	}

	r.Registry.MustRegister(
		r.RecordsDecoded,
		r.FeaturesDropped,
		r.FragmentsWritten,
		r.ChannelEvictions,
		r.TilesWritten,
		r.CategorySkipped,
	)
	return r
}

// Drop counts one dropped feature.
func (r *Run) Drop(category, reason string) {
	r.FeaturesDropped.WithLabelValues(category, reason).Inc()
}

// WriteTextfile writes the current counter values to path.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
