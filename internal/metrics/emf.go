// Package metrics provides a lightweight AWS CloudWatch Embedded Metrics Format (EMF)
// recorder. EMF documents are single JSON lines; when they land in CloudWatch Logs
// the metrics are extracted automatically, and locally they are plain structured logs.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Standard CloudWatch metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
	UnitNone         = "None"
)

// DefaultNamespace is the CloudWatch namespace used by the pipeline.
const DefaultNamespace = "EtsyFlow"

// metricDef holds the name and unit for a single metric.
type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

// emfDirective is the _aws metadata block required by EMF.
type emfDirective struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

// cwMetric defines a CloudWatch metric namespace, dimensions, and metric definitions.
type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Emitter hands out Recorders that share one output. Flushes from concurrent
// Recorders are serialized so lines never interleave.
type Emitter struct {
	namespace string
	mu        sync.Mutex
	out       io.Writer
	now       func() time.Time
}

// NewEmitter returns an Emitter writing to out. A nil out discards everything.
func NewEmitter(namespace string, out io.Writer) *Emitter {
	if out == nil {
		out = io.Discard
	}
	return &Emitter{namespace: namespace, out: out, now: time.Now}
}

// Recorder starts a new EMF document.
func (e *Emitter) Recorder() *Recorder {
	r := newRecorder(e.namespace, e.out, &e.mu)
	r.now = e.now
	return r
}

// Recorder accumulates dimensions, metrics, and properties for a single EMF flush.
// It is NOT safe for concurrent use from multiple goroutines; create one per operation.
type Recorder struct {
	namespace  string
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]any
	properties map[string]any

	out io.Writer
	mu  *sync.Mutex
	now func() time.Time
}

func newRecorder(namespace string, out io.Writer, mu *sync.Mutex) *Recorder {
	return &Recorder{
		namespace:  namespace,
		dimensions: make(map[string]string),
		metrics:    make(map[string]metricDef),
		values:     make(map[string]any),
		properties: make(map[string]any),
		out:        out,
		mu:         mu,
		now:        time.Now,
	}
}

// Dimension adds a dimension key-value pair. Dimensions are indexed in CloudWatch
// and appear as filterable attributes on the metric.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records a named metric value with a CloudWatch unit.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Count is a convenience for recording a count metric (value = 1).
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property adds a non-metric field. Properties are searchable in Logs Insights
// but do not create CloudWatch metrics.
func (r *Recorder) Property(key string, value any) *Recorder {
	r.properties[key] = value
	return r
}

// Flush serializes the EMF document as a single JSON line.
// After flushing, the Recorder should not be reused.
func (r *Recorder) Flush() {
	if len(r.metrics) == 0 {
		return
	}

	doc := make(map[string]any, len(r.dimensions)+len(r.values)+len(r.properties)+1)

	metricDefs := make([]metricDef, 0, len(r.metrics))
	for _, m := range r.metrics {
		metricDefs = append(metricDefs, m)
	}

	dimKeys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		dimKeys = append(dimKeys, k)
	}

	doc["_aws"] = emfDirective{
		Timestamp: r.now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dimKeys},
			Metrics:    metricDefs,
		}},
	}

	// Properties first so dimensions and metric values win on key collisions
	for k, v := range r.properties {
		doc[k] = v
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	for k, v := range r.values {
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		log.Warn().Err(err).Str("namespace", r.namespace).Msg("Failed to marshal EMF document")
		return
	}

	if r.mu != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	fmt.Fprintln(r.out, string(data))
}

// RecordCall emits the standard per-call document: Operation and Result
// dimensions with LatencyMs and Attempts metrics.
func (e *Emitter) RecordCall(operation, result string, latency time.Duration, attempts int, assetID string) {
	if e == nil {
		return
	}
	r := e.Recorder().
		Dimension("Operation", operation).
		Dimension("Result", result).
		Metric("LatencyMs", float64(latency.Milliseconds()), UnitMilliseconds).
		Metric("Attempts", float64(attempts), UnitCount)
	if assetID != "" {
		r.Property("assetId", assetID)
	}
	r.Flush()
}
