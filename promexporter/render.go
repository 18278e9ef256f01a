package promexporter

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Renderer serializes the collector through a private registry, so the
// output holds exactly the exporter's own families.
type Renderer struct {
	registry *prometheus.Registry
	format   expfmt.Format
}

// NewRenderer creates a renderer for the given snapshot source.
func NewRenderer(source SnapshotSource) (*Renderer, error) {
	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(NewCollector(source)); err != nil {
		return nil, fmt.Errorf("failed to register collector: %w", err)
	}
	return &Renderer{
		registry: registry,
		format:   expfmt.NewFormat(expfmt.TypeTextPlain),
	}, nil
}

// ContentType is the value for the Content-Type response header.
func (r *Renderer) ContentType() string {
	return string(r.format)
}

// Render writes the current snapshot. Families without a sample are still
// declared with HELP and TYPE lines so scrapers can discover them before the
// first successful run. Nothing is written to w if rendering fails.
func (r *Renderer) Render(w io.Writer) error {
	mfs, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	gathered := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		gathered[mf.GetName()] = mf
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, r.format)
	for _, f := range Catalog() {
		if mf, ok := gathered[f.Name]; ok {
			if err := enc.Encode(mf); err != nil {
				return fmt.Errorf("failed to encode %s: %w", f.Name, err)
			}
			continue
		}
		fmt.Fprintf(&buf, "# HELP %s %s\n# TYPE %s %s\n",
			f.Name, f.Help, f.Name, strings.ToLower(f.Type.String()))
	}

	_, err = w.Write(buf.Bytes())
	return err
}
