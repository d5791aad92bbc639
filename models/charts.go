package models

import (
	"bytes"
	"encoding/json"
)

// ChartType names the visualizations an agent may embed in a reply.
type ChartType string

const (
	ChartLine   ChartType = "line"
	ChartBar    ChartType = "bar"
	ChartPie    ChartType = "pie"
	ChartArea   ChartType = "area"
	ChartFunnel ChartType = "funnel"
)

// Valid reports whether t is one of the supported chart types.
func (t ChartType) Valid() bool {
	switch t {
	case ChartLine, ChartBar, ChartPie, ChartArea, ChartFunnel:
		return true
	}
	return false
}

// DataPoint is one chart point: {"name": ..., "value": ..., ...}.
// Extra keys are kept so renderers can use them (e.g. "fill").
type DataPoint map[string]interface{}

// Name returns the point's label.
func (p DataPoint) Name() string {
	name, _ := p["name"].(string)
	return name
}

// Value returns the point's numeric value, if any.
func (p DataPoint) Value() (float64, bool) {
	switch v := p["value"].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Chart is a single visualization descriptor.
type Chart struct {
	Type    ChartType              `json:"type"`
	Title   string                 `json:"title,omitempty"`
	Insight string                 `json:"insight,omitempty"`
	Data    []DataPoint            `json:"data"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// Visualizations accepts either a single chart object or an array of charts.
type Visualizations []Chart

func (v *Visualizations) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = nil
		return nil
	}
	if trimmed[0] == '[' {
		var charts []Chart
		if err := json.Unmarshal(trimmed, &charts); err != nil {
			return err
		}
		*v = charts
		return nil
	}
	var chart Chart
	if err := json.Unmarshal(trimmed, &chart); err != nil {
		return err
	}
	*v = Visualizations{chart}
	return nil
}

// AgentPayload is the JSON reply convention: {"text": ..., "visualization": ...}.
type AgentPayload struct {
	Text          *string        `json:"text"`
	Visualization Visualizations `json:"visualization,omitempty"`
}
