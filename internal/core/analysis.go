package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"airr.io/student-analytics/internal/store"
)

var chartTypes = []string{
	string(store.ChartBar),
	string(store.ChartLine),
	string(store.ChartPie),
	string(store.ChartScatter),
	string(store.ChartNone),
}

// analysisSchema constrains the model output to the AnalysisResponse shape.
func analysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"answer":             {Type: genai.TypeString, Description: "Direct text answer to the user query"},
			"calculationSummary": {Type: genai.TypeString, Description: "Details of any math performed"},
			"visualization": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"type": {Type: genai.TypeString, Enum: chartTypes, Description: "Type of chart"},
					"data": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"label": {Type: genai.TypeString},
								"value": {Type: genai.TypeNumber},
							},
							Required: []string{"label", "value"},
						},
						Description: "Array of objects for charting",
					},
					"xAxisLabel": {Type: genai.TypeString},
					"yAxisLabel": {Type: genai.TypeString},
					"title":      {Type: genai.TypeString},
				},
				Required: []string{"type", "data", "xAxisLabel", "yAxisLabel", "title"},
			},
		},
		Required: []string{"answer"},
	}
}

// rawPoint tolerates values sent as numbers or numeric strings.
type rawPoint struct {
	Label any             `json:"label"`
	Value json.RawMessage `json:"value"`
}

type rawVisualization struct {
	Type       string     `json:"type"`
	Data       []rawPoint `json:"data"`
	XAxisLabel string     `json:"xAxisLabel"`
	YAxisLabel string     `json:"yAxisLabel"`
	Title      string     `json:"title"`
}

type rawAnalysis struct {
	Answer             string            `json:"answer"`
	CalculationSummary string            `json:"calculationSummary"`
	Visualization      *rawVisualization `json:"visualization"`
}

// ParseAnalysis validates model output and coerces it into an
// AnalysisResponse. A NONE or unknown chart type drops the visualization,
// as does a chart whose points all lack a label or a numeric value.
func ParseAnalysis(text string) (*store.AnalysisResponse, error) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, fmt.Errorf("model returned an empty response")
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	if strings.TrimSpace(raw.Answer) == "" {
		return nil, fmt.Errorf("model response has no answer")
	}

	out := &store.AnalysisResponse{
		Answer:             strings.TrimSpace(raw.Answer),
		CalculationSummary: strings.TrimSpace(raw.CalculationSummary),
	}
	if raw.Visualization != nil {
		out.Visualization = coerceVisualization(raw.Visualization)
	}
	return out, nil
}

func coerceVisualization(raw *rawVisualization) *store.Visualization {
	chart := store.ChartType(strings.ToUpper(strings.TrimSpace(raw.Type)))
	switch chart {
	case store.ChartBar, store.ChartLine, store.ChartPie, store.ChartScatter:
	default:
		// NONE, or anything the renderer does not know.
		return nil
	}

	points := make([]store.ChartPoint, 0, len(raw.Data))
	for _, p := range raw.Data {
		label := labelString(p.Label)
		value, ok := numericValue(p.Value)
		if label == "" || !ok {
			continue
		}
		points = append(points, store.ChartPoint{Label: label, Value: value})
	}
	if len(points) == 0 {
		return nil
	}

	return &store.Visualization{
		Type:       chart,
		Data:       points,
		XAxisLabel: raw.XAxisLabel,
		YAxisLabel: raw.YAxisLabel,
		Title:      raw.Title,
	}
}

func labelString(v any) string {
	switch l := v.(type) {
	case string:
		return strings.TrimSpace(l)
	case float64:
		return strconv.FormatFloat(l, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(l)
	}
	return ""
}

func numericValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || isJSONNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// stripCodeFence unwraps ```json ... ``` blocks some models emit even in
// JSON mode.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
