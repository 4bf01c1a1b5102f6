package transcript

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cast"
	"github.com/titanous/json5"
)

// ChartLanguage is the only language tag whose blocks are read as charts
const ChartLanguage = "js"

var (
	reLangTag   = regexp.MustCompile(`^\w+\s`)
	reBraceSpan = regexp.MustCompile(`(?s)\{.*\}`)
	reLangOnly  = regexp.MustCompile(`^[\w+#.-]+$`)

	ErrNoSpec      = errors.New("no chart spec found")
	ErrNoChartType = errors.New("chart spec without type")
)

// Dataset one series of a chart
type Dataset struct {
	Label string `json:"label,omitempty"`
	// Data holds float64 values, nil gaps and Point values
	Data            []any   `json:"data"`
	BackgroundColor any     `json:"backgroundColor,omitempty"`
	BorderColor     any     `json:"borderColor,omitempty"`
	BorderWidth     float64 `json:"borderWidth,omitempty"`
}

// Point a data value with its own x, x is a number or a label
type Point struct {
	X any     `json:"x"`
	Y float64 `json:"y"`
}

// dataValue keeps a nil gap, reads scalars as numbers and objects as points
func dataValue(v any) (any, error) {
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if _, ok := tv["x"]; !ok {
			return nil, errors.New("point without x")
		}
		y, err := cast.ToFloat64E(tv["y"])
		if err != nil {
			return nil, fmt.Errorf("point y: %w", err)
		}
		var x any
		switch xv := tv["x"].(type) {
		case string:
			x = xv
		default:
			if x, err = cast.ToFloat64E(xv); err != nil {
				return nil, fmt.Errorf("point x: %w", err)
			}
		}
		return Point{X: x, Y: y}, nil
	}
	return cast.ToFloat64E(v)
}

// Chart is the data part of a chart configuration
type Chart struct {
	Type     string         `json:"type"`
	Labels   []string       `json:"labels"`
	Datasets []Dataset      `json:"datasets"`
	Options  map[string]any `json:"options,omitempty"`
}

// ChartResult of reading a fenced block as a chart directive.
// Spec is nil when no graph could be made.
type ChartResult struct {
	Attempted bool   `json:"attempted"`
	Spec      *Chart `json:"spec,omitempty"`
	Source    string `json:"source,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// NoGraph ...
func (r *ChartResult) NoGraph() bool {
	return r == nil || r.Spec == nil
}

// ChartInput strips the language tag off a fenced body
func ChartInput(body string) string {
	return reLangTag.ReplaceAllString(body, "")
}

// LanguageTag return the lowercased first token of a fenced body
func LanguageTag(body string) string {
	line, _, _ := strings.Cut(body, "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// CodeLanguage return the language of a fenced body, only when its first
// line is nothing but a tag
func CodeLanguage(body string) string {
	line, _, _ := strings.Cut(body, "\n")
	line = strings.TrimSpace(line)
	if reLangOnly.MatchString(line) {
		return strings.ToLower(line)
	}
	return ""
}

// ClassifyChart reads a fenced body as a chart directive. It never fails:
// problems end up in Reason.
func ClassifyChart(body string) *ChartResult {
	res := new(ChartResult)
	if tag := LanguageTag(body); tag != ChartLanguage {
		res.Reason = fmt.Sprintf("language %q is not %s", tag, ChartLanguage)
		return res
	}
	res.Attempted = true

	spec, src, err := ParseChart(ChartInput(body))
	res.Source = src
	if err != nil {
		logger().Debugw("no graph", "err", err)
		res.Reason = err.Error()
		return res
	}
	res.Spec = spec
	return res
}

// ParseChart takes the first {...} span of s as JSON5 data.
func ParseChart(s string) (*Chart, string, error) {
	src := reBraceSpan.FindString(s)
	if len(src) == 0 {
		return nil, "", ErrNoSpec
	}
	var m map[string]any
	if err := json5.Unmarshal([]byte(src), &m); err != nil {
		return nil, src, fmt.Errorf("parse chart spec: %w", err)
	}
	spec, err := chartFromMap(m)
	return spec, src, err
}

func chartFromMap(m map[string]any) (*Chart, error) {
	spec := &Chart{Type: cast.ToString(m["type"])}
	if len(spec.Type) == 0 {
		return nil, ErrNoChartType
	}
	data := cast.ToStringMap(m["data"])
	spec.Labels = cast.ToStringSlice(data["labels"])
	for i, it := range cast.ToSlice(data["datasets"]) {
		dm := cast.ToStringMap(it)
		ds := Dataset{
			Label:           cast.ToString(dm["label"]),
			BackgroundColor: dm["backgroundColor"],
			BorderColor:     dm["borderColor"],
			BorderWidth:     cast.ToFloat64(dm["borderWidth"]),
		}
		for j, v := range cast.ToSlice(dm["data"]) {
			dv, err := dataValue(v)
			if err != nil {
				return nil, fmt.Errorf("dataset %d value %d: %w", i, j, err)
			}
			ds.Data = append(ds.Data, dv)
		}
		spec.Datasets = append(spec.Datasets, ds)
	}
	if opts, ok := m["options"]; ok {
		spec.Options = cast.ToStringMap(opts)
	}
	return spec, nil
}
