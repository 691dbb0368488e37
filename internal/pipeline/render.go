package pipeline

import (
	"bytes"
	"text/template"
)

// Vars supports layered template variables for task configs:
// - Global: run-wide values (repository, branch, workspace paths)
// - Local: values produced by earlier tasks in the same run
// Rendering gives precedence to Local over Global.
// Note: zero values (nil maps) are handled gracefully.
type Vars struct {
	Global map[string]string
	Local  map[string]string
}

// merged returns a combined map (Global then overridden by Local).
func (v *Vars) merged() map[string]string {
	m := map[string]string{}
	if v != nil && v.Global != nil {
		for k, val := range v.Global {
			m[k] = val
		}
	}
	if v != nil && v.Local != nil {
		for k, val := range v.Local {
			m[k] = val
		}
	}
	return m
}

// dataForTemplate builds the dot object for template execution supporting
// both flat lookups (e.g., {{.artifact_path}}) and grouped lookups
// ({{.outputs.artifact_path}}).
func (v *Vars) dataForTemplate() map[string]interface{} {
	data := map[string]interface{}{}
	merged := v.merged()
	for k, val := range merged {
		data[k] = val
	}
	data["outputs"] = merged
	return data
}

// RenderString renders strings like {{.branch}} with standard Go template
// delimiters. Missing keys or parse errors keep the original string unchanged.
func (v *Vars) RenderString(s string) string {
	if len(s) == 0 {
		return s
	}
	t, err := template.New("taskcfg").Option("missingkey=error").Parse(s)
	if err != nil {
		return s
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, v.dataForTemplate()); err != nil {
		return s
	}
	return buf.String()
}

// RenderConfig walks arbitrary structures (map[string]any, []any) and renders
// all string values using the provided vars. The function returns a new
// rendered structure (for maps/slices) or the original value for non-string
// scalars.
func RenderConfig(in interface{}, v *Vars) interface{} {
	var fn func(val interface{}) interface{}
	fn = func(val interface{}) interface{} {
		switch t := val.(type) {
		case map[string]interface{}:
			m := make(map[string]interface{}, len(t))
			for k, vv := range t {
				m[k] = fn(vv)
			}
			return m
		case []interface{}:
			arr := make([]interface{}, len(t))
			for i := range t {
				arr[i] = fn(t[i])
			}
			return arr
		case string:
			if v == nil {
				return t
			}
			return v.RenderString(t)
		default:
			return val
		}
	}
	return fn(in)
}
