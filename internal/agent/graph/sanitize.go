package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/email-assistant-core/server/internal/agent/graph/tools"
)

// SanitizeToolArguments coerces common model mistakes in tool arguments:
// padded strings, numbers sent as strings and single attendees sent as a
// comma separated string. Arguments that are not a JSON object pass through.
func SanitizeToolArguments(name, arguments string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil || m == nil {
		return arguments
	}

	switch name {
	case tools.ToolWriteEmail:
		trimFields(m, "to", "subject")
	case tools.ToolScheduleMeeting:
		trimFields(m, "subject", "preferred_day", "start_time")
		if v, ok := m["attendees"]; ok {
			m["attendees"] = attendeeList(v)
		}
		clampField(m, "duration_minutes", 1, 8*60)
	case tools.ToolCheckAvailability:
		trimFields(m, "day")
	case tools.ToolManageMemory:
		trimFields(m, "id")
		if v, ok := m["action"].(string); ok {
			m["action"] = strings.ToLower(strings.TrimSpace(v))
		}
	case tools.ToolSearchMemory:
		trimFields(m, "query")
		clampField(m, "limit", 1, 20)
	default:
		return arguments
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}

func trimFields(m map[string]any, keys ...string) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch vv := v.(type) {
		case string:
			m[k] = strings.TrimSpace(vv)
		case nil:
			delete(m, k)
		default:
			m[k] = strings.TrimSpace(fmt.Sprint(vv))
		}
	}
}

// clampField keeps a numeric field inside [min, max]; unparsable values are dropped
// so the tool default applies.
func clampField(m map[string]any, key string, min, max int) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch vv := v.(type) {
	case float64:
		m[key] = clampInt(int(vv), min, max)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
			m[key] = clampInt(n, min, max)
		} else {
			delete(m, key)
		}
	default:
		delete(m, key)
	}
}

func attendeeList(v any) []string {
	var raw []string
	switch vv := v.(type) {
	case string:
		raw = strings.FieldsFunc(vv, func(r rune) bool { return r == ',' || r == ';' })
	case []any:
		for _, a := range vv {
			if s, ok := a.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
