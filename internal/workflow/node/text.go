package node

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

func TruncateByRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// PrettyJSON 将结构体渲染为提示词中使用的 JSON 文本；nil 时返回占位说明
func PrettyJSON(v any, placeholder string) string {
	if v == nil {
		return placeholder
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil || string(b) == "null" {
		return placeholder
	}
	return string(b)
}

// BulletList 渲染为 "- item" 列表，空列表返回占位说明
func BulletList(items []string, placeholder string) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			lines = append(lines, "- "+it)
		}
	}
	if len(lines) == 0 {
		return placeholder
	}
	return strings.Join(lines, "\n")
}
