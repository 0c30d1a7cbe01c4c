package node

import "strings"

// ExtractJSONObject 截取模型输出中第一个完整的 JSON 对象或数组。
// 按括号配对扫描（忽略字符串内的括号），可容忍 Markdown 代码块与前后说明文字；
// 输出被截断时返回从起始括号到末尾的片段，交给调用方的解码报错。
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return raw
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return raw[start:]
}
