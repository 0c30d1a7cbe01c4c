package node

import "strings"

// responseFormatMarkers 供应商拒绝 json_schema 结构化输出时错误信息中的特征片段
var responseFormatMarkers = []string{
	"response_format",
	"json_schema",
	"response_schema",
	"structured output",
}

// IsResponseFormatUnsupportedError 判断是否因不支持 response_format 被拒绝；
// 命中时调用方去掉 schema 约束、改用提示词约束 JSON 后重试一次
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range responseFormatMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response")
}
