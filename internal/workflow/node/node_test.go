package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Sure! {\"a\":{\"b\":2}} hope this helps", `{"a":{"b":2}}`},
		{"array", "result: [1,2]", `[1,2]`},
		{"empty", "   ", ""},
		{"trailing braces in prose", `{"a":1} and later {oops}`, `{"a":1}`},
		{"braces inside strings", `note: {"a":"}{","b":[1]} done`, `{"a":"}{","b":[1]}`},
		{"escaped quote", `{"a":"say \"hi\" }"}`, `{"a":"say \"hi\" }"}`},
		{"truncated", `{"a":[1,2`, `{"a":[1,2`},
		{"no json", "I cannot help", "I cannot help"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSONObject(tt.in))
		})
	}
}

func TestIsResponseFormatUnsupportedError(t *testing.T) {
	assert.True(t, IsResponseFormatUnsupportedError(errors.New("Invalid parameter: response_format json_schema")))
	assert.False(t, IsResponseFormatUnsupportedError(errors.New("status code: 503")))
	assert.True(t, IsResponseFormatUnsupportedError(errors.New("unknown parameter: 'response.schema'")))
	assert.False(t, IsResponseFormatUnsupportedError(errors.New("failed to parse request body")))
	assert.False(t, IsResponseFormatUnsupportedError(nil))
}

func TestPrettyJSONAndBulletList(t *testing.T) {
	var missing *struct{}
	assert.Equal(t, "n/a", PrettyJSON(missing, "n/a"))
	assert.Equal(t, "{\n  \"a\": 1\n}", PrettyJSON(map[string]int{"a": 1}, "n/a"))

	assert.Equal(t, "- one\n- two", BulletList([]string{"one", " ", "two"}, "none"))
	assert.Equal(t, "none", BulletList(nil, "none"))
}

func TestTruncateByRunes(t *testing.T) {
	assert.Equal(t, "héll", TruncateByRunes("héllo", 4))
	assert.Equal(t, "", TruncateByRunes("abc", 0))
}
