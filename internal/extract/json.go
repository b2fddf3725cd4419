package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// JSON flattens a document into one line per scalar, in document order.
//
//	{"a": {"b": 1}, "tags": ["x", {"k": "v"}]}
//
// becomes
//
//	a.b: 1
//	x
//	tags[1].k: v
//
// Scalars directly inside arrays are emitted bare.
func JSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", readError(path, "JSON", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	if !gjson.ValidBytes(data) {
		return "", readError(path, "JSON", errors.New("invalid JSON document"))
	}

	var lines []string
	flattenJSON(gjson.ParseBytes(data), "", &lines)
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func flattenJSON(v gjson.Result, prefix string, lines *[]string) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, val gjson.Result) bool {
			full := key.String()
			if prefix != "" {
				full = prefix + "." + full
			}
			if val.IsObject() || val.IsArray() {
				flattenJSON(val, full, lines)
			} else {
				*lines = append(*lines, full+": "+jsonScalar(val))
			}
			return true
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, val gjson.Result) bool {
			flattenJSON(val, fmt.Sprintf("%s[%d]", prefix, i), lines)
			i++
			return true
		})
	default:
		*lines = append(*lines, jsonScalar(v))
	}
}

// jsonScalar renders strings unquoted and every other scalar as written.
func jsonScalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return "null"
	default:
		return v.Raw
	}
}
