package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseSizeBytes 是唯一的数字解码入口：接受 JSON number 或数字字符串，
// 其余输入一律判为非法，绝不静默返回错误的值。
func parseSizeBytes(raw any) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("sizeBytes is required")
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("sizeBytes must be an integer")
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("sizeBytes must be numeric")
		}
		return n, nil
	default:
		return 0, fmt.Errorf("sizeBytes must be numeric")
	}
}
