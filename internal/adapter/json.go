package adapter

import "encoding/json"

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// toJSONString re-encodes an arbitrary decoded JSON value so gjson can
// re-parse it uniformly regardless of whether jsonpath.Get returned a
// scalar, map, or slice.
func toJSONString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
