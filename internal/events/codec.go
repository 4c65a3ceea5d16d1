package events

import "encoding/json"

func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Encode renders the wire form used on the broker.
func Encode(event Event) ([]byte, error) {
	return json.Marshal(event)
}
