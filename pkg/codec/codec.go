// Package codec selects the wire encoding used on Kafka topics.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type Codec interface {
	Name() string
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// New returns the codec for name: "json" (default) or "msgpack".
func New(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

type JSON struct{}

func (JSON) Name() string                               { return "json" }
func (JSON) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// Msgpack reads and writes struct fields under their json tag names, so one set of tags serves
// both codecs.
type Msgpack struct{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack) Unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
