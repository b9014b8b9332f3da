package reference

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// References serialize to JSON for checkpointing. Values are normalized to
// JSON types on the way back (numbers become float64); skip markers survive,
// both as elements and as SkipValue leaves inside erased collections.
// Function elements are runtime-only and refuse to serialize.

const skipKey = "$skip"

type refDTO struct {
	Axes     []Axis    `json:"axes"`
	Elements []elemDTO `json:"elements"`
}

type elemDTO struct {
	Skip bool `json:"skip,omitempty"`
	// Value stays un-omitted so zero values (false, 0, "") survive.
	Value any `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (r *Reference) MarshalJSON() ([]byte, error) {
	dto := refDTO{Axes: r.Axes(), Elements: make([]elemDTO, len(r.data))}
	for i, e := range r.data {
		if e.IsSkip() {
			dto.Elements[i] = elemDTO{Skip: true}
			continue
		}
		v, err := encodeValue(e.Value())
		if err != nil {
			return nil, err
		}
		dto.Elements[i] = elemDTO{Value: v}
	}
	return json.Marshal(dto)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reference) UnmarshalJSON(data []byte) error {
	var dto refDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return errors.Wrap(err, "decode reference")
	}
	restored, err := New(dto.Axes...)
	if err != nil {
		return err
	}
	if len(dto.Elements) != restored.capacity() {
		return shapeMismatchf("reference payload has %d elements for shape %v", len(dto.Elements), restored.Shape())
	}
	for i, e := range dto.Elements {
		if e.Skip {
			restored.data[i] = Skip()
			continue
		}
		restored.data[i] = Of(decodeValue(e.Value))
	}
	*r = *restored
	return nil
}

func encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case skipMarker:
		return map[string]any{skipKey: true}, nil
	case Fn:
		return nil, errors.New("function elements cannot be serialized")
	case Sign:
		return string(val), nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			enc, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			enc, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	default:
		return v, nil
	}
}

func decodeValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = decodeValue(item)
		}
		return out
	case map[string]any:
		if len(val) == 1 {
			if b, ok := val[skipKey].(bool); ok && b {
				return SkipValue
			}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = decodeValue(item)
		}
		return out
	default:
		return v
	}
}
