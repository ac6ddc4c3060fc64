package candidate

import (
	"encoding/json"
	"fmt"
)

// wireEdit is the JSON form of an edit: {"op": "setItemQuantity", "index": 0, "value": 2}
type wireEdit struct {
	Op        string          `json:"op"`
	Index     *int            `json:"index,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Direction Direction       `json:"direction,omitempty"`
}

// DecodeEdit parses one edit from JSON
func DecodeEdit(data []byte) (Edit, error) {
	var w wireEdit
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding edit: %w", err)
	}
	return w.edit()
}

// EncodeEdit renders an edit as JSON
func EncodeEdit(e Edit) ([]byte, error) {
	w, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Edits is a JSON-decodable list of edits
type Edits []Edit

func (l *Edits) UnmarshalJSON(data []byte) error {
	var raw []wireEdit
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding edits: %w", err)
	}
	out := make(Edits, 0, len(raw))
	for i, w := range raw {
		e, err := w.edit()
		if err != nil {
			return fmt.Errorf("edit %d: %w", i, err)
		}
		out = append(out, e)
	}
	*l = out
	return nil
}

func (l Edits) MarshalJSON() ([]byte, error) {
	raw := make([]wireEdit, 0, len(l))
	for _, e := range l {
		w, err := toWire(e)
		if err != nil {
			return nil, err
		}
		raw = append(raw, w)
	}
	return json.Marshal(raw)
}

func (w wireEdit) edit() (Edit, error) {
	switch w.Op {
	case "addItem":
		return AddItem{}, nil
	case "setStoreName":
		v, err := decodeValue[string](w)
		return SetStoreName{Value: v}, err
	case "setStoreAddress":
		v, err := decodeValue[*string](w)
		return SetStoreAddress{Value: v}, err
	case "setDate":
		v, err := decodeValue[*string](w)
		return SetDate{Value: v}, err
	case "setTime":
		v, err := decodeValue[*string](w)
		return SetTime{Value: v}, err
	case "setTax":
		v, err := decodeValue[*float64](w)
		return SetTax{Value: v}, err
	case "setTip":
		v, err := decodeValue[*float64](w)
		return SetTip{Value: v}, err
	}

	if w.Index == nil {
		return nil, fmt.Errorf("%s: index is required", w.Op)
	}
	idx := *w.Index

	switch w.Op {
	case "setItemName":
		v, err := decodeValue[string](w)
		return SetItemName{Index: idx, Value: v}, err
	case "setItemDescription":
		v, err := decodeValue[*string](w)
		return SetItemDescription{Index: idx, Value: v}, err
	case "setItemCategory":
		v, err := decodeValue[*string](w)
		return SetItemCategory{Index: idx, Value: v}, err
	case "setItemQuantity":
		v, err := decodeValue[float64](w)
		return SetItemQuantity{Index: idx, Value: v}, err
	case "setItemUnitPrice":
		v, err := decodeValue[float64](w)
		return SetItemUnitPrice{Index: idx, Value: v}, err
	case "deleteItem":
		return DeleteItem{Index: idx}, nil
	case "moveItem":
		if w.Direction != Up && w.Direction != Down {
			return nil, ErrInvalidDirection
		}
		return MoveItem{Index: idx, Direction: w.Direction}, nil
	default:
		return nil, fmt.Errorf("unknown edit op %q", w.Op)
	}
}

func decodeValue[T any](w wireEdit) (T, error) {
	var v T
	if len(w.Value) == 0 {
		return v, fmt.Errorf("%s: value is required", w.Op)
	}
	if err := json.Unmarshal(w.Value, &v); err != nil {
		return v, fmt.Errorf("%s: decoding value: %w", w.Op, err)
	}
	return v, nil
}

func toWire(e Edit) (wireEdit, error) {
	w := wireEdit{Op: e.Op()}
	var value any
	switch v := e.(type) {
	case AddItem:
		return w, nil
	case DeleteItem:
		w.Index = &v.Index
		return w, nil
	case MoveItem:
		w.Index, w.Direction = &v.Index, v.Direction
		return w, nil
	case SetStoreName:
		value = v.Value
	case SetStoreAddress:
		value = v.Value
	case SetDate:
		value = v.Value
	case SetTime:
		value = v.Value
	case SetTax:
		value = v.Value
	case SetTip:
		value = v.Value
	case SetItemName:
		w.Index, value = &v.Index, v.Value
	case SetItemDescription:
		w.Index, value = &v.Index, v.Value
	case SetItemQuantity:
		w.Index, value = &v.Index, v.Value
	case SetItemUnitPrice:
		w.Index, value = &v.Index, v.Value
	case SetItemCategory:
		w.Index, value = &v.Index, v.Value
	default:
		return wireEdit{}, fmt.Errorf("unknown edit %T", e)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return wireEdit{}, fmt.Errorf("encoding %s value: %w", e.Op(), err)
	}
	w.Value = raw
	return w, nil
}

// Reconciliation is a candidate together with edits to replay on it
type Reconciliation struct {
	Candidate *Candidate `json:"candidate"`
	Edits     Edits      `json:"edits"`
}

// Apply replays the edits on a copy of the candidate. Totals are recomputed
// first, so client supplied totals never survive.
func (r Reconciliation) Apply() (*Candidate, error) {
	if r.Candidate == nil {
		return nil, fmt.Errorf("%w: no candidate", ErrInvalidCandidate)
	}
	c := New(*r.Candidate)
	if err := c.ApplyAll(r.Edits...); err != nil {
		return nil, err
	}
	return c, nil
}
