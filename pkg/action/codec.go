package action

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wire is the JSON shape of a single action. Field order here fixes the
// serialized key order, which fingerprints depend on.
type wire struct {
	Action     Kind    `json:"action"`
	URL        string  `json:"url,omitempty"`
	Selector   string  `json:"selector,omitempty"`
	Text       *string `json:"text,omitempty"`
	DurationMs *int64  `json:"durationMs,omitempty"`
	TimeoutMs  int64   `json:"timeoutMs,omitempty"`
}

func toWire(a Action) wire {
	w := wire{Action: a.Kind()}
	switch v := a.(type) {
	case Navigate:
		w.URL = v.URL
		w.TimeoutMs = v.TimeoutMs
	case Click:
		w.Selector = v.Selector
		w.TimeoutMs = v.TimeoutMs
	case Fill:
		text := v.Text
		w.Selector, w.Text = v.Selector, &text
		w.TimeoutMs = v.TimeoutMs
	case AssertText:
		text := v.Expected
		w.Selector, w.Text = v.Selector, &text
		w.TimeoutMs = v.TimeoutMs
	case AssertVisible:
		w.Selector = v.Selector
		w.TimeoutMs = v.TimeoutMs
	case Wait:
		if v.Selector != "" {
			w.Selector = v.Selector
		} else {
			ms := v.Duration.Milliseconds()
			w.DurationMs = &ms
		}
		w.TimeoutMs = v.TimeoutMs
	}
	return w
}

// Marshal encodes one action in its canonical wire form.
func Marshal(a Action) ([]byte, error) {
	return EncodeJSON(toWire(a))
}

// EncodeJSON is json.Marshal without HTML escaping, so selectors such as
// "ul > li" and URLs with query strings keep their literal bytes.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ToMap returns the wire form as a candidate record, so that
// Validate(ToMap(a)) reproduces a.
func ToMap(a Action) map[string]any {
	w := toWire(a)
	m := map[string]any{"action": string(w.Action)}
	if w.URL != "" {
		m["url"] = w.URL
	}
	if w.Selector != "" {
		m["selector"] = w.Selector
	}
	if w.Text != nil {
		m["text"] = *w.Text
	}
	if w.DurationMs != nil {
		m["durationMs"] = *w.DurationMs
	}
	if w.TimeoutMs != 0 {
		m["timeoutMs"] = w.TimeoutMs
	}
	return m
}

func (a Navigate) MarshalJSON() ([]byte, error)      { return Marshal(a) }
func (a Click) MarshalJSON() ([]byte, error)         { return Marshal(a) }
func (a Fill) MarshalJSON() ([]byte, error)          { return Marshal(a) }
func (a AssertText) MarshalJSON() ([]byte, error)    { return Marshal(a) }
func (a AssertVisible) MarshalJSON() ([]byte, error) { return Marshal(a) }
func (a Wait) MarshalJSON() ([]byte, error)          { return Marshal(a) }

// Sequence is an ordered action program. It decodes strictly: any invalid
// element fails the whole decode.
type Sequence []Action

// MarshalJSON encodes the sequence as a JSON array of wire objects.
func (s Sequence) MarshalJSON() ([]byte, error) {
	ws := make([]wire, len(s))
	for i, a := range s {
		ws[i] = toWire(a)
	}
	return EncodeJSON(ws)
}

// UnmarshalJSON decodes and validates every element.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	var raws []map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raws); err != nil {
		return fmt.Errorf("decode actions: %w", err)
	}
	seq := make(Sequence, 0, len(raws))
	for i, raw := range raws {
		a, verr := Validate(raw)
		if verr != nil {
			return fmt.Errorf("actions[%d]: %w", i, verr)
		}
		seq = append(seq, a)
	}
	*s = seq
	return nil
}
