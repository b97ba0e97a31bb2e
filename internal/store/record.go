package store

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Kind discriminates message records.
type Kind string

const (
	KindText   Kind = "text"
	KindAction Kind = "action"
	KindCode   Kind = "code"
)

// DefaultCodeLang tags code blocks without a recognised language.
const DefaultCodeLang = "txt"

// Body is the kind-specific payload of a Record. It is implemented by Text, Action and Code only.
type Body interface {
	Kind() Kind
	payload() string
	withPayload(string) Body
}

// Text is a regular chat line.
type Text struct {
	Original   string
	SourceLang string
}

// Action is a /me line.
type Action struct {
	Content string
}

// Code is a /code block.
type Code struct {
	Lang    string
	Content string
}

func (Text) Kind() Kind   { return KindText }
func (Action) Kind() Kind { return KindAction }
func (Code) Kind() Kind   { return KindCode }

func (t Text) payload() string   { return t.Original }
func (a Action) payload() string { return a.Content }
func (c Code) payload() string   { return c.Content }

func (t Text) withPayload(s string) Body   { t.Original = s; return t }
func (a Action) withPayload(s string) Body { a.Content = s; return a }
func (c Code) withPayload(s string) Body   { c.Content = s; return c }

// Record is one persisted message.
type Record struct {
	Pseudo    string
	Color     string
	Timestamp time.Time
	Body      Body
}

// Kind returns the record discriminator, defaulting to text.
func (r Record) Kind() Kind {
	if r.Body == nil {
		return KindText
	}
	return r.Body.Kind()
}

// Payload returns the free-text field that private rooms encrypt.
func (r Record) Payload() string {
	if r.Body == nil {
		return ""
	}
	return r.Body.payload()
}

// WithPayload returns a copy of r whose free-text field is replaced.
func (r Record) WithPayload(s string) Record {
	if r.Body == nil {
		r.Body = Text{}
	}
	r.Body = r.Body.withPayload(s)
	return r
}

type wireRecord struct {
	Type       Kind     `json:"type"`
	Pseudo     string   `json:"pseudo"`
	Original   *string  `json:"original,omitempty"`
	SourceLang string   `json:"source_lang,omitempty"`
	Lang       string   `json:"lang,omitempty"`
	Content    *string  `json:"content,omitempty"`
	Timestamp  float64  `json:"timestamp"`
	Color      string   `json:"color,omitempty"`
	LegacyTS   *float64 `json:"ts,omitempty"`
	LegacyText *string  `json:"text,omitempty"`
}

// MarshalJSON writes the flat tagged shape used in history files.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		Type:      r.Kind(),
		Pseudo:    r.Pseudo,
		Timestamp: toUnixSeconds(r.Timestamp),
		Color:     r.Color,
	}
	switch b := r.Body.(type) {
	case nil:
		empty := ""
		w.Original = &empty
	case Text:
		w.Original = &b.Original
		w.SourceLang = b.SourceLang
	case Action:
		w.Content = &b.Content
	case Code:
		w.Lang = b.Lang
		w.Content = &b.Content
	default:
		return nil, fmt.Errorf("unknown record body %T", r.Body)
	}
	return json.Marshal(w)
}

// UnmarshalJSON normalizes legacy and partial records: missing or unknown types become text.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	r.Pseudo = w.Pseudo
	r.Color = w.Color
	ts := w.Timestamp
	if ts == 0 && w.LegacyTS != nil {
		ts = *w.LegacyTS
	}
	r.Timestamp = fromUnixSeconds(ts)

	switch w.Type {
	case KindAction:
		r.Body = Action{Content: deref(w.Content)}
	case KindCode:
		lang := w.Lang
		if lang == "" {
			lang = DefaultCodeLang
		}
		r.Body = Code{Lang: lang, Content: deref(w.Content)}
	default:
		original := deref(w.Original)
		if w.Original == nil {
			original = deref(w.LegacyText)
		}
		r.Body = Text{Original: original, SourceLang: w.SourceLang}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toUnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func fromUnixSeconds(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}
