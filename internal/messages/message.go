// Package messages holds the message value reported to validation and
// presentation layers.
package messages

import "strings"

// Message is one error or validation result. Field, Type and Code are
// filled by the adapter; composing Text is left to the caller.
type Message struct {
	Text  string
	Field string
	Type  string
	Code  string
}

// String renders the message for logs: "Type[Code] Field: Text", skipping
// empty parts.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Type)
	if m.Code != "" {
		b.WriteString("[" + m.Code + "]")
	}
	if m.Field != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(m.Field)
	}
	if m.Text != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(m.Text)
	}
	return b.String()
}

// WithText returns a copy of m with Text set.
func (m Message) WithText(text string) Message {
	m.Text = text
	return m
}

// Group is an ordered list of messages.
type Group []Message

// Filter returns the messages reported for field.
func (g Group) Filter(field string) Group {
	var out Group
	for _, m := range g {
		if m.Field == field {
			out = append(out, m)
		}
	}
	return out
}
