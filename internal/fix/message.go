package fix

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field is a single tag=value pair.
type Field struct {
	Tag   int
	Value string
}

// Message is an ordered list of fields. Repeated tags are preserved in
// wire order.
type Message struct {
	fields []Field
}

// NewMessage creates a message with BeginString and MsgType set.
func NewMessage(beginString, msgType string) *Message {
	m := &Message{fields: make([]Field, 0, 16)}
	m.Add(TagBeginString, beginString)
	m.Add(TagMsgType, msgType)
	return m
}

// Add appends a field. Repeating the same tag is allowed.
func (m *Message) Add(tag int, value string) *Message {
	m.fields = append(m.fields, Field{Tag: tag, Value: value})
	return m
}

// AddInt appends an integer field.
func (m *Message) AddInt(tag int, value int) *Message {
	return m.Add(tag, strconv.Itoa(value))
}

// AddTime appends a UTCTimestamp field.
func (m *Message) AddTime(tag int, t time.Time) *Message {
	return m.Add(tag, t.UTC().Format(SendingTimeFormat))
}

// Get returns the value of the first occurrence of tag.
func (m *Message) Get(tag int) (string, bool) {
	for _, f := range m.fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return "", false
}

// GetString returns the first value of tag or "".
func (m *Message) GetString(tag int) string {
	v, _ := m.Get(tag)
	return v
}

// GetInt returns the first value of tag parsed as an integer.
func (m *Message) GetInt(tag int) (int, error) {
	v, ok := m.Get(tag)
	if !ok {
		return 0, fmt.Errorf("tag %d not present", tag)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("tag %d: %w", tag, err)
	}
	return n, nil
}

// GetTime returns the first value of tag parsed as a UTCTimestamp.
// Both second and millisecond precision are accepted.
func (m *Message) GetTime(tag int) (time.Time, error) {
	v, ok := m.Get(tag)
	if !ok {
		return time.Time{}, fmt.Errorf("tag %d not present", tag)
	}
	for _, layout := range []string{SendingTimeFormat, "20060102-15:04:05", "20060102-15:04:05.000000"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("tag %d: invalid timestamp %q", tag, v)
}

// Has reports whether tag is present.
func (m *Message) Has(tag int) bool {
	_, ok := m.Get(tag)
	return ok
}

// MsgType returns the MsgType (35) value.
func (m *Message) MsgType() string {
	return m.GetString(TagMsgType)
}

// Fields returns the fields in wire order. The slice must not be modified.
func (m *Message) Fields() []Field {
	return m.fields
}

// Build serialises the message. BeginString is written first, BodyLength
// and CheckSum are computed; any 9/10 fields already present are ignored.
func (m *Message) Build() []byte {
	begin := BeginStringFIX44
	var body bytes.Buffer
	for _, f := range m.fields {
		switch f.Tag {
		case TagBeginString:
			begin = f.Value
			continue
		case TagBodyLength, TagCheckSum:
			continue
		}
		body.WriteString(strconv.Itoa(f.Tag))
		body.WriteByte('=')
		body.WriteString(f.Value)
		body.WriteByte(SOH)
	}

	var out bytes.Buffer
	out.Grow(body.Len() + 32)
	out.WriteString("8=")
	out.WriteString(begin)
	out.WriteByte(SOH)
	out.WriteString("9=")
	out.WriteString(strconv.Itoa(body.Len()))
	out.WriteByte(SOH)
	out.Write(body.Bytes())

	sum := checksum(out.Bytes())
	fmt.Fprintf(&out, "10=%03d", sum)
	out.WriteByte(SOH)
	return out.Bytes()
}

// String renders the message with '|' in place of SOH, for logging.
// Password values are masked.
func (m *Message) String() string {
	var sb strings.Builder
	for i, f := range m.fields {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.Itoa(f.Tag))
		sb.WriteByte('=')
		if f.Tag == TagPassword {
			sb.WriteString("***")
			continue
		}
		sb.WriteString(f.Value)
	}
	return sb.String()
}

func checksum(b []byte) int {
	sum := 0
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}
