package fix

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Errors
var (
	ErrMalformed = errors.New("malformed message")
	ErrChecksum  = errors.New("checksum mismatch")
)

var (
	beginMarker  = []byte("8=")
	lengthMarker = []byte("9=")
)

// trailerLen is len("10=NNN\x01").
const trailerLen = 7

// MaxBodyLength caps the declared BodyLength. Larger values are treated as
// corrupt rather than buffered for.
const MaxBodyLength = 1 << 20

// Parser frames messages out of a byte stream. It is not safe for
// concurrent use; the transport read loop owns it.
type Parser struct {
	buf []byte
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Append adds received bytes to the internal buffer.
func (p *Parser) Append(data []byte) {
	p.buf = append(p.buf, data...)
}

// Buffered returns the number of bytes not yet consumed.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Next returns the next complete message. It returns (nil, nil) when more
// data is needed. A malformed or corrupt frame is discarded and reported;
// calling Next again continues with the remaining bytes.
func (p *Parser) Next() (*Message, error) {
	start := bytes.Index(p.buf, beginMarker)
	if start < 0 {
		// Keep a trailing '8' in case the marker is split across reads.
		if n := len(p.buf); n > 0 && p.buf[n-1] == '8' {
			p.buf = p.buf[n-1:]
		} else {
			p.buf = p.buf[:0]
		}
		return nil, nil
	}
	if start > 0 {
		p.buf = p.buf[start:]
	}

	beginEnd := bytes.IndexByte(p.buf, SOH)
	if beginEnd < 0 {
		return nil, nil
	}

	rest := p.buf[beginEnd+1:]
	if len(rest) < len(lengthMarker) {
		return nil, nil
	}
	if !bytes.HasPrefix(rest, lengthMarker) {
		p.skip()
		return nil, fmt.Errorf("%w: BodyLength must follow BeginString", ErrMalformed)
	}
	lengthEnd := bytes.IndexByte(rest, SOH)
	if lengthEnd < 0 {
		return nil, nil
	}
	bodyLen, err := strconv.Atoi(string(rest[len(lengthMarker):lengthEnd]))
	if err != nil || bodyLen < 0 || bodyLen > MaxBodyLength {
		p.skip()
		return nil, fmt.Errorf("%w: invalid BodyLength %q", ErrMalformed, rest[len(lengthMarker):lengthEnd])
	}

	bodyStart := beginEnd + 1 + lengthEnd + 1
	bodyEnd := bodyStart + bodyLen
	frameEnd := bodyEnd + trailerLen
	if len(p.buf) < frameEnd {
		return nil, nil
	}

	trailer := p.buf[bodyEnd:frameEnd]
	if !bytes.HasPrefix(trailer, []byte("10=")) || trailer[trailerLen-1] != SOH {
		p.skip()
		return nil, fmt.Errorf("%w: CheckSum not found at declared BodyLength", ErrMalformed)
	}
	want, err := strconv.Atoi(string(trailer[3:6]))
	if err != nil {
		p.skip()
		return nil, fmt.Errorf("%w: invalid CheckSum %q", ErrMalformed, trailer[3:6])
	}
	if got := checksum(p.buf[:bodyEnd]); got != want {
		p.skip()
		return nil, fmt.Errorf("%w: got %03d, want %03d", ErrChecksum, got, want)
	}

	msg, err := decodeFields(p.buf[:frameEnd])
	p.buf = p.buf[frameEnd:]
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// skip drops the current BeginString marker so the next search resumes
// past it.
func (p *Parser) skip() {
	p.buf = p.buf[len(beginMarker):]
}

// Decode parses a single complete frame.
func Decode(frame []byte) (*Message, error) {
	p := NewParser()
	p.Append(frame)
	msg, err := p.Next()
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: incomplete frame", ErrMalformed)
	}
	return msg, nil
}

func decodeFields(frame []byte) (*Message, error) {
	msg := &Message{fields: make([]Field, 0, bytes.Count(frame, []byte{SOH}))}
	for len(frame) > 0 {
		end := bytes.IndexByte(frame, SOH)
		if end < 0 {
			end = len(frame)
		}
		raw := frame[:end]
		if end < len(frame) {
			frame = frame[end+1:]
		} else {
			frame = nil
		}

		eq := bytes.IndexByte(raw, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: field %q has no tag", ErrMalformed, raw)
		}
		tag, err := strconv.Atoi(string(raw[:eq]))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tag %q", ErrMalformed, raw[:eq])
		}
		msg.fields = append(msg.fields, Field{Tag: tag, Value: string(raw[eq+1:])})
	}
	return msg, nil
}
