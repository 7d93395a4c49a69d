package gsioc

import (
	"golang.org/x/text/encoding/charmap"
)

// Response is the answer of a device to an immediate command.
type Response struct {
	// Raw holds the received bytes with the end-of-message marker removed
	// from the last byte.
	Raw []byte
	// Text is Raw decoded as ISO-8859-1.
	Text string
}

// newResponse builds a Response from the accumulated bytes of an immediate
// command. data is modified in place.
func newResponse(data []byte) *Response {
	if n := len(data); n > 0 && data[n-1]&lastCharBit != 0 {
		data[n-1] &^= lastCharBit
	}

	return &Response{Raw: data, Text: decodeText(data)}
}

// Len returns the number of raw bytes.
func (r *Response) Len() int {
	return len(r.Raw)
}

// String implements fmt.Stringer.
func (r *Response) String() string {
	return r.Text
}

// decodeText maps each byte to one rune.
func decodeText(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	// ISO-8859-1 defines all 256 byte values, the decoder never fails
	text, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)

	return string(text)
}
