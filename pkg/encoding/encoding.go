// Package encoding provides text encoding utilities for imported scene files.
//
// XML documents may declare any IANA charset; binary scene files store names
// in a single configured charset (UTF-8 by default, EUC-KR for legacy
// content).
package encoding

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	xenc "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// Common charset names.
const (
	UTF8  = "utf-8"
	EUCKR = "euc-kr"
)

// Lookup returns the encoding registered under name. UTF-8 and the empty name
// return nil, meaning no transcoding is needed.
func Lookup(name string) (xenc.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", UTF8, "utf8", "us-ascii":
		return nil, nil
	case EUCKR, "cp949", "ks_c_5601-1987":
		return korean.EUCKR, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
	return enc, nil
}

// CharsetReader matches encoding/xml's Decoder.CharsetReader signature.
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := Lookup(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// NameDecoder converts raw name bytes into UTF-8 strings.
type NameDecoder struct {
	enc xenc.Encoding
}

// NewNameDecoder returns a decoder for the named charset.
func NewNameDecoder(charset string) (*NameDecoder, error) {
	enc, err := Lookup(charset)
	if err != nil {
		return nil, err
	}
	return &NameDecoder{enc: enc}, nil
}

// Decode converts data to UTF-8. Trailing NULs are dropped. Bytes that
// cannot be decoded are returned unchanged.
func (d *NameDecoder) Decode(data []byte) string {
	data = TrimNullBytes(data)
	if d == nil || d.enc == nil {
		return string(data)
	}
	result, _, err := transform.Bytes(d.enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// Encode converts s from UTF-8 into the decoder's charset. Used by tests and
// tooling that build binary fixtures.
func (d *NameDecoder) Encode(s string) []byte {
	if d == nil || d.enc == nil {
		return []byte(s)
	}
	result, _, err := transform.Bytes(d.enc.NewEncoder(), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// NormalizePath normalizes an asset path for case-insensitive lookup.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "./")
	return strings.ToLower(path)
}

// TrimNullBytes removes trailing null bytes from a byte slice.
func TrimNullBytes(data []byte) []byte {
	return bytes.TrimRight(data, "\x00")
}
