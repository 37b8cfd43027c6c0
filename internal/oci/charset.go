package oci

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Charset is a native character set id.
type Charset uint16

const (
	CharsetWE8ISO8859P1 Charset = 31
	CharsetEE8ISO8859P2 Charset = 32
	CharsetAL32UTF8     Charset = 873
)

// ParseCharset resolves a character set by its database name.
func ParseCharset(name string) (Charset, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "AL32UTF8", "UTF8", "UTF-8":
		return CharsetAL32UTF8, nil
	case "WE8ISO8859P1":
		return CharsetWE8ISO8859P1, nil
	case "EE8ISO8859P2":
		return CharsetEE8ISO8859P2, nil
	}
	return 0, fmt.Errorf("unsupported character set %q", name)
}

func (c Charset) String() string {
	switch c {
	case CharsetWE8ISO8859P1:
		return "WE8ISO8859P1"
	case CharsetEE8ISO8859P2:
		return "EE8ISO8859P2"
	case CharsetAL32UTF8:
		return "AL32UTF8"
	}
	return fmt.Sprintf("charset(%d)", uint16(c))
}

func (c Charset) encoding() encoding.Encoding {
	switch c {
	case CharsetWE8ISO8859P1:
		return charmap.ISO8859_1
	case CharsetEE8ISO8859P2:
		return charmap.ISO8859_2
	}
	return nil
}

// Encode converts UTF-8 text into the byte form the charset stores.
// Characters the charset cannot represent are replaced.
func (c Charset) Encode(s string) ([]byte, error) {
	enc := c.encoding()
	if enc == nil {
		return []byte(s), nil
	}
	b, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c, err)
	}
	return b, nil
}

// Decode converts bytes stored in the charset into UTF-8 text.
func (c Charset) Decode(b []byte) (string, error) {
	enc := c.encoding()
	if enc == nil {
		return string(b), nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", c, err)
	}
	return string(out), nil
}
