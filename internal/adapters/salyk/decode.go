package salyk

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeBody renders the response body as text, trying UTF-8, then
// Windows-1251, then Latin-1.
func DecodeBody(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", &FetchError{Kind: KindDecode, Err: ErrDecode, Snippet: "empty body"}
	}

	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}

	for _, cm := range []*charmap.Charmap{charmap.Windows1251, charmap.ISO8859_1} {
		out, err := cm.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		if s := string(out); !strings.ContainsRune(s, utf8.RuneError) {
			return s, nil
		}
	}

	return "", &FetchError{Kind: KindDecode, Err: ErrDecode}
}
