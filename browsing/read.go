package browsing

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
)

// ReadFile returns the whole file as text. Content that is not valid UTF-8
// fails with a KindOther error wrapping ErrInvalidUTF8.
func (b *Browser) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ioError(err)
	}
	if !utf8.Valid(data) {
		return "", decodeError(data)
	}
	return string(data), nil
}

func decodeError(data []byte) error {
	msg := "Utf8Error"
	if charset := detectCharset(data); charset != "" {
		msg += " (detected " + charset + ")"
	}
	return &Error{Kind: KindOther, Msg: msg, Err: ErrInvalidUTF8}
}

// detectCharset guesses the encoding of data; "" when unknown or UTF-8.
func detectCharset(data []byte) string {
	const sample = 64 << 10
	if len(data) > sample {
		data = data[:sample]
	}
	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || res == nil {
		return ""
	}
	if strings.EqualFold(res.Charset, "UTF-8") {
		return ""
	}
	return res.Charset
}
