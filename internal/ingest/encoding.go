package ingest

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// textEncoding is one candidate decoding for uploaded text.
type textEncoding struct {
	name   string
	decode func([]byte) (string, bool)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// defaultEncodings is the priority order tried for delimited text.
var defaultEncodings = []textEncoding{
	{"utf-8", decodeUTF8},
	{"utf-8-sig", decodeUTF8Sig},
	{"gbk", strictDecoder(simplifiedchinese.GBK)},
	{"latin-1", strictDecoder(charmap.ISO8859_1)},
}

var cp1252 = textEncoding{"cp1252", strictDecoder(charmap.Windows1252)}

// chardetNames maps detector charset names to candidate names.
var chardetNames = map[string]string{
	"UTF-8":        "utf-8",
	"GB-18030":     "gbk",
	"ISO-8859-1":   "latin-1",
	"windows-1252": "cp1252",
}

// minConfidence is the detector confidence needed to promote its guess.
const minConfidence = 80

func decodeUTF8(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

func decodeUTF8Sig(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// strictDecoder wraps an x/text decoder so that introducing replacement
// characters counts as a failed decode.
func strictDecoder(enc encoding.Encoding) func([]byte) (string, bool) {
	return func(b []byte) (string, bool) {
		out, err := enc.NewDecoder().Bytes(b)
		if err != nil {
			return "", false
		}
		if bytes.ContainsRune(out, utf8.RuneError) && !bytes.ContainsRune(b, utf8.RuneError) {
			return "", false
		}
		return string(out), true
	}
}

// candidateEncodings returns the encodings to try for data. A confident
// detector guess moves to the front; the rest keep their priority order.
func candidateEncodings(data []byte) []textEncoding {
	out := append([]textEncoding(nil), defaultEncodings...)
	if bytes.HasPrefix(data, utf8BOM) && utf8.Valid(data) {
		return append([]textEncoding{out[1], out[0]}, out[2:]...)
	}

	sample := data
	if len(sample) > 64*1024 {
		sample = sample[:64*1024]
	}
	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil || res.Confidence < minConfidence {
		return out
	}
	name, ok := chardetNames[res.Charset]
	if !ok {
		return out
	}
	if name == "cp1252" {
		return append([]textEncoding{cp1252}, out...)
	}
	for i, enc := range out {
		if enc.name == name {
			return append(append([]textEncoding{enc}, out[:i]...), out[i+1:]...)
		}
	}
	return out
}

// decodeFirst returns the text under the first candidate that decodes.
func decodeFirst(data []byte) (string, string, bool) {
	for _, enc := range candidateEncodings(data) {
		if s, ok := enc.decode(data); ok {
			return s, enc.name, true
		}
	}
	return "", "", false
}

// preview returns a short, single-line-safe excerpt for error messages.
func preview(data []byte) string {
	s, _, ok := decodeFirst(data)
	if !ok {
		s = string(data)
	}
	s = strings.ToValidUTF8(s, "?")
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200])
	}
	return s
}
