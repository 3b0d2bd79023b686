package ingest

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

// rtfDestinations are groups whose content is never document text.
var rtfDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "header": true, "footer": true, "headerl": true,
	"headerr": true, "footerl": true, "footerr": true, "object": true,
	"listtable": true, "listoverridetable": true, "rsidtbl": true,
	"generator": true, "themedata": true, "colorschememapping": true,
	"datastore": true, "latentstyles": true, "xmlnstbl": true,
	"fldinst": true, "filetbl": true, "revtbl": true,
}

type rtfGroup struct {
	skip bool
	uc   int
}

// rtfToText converts a rich-text document into plain text, keeping
// paragraph breaks so %-tagged lines survive.
func rtfToText(src string) string {
	var out strings.Builder
	stack := []rtfGroup{{uc: 1}}
	cur := func() *rtfGroup { return &stack[len(stack)-1] }
	pendingSkip := 0
	rs := []rune(src)

	emit := func(r rune) {
		if pendingSkip > 0 {
			pendingSkip--
			return
		}
		if !cur().skip {
			out.WriteRune(r)
		}
	}

	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch c {
		case '{':
			stack = append(stack, *cur())
		case '}':
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case '\r', '\n':
			// Raw line breaks carry no meaning in RTF.
		case '\\':
			if i+1 >= len(rs) {
				continue
			}
			next := rs[i+1]
			switch {
			case next == '\\' || next == '{' || next == '}':
				emit(next)
				i++
			case next == '*':
				cur().skip = true
				i++
			case next == '\'':
				if i+3 < len(rs) {
					if b, err := strconv.ParseUint(string(rs[i+2:i+4]), 16, 8); err == nil {
						emit(decodeCP1252(byte(b)))
					}
				}
				i += 3
			case next == '~':
				emit(' ')
				i++
			case next == '_':
				emit('-')
				i++
			case next == '\n' || next == '\r':
				emit('\n')
				i++
			case unicode.IsLetter(next):
				j := i + 1
				for j < len(rs) && unicode.IsLetter(rs[j]) && rs[j] < unicode.MaxASCII {
					j++
				}
				word := string(rs[i+1 : j])
				k := j
				if k < len(rs) && (rs[k] == '-' || unicode.IsDigit(rs[k])) {
					k++
					for k < len(rs) && unicode.IsDigit(rs[k]) {
						k++
					}
				}
				param, hasParam := 0, false
				if k > j {
					if n, err := strconv.Atoi(string(rs[j:k])); err == nil {
						param, hasParam = n, true
					}
				}
				if k < len(rs) && rs[k] == ' ' {
					k++
				}
				i = k - 1

				switch {
				case word == "par" || word == "line" || word == "sect" || word == "row":
					emit('\n')
				case word == "tab" || word == "cell":
					emit('\t')
				case word == "uc" && hasParam:
					cur().uc = param
				case word == "u" && hasParam:
					if param < 0 {
						param += 65536
					}
					emit(rune(param))
					pendingSkip = cur().uc
				case rtfDestinations[word]:
					cur().skip = true
				}
			default:
				i++
			}
		default:
			emit(c)
		}
	}
	return out.String()
}

func decodeCP1252(b byte) rune {
	return charmap.Windows1252.DecodeByte(b)
}

// isRTF reports whether data starts like a rich-text document.
func isRTF(data []byte) bool {
	s := strings.TrimLeft(string(data[:min(len(data), 16)]), "\ufeff \t\r\n")
	return strings.HasPrefix(s, `{\rtf`)
}
