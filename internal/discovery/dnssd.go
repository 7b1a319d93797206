package discovery

import (
	"strconv"
	"strings"
)

// DecodeDNSSDEscape decodes DNS-SD instance name escape sequences
// ("\DDD" decimal-byte escapes, and "\." / "\\" literal escapes) into
// UTF-8 text.
func DecodeDNSSDEscape(s string) string {
	var out strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '\\' {
			out.WriteRune(runes[i])
			continue
		}
		if i+3 < len(runes) && isDigit(runes[i+1]) && isDigit(runes[i+2]) && isDigit(runes[i+3]) {
			n, err := strconv.Atoi(string(runes[i+1 : i+4]))
			if err == nil && n <= 255 {
				out.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		if i+1 < len(runes) {
			out.WriteRune(runes[i+1])
			i++
			continue
		}
		out.WriteRune(runes[i])
	}
	return out.String()
}

// EncodeDNSSDEscape is DecodeDNSSDEscape's inverse: it escapes '.' and '\\'
// literally and any other byte outside printable ASCII as "\DDD", so that
// DecodeDNSSDEscape(EncodeDNSSDEscape(s)) == s for any s.
func EncodeDNSSDEscape(s string) string {
	var out strings.Builder
	for _, b := range []byte(s) {
		switch {
		case b == '.' || b == '\\':
			out.WriteByte('\\')
			out.WriteByte(b)
		case b < 0x20 || b > 0x7e:
			out.WriteByte('\\')
			out.WriteString(pad3(int(b)))
		default:
			out.WriteByte(b)
		}
	}
	return out.String()
}

func pad3(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
