package certificate

import "strings"

// Georgian national romanisation, used when no Unicode font is configured
var georgian = map[rune]string{
	'ა': "a", 'ბ': "b", 'გ': "g", 'დ': "d", 'ე': "e", 'ვ': "v", 'ზ': "z",
	'თ': "t", 'ი': "i", 'კ': "k'", 'ლ': "l", 'მ': "m", 'ნ': "n", 'ო': "o",
	'პ': "p'", 'ჟ': "zh", 'რ': "r", 'ს': "s", 'ტ': "t'", 'უ': "u", 'ფ': "p",
	'ქ': "k", 'ღ': "gh", 'ყ': "q'", 'შ': "sh", 'ჩ': "ch", 'ც': "ts", 'ძ': "dz",
	'წ': "ts'", 'ჭ': "ch'", 'ხ': "kh", 'ჯ': "j", 'ჰ': "h",
}

// Transliterate replaces Georgian letters with Latin ones and drops anything
// outside Latin-1, which the built-in PDF fonts cannot draw
func Transliterate(s string) string {
	var b strings.Builder
	capitalize := true
	for _, r := range s {
		if lat, ok := georgian[r]; ok {
			if capitalize {
				lat = strings.ToUpper(lat[:1]) + lat[1:]
			}
			b.WriteString(lat)
			capitalize = false
			continue
		}
		if r > 0xFF {
			r = '?'
		}
		b.WriteRune(r)
		capitalize = r == ' ' || r == '-'
	}
	return b.String()
}
