// Package segmenter splits message bodies into parts that each fit a single SMS.
package segmenter

import "unicode/utf8"

// Encoding is the SMS data coding a body will be sent with.
type Encoding int

const (
	GSM7 Encoding = iota
	UCS2
)

func (e Encoding) String() string {
	if e == UCS2 {
		return "UCS-2"
	}
	return "GSM-7"
}

// Per-part capacities. GSM-7 is counted in septets, UCS-2 in UTF-16 code units.
// Concatenated parts lose room to the user data header.
const (
	GSM7SingleLimit = 160
	GSM7MultiLimit  = 153
	UCS2SingleLimit = 70
	UCS2MultiLimit  = 67
)

// GSM 03.38 default alphabet, escape excluded.
const gsmBasic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

// Extension table characters, each sent as escape plus one septet.
const gsmExtension = "\f^{}\\[~]|€"

var (
	basicSet     = runeSet(gsmBasic)
	extensionSet = runeSet(gsmExtension)
)

func runeSet(chars string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		set[r] = struct{}{}
	}
	return set
}

// Segmenter implements the split used by the outbound state machine.
type Segmenter struct{}

func New() *Segmenter { return &Segmenter{} }

func (*Segmenter) Split(body string) []string { return Split(body) }

// Detect returns the encoding body requires. Bytes that are not valid UTF-8
// are counted as one unit each and do not force UCS-2.
func Detect(body string) Encoding {
	for i := 0; i < len(body); {
		r, size := utf8.DecodeRuneInString(body[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if _, ok := basicSet[r]; ok {
			continue
		}
		if _, ok := extensionSet[r]; ok {
			continue
		}
		return UCS2
	}
	return GSM7
}

// Split returns the ordered parts of body. A body that fits one SMS comes back
// as a single element, an empty body as one empty part. Characters are never
// divided across parts, and the parts concatenate back to body byte for byte.
func Split(body string) []string {
	enc := Detect(body)
	cost, single, multi := gsmCost, GSM7SingleLimit, GSM7MultiLimit
	if enc == UCS2 {
		cost, single, multi = ucs2Cost, UCS2SingleLimit, UCS2MultiLimit
	}

	total := 0
	for i := 0; i < len(body); {
		c, size := unitAt(body, i, cost)
		total += c
		i += size
	}
	if total <= single {
		return []string{body}
	}

	var parts []string
	start, used := 0, 0
	for i := 0; i < len(body); {
		c, size := unitAt(body, i, cost)
		if used+c > multi {
			parts = append(parts, body[start:i])
			start, used = i, 0
		}
		used += c
		i += size
	}
	if start < len(body) {
		parts = append(parts, body[start:])
	}
	return parts
}

// unitAt reports the cost and byte width of the character starting at body[i].
// An invalid byte is a single unit of width one.
func unitAt(body string, i int, cost func(rune) int) (int, int) {
	r, size := utf8.DecodeRuneInString(body[i:])
	if r == utf8.RuneError && size == 1 {
		return 1, 1
	}
	return cost(r), size
}

func gsmCost(r rune) int {
	if _, ok := extensionSet[r]; ok {
		return 2
	}
	return 1
}

func ucs2Cost(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}
