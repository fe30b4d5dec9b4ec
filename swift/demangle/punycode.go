package demangle

import (
	"fmt"
	"strings"
)

const (
	punycodeBase        = 36
	punycodeTmin        = 1
	punycodeTmax        = 26
	punycodeSkew        = 38
	punycodeDamp        = 700
	punycodeInitialBias = 72
	punycodeInitialN    = 128
	punycodeDelimiter   = '-'
)

// decodeSwiftPunycode undoes Swift's punycode variant, which spells the
// digits 26-35 as 'A'-'J' and uses '_' as the delimiter.
func decodeSwiftPunycode(encoded string) (string, error) {
	if encoded == "" {
		return "", fmt.Errorf("%w: empty punycode payload", ErrMalformed)
	}
	var prefix, body string
	if idx := strings.LastIndexByte(encoded, '_'); idx >= 0 {
		prefix, body = encoded[:idx], encoded[idx+1:]
	} else {
		body = encoded
	}
	var translated strings.Builder
	translated.Grow(len(encoded) + 1)
	if prefix != "" {
		translated.WriteString(prefix)
		translated.WriteByte(punycodeDelimiter)
	}
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch >= 'A' && ch <= 'J' {
			translated.WriteByte('0' + (ch - 'A'))
		} else {
			translated.WriteByte(ch)
		}
	}
	return decodePunycode(translated.String())
}

func decodePunycode(input string) (string, error) {
	n := punycodeInitialN
	i := 0
	bias := punycodeInitialBias
	var output []rune
	pos := 0
	if idx := strings.LastIndexByte(input, punycodeDelimiter); idx >= 0 {
		for _, r := range input[:idx] {
			if r >= 0x80 {
				return "", fmt.Errorf("%w: non-basic code point %q in punycode prefix", ErrMalformed, r)
			}
			output = append(output, r)
		}
		pos = idx + 1
	}
	for pos < len(input) {
		oldi := i
		w := 1
		for k := punycodeBase; ; k += punycodeBase {
			if pos >= len(input) {
				return "", fmt.Errorf("%w: truncated punycode input", ErrMalformed)
			}
			digit, ok := decodePunycodeDigit(input[pos])
			if !ok {
				return "", fmt.Errorf("%w: invalid punycode digit %q", ErrMalformed, input[pos])
			}
			pos++
			i += digit * w
			t := k - bias
			if t < punycodeTmin {
				t = punycodeTmin
			} else if t > punycodeTmax {
				t = punycodeTmax
			}
			if digit < t {
				break
			}
			w *= punycodeBase - t
		}
		bias = adaptPunycodeBias(i-oldi, len(output)+1, oldi == 0)
		n += i / (len(output) + 1)
		i %= len(output) + 1
		output = append(output, 0)
		copy(output[i+1:], output[i:])
		output[i] = rune(n)
		i++
	}
	return string(output), nil
}

func decodePunycodeDigit(b byte) (int, bool) {
	switch {
	case b >= 'a' && b <= 'z':
		return int(b - 'a'), true
	case b >= '0' && b <= '9':
		return int(b-'0') + 26, true
	default:
		return 0, false
	}
}

func adaptPunycodeBias(delta, numPoints int, firstTime bool) int {
	if firstTime {
		delta /= punycodeDamp
	} else {
		delta /= 2
	}
	delta += delta / numPoints
	k := 0
	for delta > ((punycodeBase-punycodeTmin)*punycodeTmax)/2 {
		delta /= punycodeBase - punycodeTmin
		k += punycodeBase
	}
	return k + (punycodeBase-punycodeTmin+1)*delta/(delta+punycodeSkew)
}
