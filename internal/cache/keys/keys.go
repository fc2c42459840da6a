// Package keys builds the Redis keys used by the report cache.
package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
)

// GenerationKey holds the report generation counter. Bumping it orphans
// every cached report at once.
const GenerationKey = "report:gen"

const coordPrecision = 6

// ReportKey addresses a cached report by the parcel's anchor cell, the
// current generation and the ring fingerprint.
func ReportKey(cell string, gen int64, fingerprint uint64) string {
	return fmt.Sprintf("report:%s:g%d:%016x", sanitizeForKey(cell), gen, fingerprint)
}

// IndexKey is the set of report keys touching a cell.
func IndexKey(cell string) string {
	return "reportidx:" + sanitizeForKey(cell)
}

// Fingerprint hashes a boundary ring together with the CRS its coordinates
// are expressed in. Coordinates are fixed to six decimals so that the same
// survey parsed twice hashes identically.
func Fingerprint(ring orb.Ring, sourceCRS string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(normalizeCRS(sourceCRS))
	buf := make([]byte, 0, 48)
	for _, p := range ring {
		buf = buf[:0]
		buf = append(buf, '|')
		buf = strconv.AppendFloat(buf, p[0], 'f', coordPrecision, 64)
		buf = append(buf, ',')
		buf = strconv.AppendFloat(buf, p[1], 'f', coordPrecision, 64)
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}

func normalizeCRS(s string) string {
	return strings.ToUpper(collapseASCIIWhitespace(s))
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// separators and non-ASCII runes collapse to '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
