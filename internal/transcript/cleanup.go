package transcript

import (
	"regexp"
	"strings"
)

// Polish morphological suffixes that signal a line-wrapped word split.
var polishSuffixes = []string{
	"ach", "ami", "owie", "ego", "emu", "ych", "ymi", "ością", "ość",
	"anie", "enie", "ować", "cie", "ski", "cka", "cki", "dzki", "stwo",
	"ność", "niem", "niach",
}

// hyphenAllowPrefixes keeps legitimate hyphenated compounds intact.
var hyphenAllowPrefixes = []string{
	"ex-", "wice-", "anty-", "pseudo-", "quasi-", "eks-", "mini-",
}

var (
	hyphenNewline = regexp.MustCompile(`(\p{L}+)-[ \t]*\n[ \t]*(\p{L}+)`)
	hyphenInline  = regexp.MustCompile(`(\p{L}+)-(\p{L}+)`)
)

// repairHyphenation joins words split by line-wrapping hyphens. A trailing
// hyphen before a newline always joins; an inline hyphen joins when the
// second part starts lowercase, the first part is short, or the second part
// carries a Polish morphological suffix. Allow-listed compounds keep their
// hyphen.
func repairHyphenation(s string) string {
	s = hyphenNewline.ReplaceAllStringFunc(s, func(m string) string {
		parts := hyphenNewline.FindStringSubmatch(m)
		if allowHyphen(parts[1], parts[2]) {
			return parts[1] + "-" + parts[2]
		}
		return parts[1] + parts[2]
	})
	s = hyphenInline.ReplaceAllStringFunc(s, func(m string) string {
		parts := hyphenInline.FindStringSubmatch(m)
		w1, w2 := parts[1], parts[2]
		if allowHyphen(w1, w2) {
			return m
		}
		if shouldJoin(w1, w2) {
			return w1 + w2
		}
		return m
	})
	return s
}

func allowHyphen(w1, w2 string) bool {
	joined := strings.ToLower(w1) + "-" + strings.ToLower(w2)
	for _, p := range hyphenAllowPrefixes {
		if strings.HasPrefix(joined, p) {
			return true
		}
	}
	return false
}

func shouldJoin(w1, w2 string) bool {
	r := []rune(w2)
	if len(r) > 0 && strings.ToLower(string(r[0])) == string(r[0]) {
		return true
	}
	if len([]rune(w1)) <= 4 {
		return true
	}
	lw2 := strings.ToLower(w2)
	for _, suf := range polishSuffixes {
		if strings.HasSuffix(lw2, suf) {
			return true
		}
	}
	return false
}

var sittingInfoPatterns = struct {
	sejm, kadencja, posiedzenie, data *regexp.Regexp
}{
	sejm:        regexp.MustCompile(`(?i)(Sejm\s+Rzeczypospolitej\s+Polskiej)`),
	kadencja:    regexp.MustCompile(`(?i)Kadencja\s+([IVXLCDM]+|\d+)`),
	posiedzenie: regexp.MustCompile(`(?i)(\d+)\.\s*posiedzeni|Posiedzenie\s+(\d+)`),
	data:        regexp.MustCompile(`(\d{1,2}\s+\p{Ll}+\s+\d{4})\s*r?\.?|(\d{4}-\d{2}-\d{2})`),
}

// extractSittingInfo assembles sitting metadata from the first 1500 chars of
// the transcript preamble.
func extractSittingInfo(raw, sourceName string) SittingInfo {
	head := raw
	if len(head) > 1500 {
		head = head[:1500]
		// Avoid cutting a UTF-8 sequence in half.
		for len(head) > 0 && head[len(head)-1]&0xC0 == 0x80 {
			head = head[:len(head)-1]
		}
	}
	info := SittingInfo{Plik: sourceName}
	if m := sittingInfoPatterns.sejm.FindStringSubmatch(head); m != nil {
		info.Sejm = m[1]
	}
	if m := sittingInfoPatterns.kadencja.FindStringSubmatch(head); m != nil {
		info.Kadencja = m[1]
	}
	if m := sittingInfoPatterns.posiedzenie.FindStringSubmatch(head); m != nil {
		if m[1] != "" {
			info.Posiedzenie = m[1]
		} else {
			info.Posiedzenie = m[2]
		}
	}
	if m := sittingInfoPatterns.data.FindStringSubmatch(head); m != nil {
		if m[1] != "" {
			info.Data = m[1]
		} else {
			info.Data = m[2]
		}
	}
	return info
}
