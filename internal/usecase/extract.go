package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"commission-intake/internal/domain"
)

const (
	defaultSummary = "Custom commission"
	maxNameTokens  = 4
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// ExtractEmail returns the first substring shaped like local@domain.tld.
func ExtractEmail(text string) (string, bool) {
	m := emailPattern.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

// AskedForName reports whether an assistant turn solicited the customer's name.
func AskedForName(assistantTurn string) bool {
	lower := strings.ToLower(assistantTurn)
	return strings.Contains(lower, "name") && strings.Contains(lower, "provide")
}

// LooksLikeName reports whether text is plausibly a short personal name
// given in reply to previousAssistant. Text carrying an email never counts.
func LooksLikeName(text, previousAssistant string) bool {
	if !AskedForName(previousAssistant) {
		return false
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(tokens) > maxNameTokens {
		return false
	}
	_, hasEmail := ExtractEmail(text)
	return !hasEmail
}

// Vocabulary is the keyword table behind the fallback summary.
type Vocabulary struct {
	Items  []string `json:"items"`
	Colors []string `json:"colors"`
	Styles []string `json:"styles"`

	items  *regexp.Regexp
	colors *regexp.Regexp
	styles *regexp.Regexp
}

func DefaultVocabulary() *Vocabulary {
	v, _ := NewVocabulary(
		[]string{"coffee cup", "mug", "ceramic", "pottery", "wood", "jewelry", "metal", "sculpture", "bowl", "plate", "vase", "furniture", "piece"},
		[]string{"red", "blue", "green", "yellow", "purple", "pink", "black", "white", "brown", "gold", "silver"},
		[]string{"small", "large", "tiny", "huge", "modern", "rustic", "elegant", "simple", "complex", "unique", "custom", "special"},
	)
	return v
}

func NewVocabulary(items, colors, styles []string) (*Vocabulary, error) {
	v := &Vocabulary{
		Items:  normalizeTerms(items),
		Colors: normalizeTerms(colors),
		Styles: normalizeTerms(styles),
	}
	if len(v.Items)+len(v.Colors)+len(v.Styles) == 0 {
		return nil, errors.New("usecase: vocabulary has no terms")
	}
	v.items = termPattern(v.Items)
	v.colors = termPattern(v.Colors)
	v.styles = termPattern(v.Styles)
	return v, nil
}

// ParseVocabulary decodes a JSON vocabulary document such as the one kept
// in parameter store.
func ParseVocabulary(raw string) (*Vocabulary, error) {
	var doc Vocabulary
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &doc); err != nil {
		return nil, fmt.Errorf("usecase: decode vocabulary: %w", err)
	}
	return NewVocabulary(doc.Items, doc.Colors, doc.Styles)
}

// Summarize builds a one-line description from the customer turns of a
// transcript: latest color, latest style, then the latest item in place of
// "commission". Returns "Custom commission" when nothing matches.
func (v *Vocabulary) Summarize(transcript []domain.Message) string {
	var parts []string
	for _, m := range transcript {
		if m.Role == domain.RoleCustomer {
			parts = append(parts, m.Content)
		}
	}
	text := strings.ToLower(strings.Join(parts, " "))

	var words []string
	if c := lastMatch(v.colors, text); c != "" {
		words = append(words, c)
	}
	if s := lastMatch(v.styles, text); s != "" {
		words = append(words, s)
	}
	if item := lastMatch(v.items, text); item != "" {
		if len(words) == 0 {
			words = append(words, "custom")
		}
		words = append(words, item)
	} else {
		words = append(words, strings.Fields(strings.ToLower(defaultSummary))...)
	}
	return capitalize(strings.Join(dedupeAdjacent(words), " "))
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.Join(strings.Fields(t), " "))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// termPattern matches any whole term, optionally pluralised; the first
// group holds the base term. Longer terms come first so that "coffee cup"
// wins over a shorter overlapping term.
func termPattern(terms []string) *regexp.Regexp {
	if len(terms) == 0 {
		return nil
	}
	sorted := append([]string(nil), terms...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, t := range sorted {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)(?:e?s)?\b`)
}

func lastMatch(re *regexp.Regexp, text string) string {
	if re == nil {
		return ""
	}
	all := re.FindAllStringSubmatch(text, -1)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1][1]
}

func dedupeAdjacent(words []string) []string {
	out := words[:0:0]
	for _, w := range words {
		if len(out) > 0 && out[len(out)-1] == w {
			continue
		}
		out = append(out, w)
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
