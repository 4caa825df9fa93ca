package index

import (
	"sort"
	"strings"
	"unicode"
)

// MaxTags bounds the tags carried by one record.
const MaxTags = 8

// Vocabulary maps each controlled tag to its trigger phrases. A trigger ending
// in '*' matches any word with that prefix; other triggers match whole words.
type Vocabulary map[string][]string

// DefaultVocabulary covers the go-to-market research domain.
var DefaultVocabulary = Vocabulary{
	"pricing":      {"pric*", "cost*", "per seat", "subscription*", "discount*", "tier*", "freemium"},
	"sales-cycle":  {"sales cycle*", "deal cycle*", "procurement", "time to close", "sales process*", "deal size*"},
	"competitors":  {"competitor*", "competitive", "competition", "rival*", "alternative*", "vs"},
	"icp":          {"icp", "ideal customer*", "persona*", "buyer*", "segment*", "target customer*"},
	"market-size":  {"market size", "tam", "sam", "som", "market share", "growth rate", "cagr"},
	"partnerships": {"partner*", "channel*", "reseller*", "alliance*", "marketplace*"},
	"funding":      {"funding", "funded", "raised", "series a", "series b", "series c", "investor*", "valuation*", "venture"},
	"hiring":       {"hiring", "hire*", "headcount", "job posting*", "recruit*", "employees"},
	"product":      {"product*", "feature*", "roadmap*", "launch*", "platform*"},
	"customers":    {"customer*", "case stud*", "testimonial*", "churn", "retention", "logo*"},
	"technology":   {"technolog*", "tech stack*", "api*", "infrastructure", "ai", "cloud", "integration*"},
	"regulation":   {"regulat*", "compliance", "gdpr", "soc 2", "hipaa", "legal"},
	"geography":    {"region*", "europe*", "emea", "apac", "north america*", "countr*", "geograph*", "latam"},
	"go-to-market": {"go to market", "gtm", "marketing", "outbound", "inbound", "demand gen*", "positioning"},
	"risk":         {"risk*", "threat*", "lawsuit*", "layoff*", "decline*"},
}

// Tags returns up to MaxTags vocabulary tags triggered by texts. Tags with
// more hits win; the result is sorted alphabetically.
func (v Vocabulary) Tags(texts ...string) []string {
	words := " " + normalize(strings.Join(texts, " ")) + " "
	hits := make(map[string]int)
	for tag, triggers := range v {
		for _, trig := range triggers {
			hits[tag] += count(words, trig)
		}
		if hits[tag] == 0 {
			delete(hits, tag)
		}
	}

	tags := make([]string, 0, len(hits))
	for tag := range hits {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if hits[tags[i]] != hits[tags[j]] {
			return hits[tags[i]] > hits[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}
	sort.Strings(tags)
	return tags
}

// Contains reports whether tag belongs to the vocabulary.
func (v Vocabulary) Contains(tag string) bool {
	_, ok := v[tag]
	return ok
}

func count(words, trigger string) int {
	if stem, ok := strings.CutSuffix(trigger, "*"); ok {
		return strings.Count(words, " "+stem)
	}
	return strings.Count(words, " "+trigger+" ")
}

// normalize lowercases s and replaces everything but letters and digits with
// single spaces.
func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}
