package synthesis

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// Matcher decides which claims talk about the same thing and whether two
// such claims disagree.
type Matcher interface {
	// Topic returns the normalized topic key of a claim.
	Topic(c core.Claim) string
	// Contradicts reports whether a and b make incompatible assertions.
	Contradicts(a, b core.Claim) bool
}

// maxTopicPrefix bounds the "Topic: assertion" prefix recognized as a topic.
const maxTopicPrefix = 60

// TopicMatcher is the default Matcher. A claim's topic is its explicit topic,
// else the text before a leading colon ("Sales cycle: 6-9 months"), else the
// whole normalized text. Two claims contradict when they share a topic but
// assert different text.
type TopicMatcher struct{}

var _ Matcher = TopicMatcher{}

// Topic implements Matcher.
func (TopicMatcher) Topic(c core.Claim) string {
	if t := core.NormalizeText(c.Topic); t != "" {
		return t
	}
	return TopicOf(c.Text)
}

// Contradicts implements Matcher.
func (m TopicMatcher) Contradicts(a, b core.Claim) bool {
	return m.Topic(a) == m.Topic(b) && core.NormalizeText(a.Text) != core.NormalizeText(b.Text)
}

// TopicOf derives a topic key from claim text.
func TopicOf(text string) string {
	if prefix, _, ok := strings.Cut(text, ":"); ok && utf8.RuneCountInString(prefix) <= maxTopicPrefix {
		if t := core.NormalizeText(prefix); t != "" {
			return t
		}
	}
	return core.NormalizeText(text)
}

// SourceRater grades a single source.
type SourceRater interface {
	Rate(source string) core.Confidence
}

// SourceRaterFunc adapts a function to SourceRater.
type SourceRaterFunc func(source string) core.Confidence

// Rate implements SourceRater.
func (f SourceRaterFunc) Rate(source string) core.Confidence { return f(source) }

// URLRater rates a well-formed http(s) URL High and anything else Low, so an
// unverifiable citation caps its claim at Low.
var URLRater = SourceRaterFunc(func(source string) core.Confidence {
	u, err := url.Parse(strings.TrimSpace(source))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return core.ConfidenceLow
	}
	return core.ConfidenceHigh
})

// Effective caps reported at the weakest source. A claim without sources is Low.
func Effective(reported core.Confidence, sources []string, rater SourceRater) core.Confidence {
	if len(sources) == 0 {
		return core.ConfidenceLow
	}
	conf := reported
	for _, s := range sources {
		conf = core.MinConfidence(conf, rater.Rate(s))
	}
	if conf.Rank() == 0 {
		return core.ConfidenceLow
	}
	return conf
}
