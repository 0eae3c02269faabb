// Package voicecmd detects spoken operator commands in final transcripts
// before they enter the reply pipeline. Matching is fuzzy: Double Metaphone
// codes gate candidates phonetically and Jaro-Winkler similarity ranks them,
// so "clear the conversation" still matches when the transcriber hears
// "clear the conversession".
package voicecmd

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Action is the operation a recognized command maps to.
type Action string

const (
	// ActionPause stops feeding captured audio into the pipeline.
	ActionPause Action = "pause"

	// ActionResume restarts listening after a pause.
	ActionResume Action = "resume"

	// ActionClearMemory drops the conversation history.
	ActionClearMemory Action = "clear-memory"

	// ActionRebuildIndex re-chunks and re-embeds the knowledge base.
	ActionRebuildIndex Action = "rebuild-index"

	// ActionShutdown ends the session.
	ActionShutdown Action = "shutdown"
)

// Phrase binds one spoken form to an action. Several phrases may map to the
// same action.
type Phrase struct {
	Text   string
	Action Action
}

// DefaultPhrases is the built-in command vocabulary.
func DefaultPhrases() []Phrase {
	return []Phrase{
		{"stop listening", ActionPause},
		{"pause listening", ActionPause},
		{"start listening", ActionResume},
		{"resume listening", ActionResume},
		{"clear the conversation", ActionClearMemory},
		{"forget everything", ActionClearMemory},
		{"reload the knowledge base", ActionRebuildIndex},
		{"rebuild the knowledge base", ActionRebuildIndex},
		{"goodbye assistant", ActionShutdown},
		{"shut down", ActionShutdown},
	}
}

const (
	defaultPhoneticThreshold = 0.75
	defaultFuzzyThreshold    = 0.88
)

// Match is the result of a successful detection.
type Match struct {
	Action Action

	// Phrase is the vocabulary entry that matched.
	Phrase string

	// Confidence is the Jaro-Winkler score of the winning phrase.
	Confidence float64
}

// Option configures a Filter.
type Option func(*Filter)

// WithPhrases replaces the built-in vocabulary.
func WithPhrases(phrases []Phrase) Option {
	return func(f *Filter) { f.phrases = phrases }
}

// WithPhoneticThreshold sets the minimum similarity accepted for a phrase
// that shares phonetic codes with the transcript. Default: 0.75.
func WithPhoneticThreshold(threshold float64) Option {
	return func(f *Filter) { f.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity when no phonetic overlap
// exists. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(f *Filter) { f.fuzzyThreshold = threshold }
}

// Filter matches transcripts against the command vocabulary. It is read-only
// after construction and safe for concurrent use.
type Filter struct {
	phrases           []Phrase
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Filter with the default vocabulary and thresholds, modified
// by opts.
func New(opts ...Option) *Filter {
	f := &Filter{
		phrases:           DefaultPhrases(),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Check tests whether text is a spoken command. The transcript must be a
// command on its own: command words embedded in a longer utterance do not
// trigger ("please don't shut down my laptop" passes through).
func (f *Filter) Check(text string) (Match, bool) {
	input := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(text), ".,!?")))
	if input == "" {
		return Match{}, false
	}
	inputTokens := strings.Fields(input)
	inputCodes := codesFor(inputTokens)

	var best Match
	for _, p := range f.phrases {
		phrase := strings.ToLower(p.Text)
		phraseTokens := strings.Fields(phrase)

		// A command transcript has roughly as many words as the phrase.
		// Anything two words longer is conversation, not a command.
		if len(inputTokens) > len(phraseTokens)+1 {
			continue
		}

		score := similarity(inputTokens, phraseTokens, input, phrase)
		threshold := f.fuzzyThreshold
		if codesOverlap(inputCodes, codesFor(phraseTokens)) {
			threshold = f.phoneticThreshold
		}
		if score >= threshold && score > best.Confidence {
			best = Match{Action: p.Action, Phrase: p.Text, Confidence: score}
		}
	}
	return best, best.Phrase != ""
}

// codesFor returns the union of Double Metaphone codes for the tokens.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity returns the best Jaro-Winkler score between transcript and
// phrase: full strings, space-stripped strings, or the mean of best pairwise
// token scores.
func similarity(inputTokens, phraseTokens []string, inputFull, phraseFull string) float64 {
	score := matchr.JaroWinkler(inputFull, phraseFull, false)

	if s := matchr.JaroWinkler(
		strings.Join(inputTokens, ""),
		strings.Join(phraseTokens, ""),
		false,
	); s > score {
		score = s
	}

	// Mean of per-phrase-token best matches. Unlike a max it still demands
	// that every word of the phrase was heard.
	if len(phraseTokens) > 0 {
		var sum float64
		for _, pt := range phraseTokens {
			var bestTok float64
			for _, it := range inputTokens {
				if s := matchr.JaroWinkler(it, pt, false); s > bestTok {
					bestTok = s
				}
			}
			sum += bestTok
		}
		if mean := sum / float64(len(phraseTokens)); mean > score {
			score = mean
		}
	}
	return score
}
