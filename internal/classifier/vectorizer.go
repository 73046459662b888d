package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Feature is one non-zero entry of a document vector.
type Feature struct {
	Index int
	Value float64
}

// Features is a sparse document vector ordered by vocabulary index, so
// scoring sums in a fixed order and repeated calls agree bit for bit.
type Features []Feature

// vectorizerArtifact is the JSON export of a fitted TF-IDF vectorizer.
type vectorizerArtifact struct {
	Vocabulary   map[string]int `json:"vocabulary"`
	IDF          []float64      `json:"idf"`
	NgramRange   [2]int         `json:"ngram_range"`
	TokenPattern string         `json:"token_pattern"`
	Lowercase    *bool          `json:"lowercase"`
	SublinearTF  bool           `json:"sublinear_tf"`
	Norm         *string        `json:"norm"`
	StopWords    []string       `json:"stop_words"`
}

const defaultTokenPattern = `(?u)\b\w\w+\b`

// Vectorizer turns normalized text into TF-IDF features. It mirrors the
// fitted vectorizer the classifier was trained against and is read-only
// after construction.
type Vectorizer struct {
	vocabulary  map[string]int
	idf         []float64
	minN, maxN  int
	token       *regexp.Regexp
	lowercase   bool
	sublinearTF bool
	norm        string
	stopWords   map[string]struct{}
}

// LoadVectorizer reads a vectorizer artifact from path.
func LoadVectorizer(path string) (*Vectorizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vectorizer: %w", err)
	}
	var a vectorizerArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode vectorizer %s: %w", path, err)
	}
	return newVectorizer(a)
}

func newVectorizer(a vectorizerArtifact) (*Vectorizer, error) {
	if len(a.Vocabulary) == 0 {
		return nil, fmt.Errorf("vectorizer has an empty vocabulary")
	}
	if len(a.IDF) != len(a.Vocabulary) {
		return nil, fmt.Errorf("vectorizer idf has %d entries for %d terms", len(a.IDF), len(a.Vocabulary))
	}
	for term, idx := range a.Vocabulary {
		if idx < 0 || idx >= len(a.IDF) {
			return nil, fmt.Errorf("vectorizer term %q has out of range index %d", term, idx)
		}
	}

	minN, maxN := a.NgramRange[0], a.NgramRange[1]
	if minN == 0 && maxN == 0 {
		minN, maxN = 1, 1
	}
	if minN < 1 || maxN < minN {
		return nil, fmt.Errorf("invalid ngram_range [%d,%d]", minN, maxN)
	}

	pattern := a.TokenPattern
	if pattern == "" {
		pattern = defaultTokenPattern
	}
	// RE2 has no unicode flag; \w and \b are ASCII here, which is all the
	// normalizer lets through.
	pattern = strings.TrimPrefix(pattern, "(?u)")
	token, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile token pattern %q: %w", a.TokenPattern, err)
	}
	if token.NumSubexp() > 1 {
		return nil, fmt.Errorf("token pattern %q has more than one capture group", a.TokenPattern)
	}

	norm := "l2"
	if a.Norm != nil {
		norm = *a.Norm
	}
	switch norm {
	case "l1", "l2", "":
	default:
		return nil, fmt.Errorf("unsupported norm %q", norm)
	}

	stop := make(map[string]struct{}, len(a.StopWords))
	for _, w := range a.StopWords {
		stop[w] = struct{}{}
	}

	return &Vectorizer{
		vocabulary:  a.Vocabulary,
		idf:         a.IDF,
		minN:        minN,
		maxN:        maxN,
		token:       token,
		lowercase:   a.Lowercase == nil || *a.Lowercase,
		sublinearTF: a.SublinearTF,
		norm:        norm,
		stopWords:   stop,
	}, nil
}

// Size is the number of features the vectorizer produces.
func (v *Vectorizer) Size() int {
	return len(v.idf)
}

// Transform maps text to its TF-IDF vector. Text with no known terms yields
// an empty vector.
func (v *Vectorizer) Transform(text string) Features {
	if v.lowercase {
		text = strings.ToLower(text)
	}

	counts := make(map[int]int)
	for _, term := range v.ngrams(v.tokens(text)) {
		if idx, ok := v.vocabulary[term]; ok {
			counts[idx]++
		}
	}

	features := make(Features, 0, len(counts))
	for idx, n := range counts {
		features = append(features, Feature{Index: idx, Value: float64(n)})
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Index < features[j].Index })

	var total float64
	for i, f := range features {
		tf := f.Value
		if v.sublinearTF {
			tf = 1 + math.Log(tf)
		}
		w := tf * v.idf[f.Index]
		features[i].Value = w
		switch v.norm {
		case "l2":
			total += w * w
		case "l1":
			total += math.Abs(w)
		}
	}

	if v.norm == "l2" {
		total = math.Sqrt(total)
	}
	if v.norm != "" && total > 0 {
		for i := range features {
			features[i].Value /= total
		}
	}
	return features
}

func (v *Vectorizer) tokens(text string) []string {
	var out []string
	for _, m := range v.token.FindAllStringSubmatch(text, -1) {
		tok := m[len(m)-1]
		if _, stop := v.stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ngrams expands tokens into the configured word n-grams, unigrams first.
func (v *Vectorizer) ngrams(tokens []string) []string {
	if v.maxN == 1 {
		return tokens
	}
	var out []string
	for n := v.minN; n <= v.maxN && n <= len(tokens); n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
