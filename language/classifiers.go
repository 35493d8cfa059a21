package language

import (
	"errors"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/pemistahl/lingua-go"
	"github.com/rylans/getlang"
)

// classifierKind indexes the fixed classifier slots. The order is the tie-break
// priority order and must not change: lingua is trusted most on short text,
// whatlang's trigram model is favored once a message has enough words, and
// getlang cross-validates.
type classifierKind int

const (
	kindLingua classifierKind = iota
	kindWhatlang
	kindGetlang
	numClassifiers
)

func (k classifierKind) String() string {
	switch k {
	case kindLingua:
		return "lingua"
	case kindWhatlang:
		return "whatlang"
	case kindGetlang:
		return "getlang"
	}
	return "unknown"
}

// classifier is the uniform surface over the three backends. Predict returns an
// ISO-639-1 code and a confidence in [0,1].
type classifier interface {
	Predict(text string) (lang string, confidence float64, err error)
}

var errNoPrediction = errors.New("classifier produced no prediction")

type linguaClassifier struct {
	detector lingua.LanguageDetector
}

func newLinguaClassifier() (classifier, error) {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllSpokenLanguages().
		Build()
	return &linguaClassifier{detector: detector}, nil
}

func (c *linguaClassifier) Predict(text string) (string, float64, error) {
	values := c.detector.ComputeLanguageConfidenceValues(text)
	if len(values) == 0 {
		return "", 0, errNoPrediction
	}
	top := values[0]
	code := strings.ToLower(top.Language().IsoCode639_1().String())
	if code == "" {
		return "", 0, errNoPrediction
	}
	return code, top.Value(), nil
}

type whatlangClassifier struct{}

func newWhatlangClassifier() (classifier, error) { return whatlangClassifier{}, nil }

func (whatlangClassifier) Predict(text string) (string, float64, error) {
	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return "", 0, errNoPrediction
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return "", 0, errNoPrediction
	}
	return code, info.Confidence, nil
}

type getlangClassifier struct{}

func newGetlangClassifier() (classifier, error) { return getlangClassifier{}, nil }

func (getlangClassifier) Predict(text string) (string, float64, error) {
	info := getlang.FromString(text)
	code := info.LanguageCode()
	if code == "" || code == "und" {
		return "", 0, errNoPrediction
	}
	return code, info.Confidence(), nil
}
