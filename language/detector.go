// Package language implements ensemble language detection for chat messages.
// Up to three independent classifiers run on every input; their results are
// combined by a consensus vote with a confidence-weighted tie-break. The
// ensemble degrades gracefully to however many classifiers initialized and
// fails only when none did.
package language

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/chatcore/telemetry"
)

// DefaultMinLength is the minimum post-preprocessing rune count accepted by
// DetectLanguage when DetectOptions.MinLength is zero.
const DefaultMinLength = 10

// Calibration constants. These are part of the observable contract: the fixed
// confidences signal how the result was reached (full agreement, majority,
// tie-break rank) and downstream thresholds depend on them.
const (
	fullAgreementConfidence = 0.95
	majorityConfidence      = 0.90
	disagreementPenalty     = 0.9
	shortTextTrust          = 0.85
	longTextWordCount       = 5
	whatlangFallback        = 0.80
	getlangFallback         = 0.75
	lastResortConfidence    = 0.70
)

// ErrTextTooShort is returned for input that is empty or below the minimum
// length after preprocessing. Input-validation failure, never retried.
var ErrTextTooShort = errors.New("text too short for language detection")

// ErrDetectionFailed is returned when no classifier produced a result. Unlike
// dependency errors elsewhere, this is re-raised: there is no safe default language.
var ErrDetectionFailed = errors.New("all language classifiers failed")

// Result is one detection outcome: an ISO-639-1 code and a confidence in [0,1].
type Result struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// DetectOptions tunes a single DetectLanguage call.
type DetectOptions struct {
	// MinLength is the minimum rune count; 0 means DefaultMinLength.
	MinLength int
	// SkipPreprocess runs detection on the raw text.
	SkipPreprocess bool
}

type prediction struct {
	lang       string
	confidence float64
}

// Detector runs the classifier ensemble. Classifiers initialize lazily on
// first use and are immutable afterwards, so a Detector is safe for concurrent
// detection calls.
type Detector struct {
	initOnce    sync.Once
	classifiers [numClassifiers]classifier
	available   int
}

// NewDetector returns a Detector; classifier construction is deferred to the
// first DetectLanguage or HealthCheck call.
func NewDetector() *Detector { return &Detector{} }

// newDetectorWithClassifiers injects classifiers directly; nil slots are
// treated as unavailable backends. Test seam.
func newDetectorWithClassifiers(cs [numClassifiers]classifier) *Detector {
	d := &Detector{classifiers: cs}
	for _, c := range cs {
		if c != nil {
			d.available++
		}
	}
	d.initOnce.Do(func() {})
	return d
}

func (d *Detector) ensureInit() {
	d.initOnce.Do(func() {
		constructors := [numClassifiers]func() (classifier, error){
			kindLingua:   newLinguaClassifier,
			kindWhatlang: newWhatlangClassifier,
			kindGetlang:  newGetlangClassifier,
		}
		for kind, construct := range constructors {
			c, err := construct()
			if err != nil {
				slog.Warn("language classifier unavailable",
					slog.String("classifier", classifierKind(kind).String()),
					slog.Any("err", err),
					slog.String("component", "language"))
				continue
			}
			d.classifiers[kind] = c
			d.available++
		}
		slog.Info("language ensemble initialized",
			slog.Int("classifiers", d.available),
			slog.String("component", "language"))
	})
}

// HealthCheck reports whether at least one classifier initialized.
func (d *Detector) HealthCheck() bool {
	d.ensureInit()
	return d.available > 0
}

// DetectLanguage classifies text with default options.
func (d *Detector) DetectLanguage(text string) (Result, error) {
	return d.DetectLanguageWith(text, DetectOptions{})
}

// DetectLanguageWith runs preprocessing (unless skipped), validates length,
// runs every available classifier, and combines the results. It returns
// ErrTextTooShort for invalid input and ErrDetectionFailed when no classifier
// produced output; both are matchable with errors.Is.
func (d *Detector) DetectLanguageWith(text string, opts DetectOptions) (Result, error) {
	d.ensureInit()
	telemetry.Inc(telemetry.DetectionsTotal)
	start := time.Now()

	if !opts.SkipPreprocess {
		text = PreprocessText(text)
	}
	minLength := opts.MinLength
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if n := len([]rune(strings.TrimSpace(text))); n < minLength {
		return Result{}, fmt.Errorf("%w: %d runes after preprocessing, need %d", ErrTextTooShort, n, minLength)
	}

	var results [numClassifiers]*prediction
	for kind, c := range d.classifiers {
		if c == nil {
			continue
		}
		lang, confidence, err := c.Predict(text)
		if err != nil {
			// A failing classifier is excluded, never fatal on its own.
			slog.Debug("classifier failed",
				slog.String("classifier", classifierKind(kind).String()),
				slog.Any("err", err),
				slog.String("component", "language"))
			continue
		}
		results[kind] = &prediction{lang: lang, confidence: confidence}
	}

	result, err := combine(results, countWords(text))
	if telemetry.DetectionDuration != nil {
		telemetry.DetectionDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		telemetry.Inc(telemetry.DetectionsFailed)
		return Result{}, err
	}
	return result, nil
}

func countWords(text string) int { return len(strings.Fields(text)) }

// combine applies the consensus algorithm:
//  1. full agreement → fixed 0.95 ceiling
//  2. any language with ≥2 votes → highest average confidence among its voters, 0.90
//  3. three-way disagreement → weighted tie-break (see tieBreak)
func combine(results [numClassifiers]*prediction, wordCount int) (Result, error) {
	var produced []*prediction
	for _, r := range results {
		if r != nil {
			produced = append(produced, r)
		}
	}
	if len(produced) == 0 {
		return Result{}, ErrDetectionFailed
	}

	unanimous := true
	for _, r := range produced[1:] {
		if r.lang != produced[0].lang {
			unanimous = false
			break
		}
	}
	if unanimous {
		telemetry.Inc(telemetry.DetectionConsensusFull)
		return Result{Language: produced[0].lang, Confidence: fullAgreementConfidence}, nil
	}

	votes := make(map[string][]float64)
	for _, r := range produced {
		votes[r.lang] = append(votes[r.lang], r.confidence)
	}
	bestLang := ""
	bestAvg := -1.0
	for lang, confs := range votes {
		if len(confs) < 2 {
			continue
		}
		sum := 0.0
		for _, c := range confs {
			sum += c
		}
		if avg := sum / float64(len(confs)); avg > bestAvg {
			bestAvg = avg
			bestLang = lang
		}
	}
	if bestLang != "" {
		telemetry.Inc(telemetry.DetectionConsensusMajor)
		return Result{Language: bestLang, Confidence: majorityConfidence}, nil
	}

	telemetry.Inc(telemetry.DetectionTieBreaks)
	return tieBreak(results, wordCount)
}

// tieBreak resolves a three-way disagreement. lingua is the most trustworthy
// detector on short text, but with enough words (>= longTextWordCount) the
// whatlang trigram model tends to be right when the two disagree and lingua is
// still very confident; in that case whatlang wins at a flat 0.80. Otherwise
// lingua wins with a 0.9 disagreement penalty on its own confidence. Without a
// lingua result, the remaining classifiers win at fixed confidences in
// priority order.
func tieBreak(results [numClassifiers]*prediction, wordCount int) (Result, error) {
	lingua := results[kindLingua]
	whatlang := results[kindWhatlang]

	if lingua != nil {
		if lingua.confidence > shortTextTrust && whatlang != nil && whatlang.lang != lingua.lang && wordCount >= longTextWordCount {
			return Result{Language: whatlang.lang, Confidence: whatlangFallback}, nil
		}
		return Result{Language: lingua.lang, Confidence: lingua.confidence * disagreementPenalty}, nil
	}
	if whatlang != nil {
		return Result{Language: whatlang.lang, Confidence: whatlangFallback}, nil
	}
	if getlang := results[kindGetlang]; getlang != nil {
		return Result{Language: getlang.lang, Confidence: getlangFallback}, nil
	}
	for _, r := range results {
		if r != nil {
			return Result{Language: r.lang, Confidence: lastResortConfidence}, nil
		}
	}
	// Unreachable when combine already saw a produced result; kept defensive.
	return Result{}, ErrDetectionFailed
}
