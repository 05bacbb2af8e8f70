package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"
)

// SentimentClassifier is the opaque classification function consumed by handlers.
type SentimentClassifier interface {
	Classify(text string) (label string, confidence float64, err error)
	Info() ModelInfo
}

// ModelInfo describes the loaded model for the introspection endpoint.
type ModelInfo struct {
	ModelType string   `json:"model_type"`
	Classes   []string `json:"classes"`
	Path      string   `json:"model_path"`
}

// bayesModel is the JSON artifact layout: a multinomial naive Bayes model
// exported as vocabulary, per-class log priors and per-class/per-term log
// likelihoods. Each replica loads its own copy at startup.
type bayesModel struct {
	ModelType      string         `json:"model_type"`
	Classes        []string       `json:"classes"`
	ClassLogPrior  []float64      `json:"class_log_prior"`
	Vocabulary     map[string]int `json:"vocabulary"`
	FeatureLogProb [][]float64    `json:"feature_log_prob"`
}

// BayesClassifier scores texts against a loaded bayesModel. It is immutable
// after construction, so concurrent requests share it without locking.
type BayesClassifier struct {
	model bayesModel
	path  string
}

// LoadBayesClassifier reads and validates a model artifact from path.
func LoadBayesClassifier(path string) (*BayesClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}
	var m bayesModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact %s: %w", path, err)
	}
	if err := validateModel(m); err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}
	return &BayesClassifier{model: m, path: path}, nil
}

func validateModel(m bayesModel) error {
	if len(m.Classes) == 0 {
		return errors.New("no classes")
	}
	if len(m.ClassLogPrior) != len(m.Classes) {
		return errors.New("class_log_prior length mismatch")
	}
	if len(m.FeatureLogProb) != len(m.Classes) {
		return errors.New("feature_log_prob row count mismatch")
	}
	vocabSize := len(m.Vocabulary)
	for _, row := range m.FeatureLogProb {
		if len(row) != vocabSize {
			return errors.New("feature_log_prob column count mismatch")
		}
	}
	for term, idx := range m.Vocabulary {
		if idx < 0 || idx >= vocabSize {
			return fmt.Errorf("vocabulary index out of range for term %q", term)
		}
	}
	return nil
}

// Classify returns the highest-posterior class and its normalized probability.
// Terms outside the vocabulary contribute nothing, matching multinomial NB
// behaviour on unseen features.
func (c *BayesClassifier) Classify(text string) (string, float64, error) {
	if strings.TrimSpace(text) == "" {
		return "", 0, errors.New("empty text")
	}

	scores := make([]float64, len(c.model.Classes))
	copy(scores, c.model.ClassLogPrior)
	for _, term := range tokenize(text) {
		idx, ok := c.model.Vocabulary[term]
		if !ok {
			continue
		}
		for class := range scores {
			scores[class] += c.model.FeatureLogProb[class][idx]
		}
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}

	// Normalize via log-sum-exp so confidence is a proper posterior in [0,1].
	maxScore := scores[best]
	var sum float64
	for _, s := range scores {
		sum += math.Exp(s - maxScore)
	}
	confidence := 1.0 / sum

	return c.model.Classes[best], confidence, nil
}

func (c *BayesClassifier) Info() ModelInfo {
	return ModelInfo{
		ModelType: firstNonEmpty(c.model.ModelType, "multinomial_nb"),
		Classes:   c.model.Classes,
		Path:      c.path,
	}
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
