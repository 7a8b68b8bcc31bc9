package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"coderace/internal/services/race"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileProvider serves a random question from a list loaded at startup.
type FileProvider struct {
	questions []race.Question
}

var _ race.QuestionProvider = (*FileProvider)(nil)

// LoadFile reads a JSON array of questions, or a YAML list when the file
// ends in .yaml or .yml.
func LoadFile(path string) (*FileProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	var p *FileProvider
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		p, err = ParseYAML(raw)
	default:
		p, err = Parse(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	zap.L().Info("questions loaded", zap.String("file", path), zap.Int("count", len(p.questions)))
	return p, nil
}

func Parse(raw []byte) (*FileProvider, error) {
	var recs []record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}
	return fromRecords(recs)
}

func ParseYAML(raw []byte) (*FileProvider, error) {
	var recs []record
	if err := yaml.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}
	return fromRecords(recs)
}

func fromRecords(recs []record) (*FileProvider, error) {
	if len(recs) == 0 {
		return nil, ErrNoQuestions
	}
	qs := make([]race.Question, len(recs))
	for i, r := range recs {
		qs[i] = r.question()
		if qs[i].ID == "" {
			qs[i].ID = fmt.Sprint(i + 1)
		}
	}
	return &FileProvider{questions: qs}, nil
}

func (p *FileProvider) GetQuestion(_ context.Context) (race.Question, error) {
	if len(p.questions) == 0 {
		return race.Question{}, ErrNoQuestions
	}
	return p.questions[rand.IntN(len(p.questions))], nil
}

func (p *FileProvider) Len() int { return len(p.questions) }
