package questions

import (
	"errors"
	"fmt"

	"coderace/internal/services/race"
)

var ErrNoQuestions = errors.New("no questions available")

// record is the stored shape of a question, private tests included.
type record struct {
	ID           any      `json:"id"            yaml:"id"`
	Title        string   `json:"title"         yaml:"title"`
	Prompt       string   `json:"prompt"        yaml:"prompt"`
	Description  string   `json:"description"   yaml:"description"`
	StartingCode string   `json:"starting_code" yaml:"starting_code"`
	PublicTests  []string `json:"public_tests"  yaml:"public_tests"`
	PrivateTests []string `json:"private_tests" yaml:"private_tests"`
}

func (r record) question() race.Question {
	q := race.Question{
		Title:        r.Title,
		Prompt:       r.Prompt,
		Description:  r.Description,
		StartingCode: r.StartingCode,
		PublicTests:  r.PublicTests,
		PrivateTests: r.PrivateTests,
	}
	if r.ID != nil {
		q.ID = fmt.Sprint(r.ID)
	}
	if q.Prompt == "" {
		q.Prompt = r.Description
	}
	if q.PublicTests == nil {
		q.PublicTests = []string{}
	}
	if q.PrivateTests == nil {
		q.PrivateTests = []string{}
	}
	return q
}
