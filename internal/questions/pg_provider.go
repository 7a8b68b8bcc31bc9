package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"coderace/internal/services/race"
)

const randomQuestionQ = `
	SELECT id, coalesce(title,''), coalesce(prompt,''), coalesce(description,''),
	       coalesce(starting_code,''), public_tests, private_tests
	  FROM questions
	 ORDER BY random()
	 LIMIT 1`

// PgProvider picks a random row from the questions table.
type PgProvider struct {
	db *sql.DB
}

var _ race.QuestionProvider = (*PgProvider)(nil)

func NewPgProvider(db *sql.DB) *PgProvider { return &PgProvider{db: db} }

func (p *PgProvider) GetQuestion(ctx context.Context) (race.Question, error) {
	var (
		rec                record
		id                 string
		publicRaw, privRaw []byte
	)
	err := p.db.QueryRowContext(ctx, randomQuestionQ).Scan(
		&id, &rec.Title, &rec.Prompt, &rec.Description, &rec.StartingCode,
		&publicRaw, &privRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return race.Question{}, ErrNoQuestions
	}
	if err != nil {
		return race.Question{}, err
	}
	rec.ID = id

	if err := decodeTests(publicRaw, &rec.PublicTests); err != nil {
		return race.Question{}, fmt.Errorf("question %s public_tests: %w", id, err)
	}
	if err := decodeTests(privRaw, &rec.PrivateTests); err != nil {
		return race.Question{}, fmt.Errorf("question %s private_tests: %w", id, err)
	}
	return rec.question(), nil
}

func decodeTests(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
