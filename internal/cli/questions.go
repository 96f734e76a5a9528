package cli

import (
	"fmt"
	"os"
	"strings"

	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/postgres"
	infraredis "arena-quiz-service/internal/infra/redis"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const defaultImportTimeLimit = 20

// NewQuestionsCmd groups question set management commands.
func NewQuestionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage stored question sets",
	}
	cmd.AddCommand(newQuestionsImportCmd(configPath))
	return cmd
}

func newQuestionsImportCmd(configPath *string) *cobra.Command {
	var (
		id     string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Validate a JSON question set and store it in Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			set, err := parseQuestionSet(data, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "question set %q is valid (%d questions)\n", set.ID, len(set.Questions))
				return nil
			}

			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			db := postgres.OpenBun(cfg.Postgres.URL)
			defer db.Close()
			if err := postgres.NewQuestionSetWriter(db).SaveQuestionSet(cmd.Context(), set); err != nil {
				return err
			}
			if client := newRedisClient(cfg); client != nil {
				defer client.Close()
				cache := infraredis.NewQuestionSetRepository(client, nil, 0)
				if err := cache.Invalidate(cmd.Context(), set.ID); err != nil {
					log.Warn("question set cache not invalidated", zap.String("set", set.ID), zap.Error(err))
				}
			}
			log.Info("question set imported", zap.String("set", set.ID), zap.Int("questions", len(set.Questions)))
			fmt.Fprintf(out, "imported %q (%d questions)\n", set.ID, len(set.Questions))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "question set id (overrides the id in the file)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only")
	return cmd
}

// parseQuestionSet reads the authoring format used by hosts. Questions may spell fields
// as text/question, options/choices and correctOption/answer; options may be plain
// strings or objects with text and an optional correct flag; answer may name the
// correct option's text instead of its index.
func parseQuestionSet(data []byte, id string) (domain.QuestionSet, error) {
	if !gjson.ValidBytes(data) {
		return domain.QuestionSet{}, fmt.Errorf("%w: file is not valid JSON", domain.ErrInvalidQuestions)
	}
	doc := gjson.ParseBytes(data)
	set := domain.QuestionSet{
		ID:    firstOf(doc, "id").String(),
		Title: firstOf(doc, "title", "name").String(),
	}
	if id != "" {
		set.ID = id
	}
	if strings.TrimSpace(set.ID) == "" {
		return domain.QuestionSet{}, fmt.Errorf("%w: question set id is required", domain.ErrInvalidQuestions)
	}
	if set.Title == "" {
		set.Title = set.ID
	}

	questions := firstOf(doc, "questions")
	if !questions.IsArray() {
		return domain.QuestionSet{}, fmt.Errorf("%w: questions must be an array", domain.ErrInvalidQuestions)
	}
	for i, raw := range questions.Array() {
		q, err := parseQuestion(raw, i)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		set.Questions = append(set.Questions, q)
	}
	if err := domain.ValidateQuestions(set.Questions); err != nil {
		return domain.QuestionSet{}, err
	}
	return set, nil
}

func parseQuestion(raw gjson.Result, i int) (domain.Question, error) {
	q := domain.Question{
		ID:            firstOf(raw, "id").String(),
		Text:          strings.TrimSpace(firstOf(raw, "text", "question", "prompt").String()),
		TimeLimit:     int(firstOf(raw, "timeLimit", "time_limit", "seconds").Int()),
		CorrectOption: -1,
	}
	if q.ID == "" {
		q.ID = fmt.Sprintf("q%d", i+1)
	}
	if q.TimeLimit == 0 {
		q.TimeLimit = defaultImportTimeLimit
	}

	for j, opt := range firstOf(raw, "options", "choices").Array() {
		if opt.IsObject() {
			q.Options = append(q.Options, strings.TrimSpace(opt.Get("text").String()))
			if opt.Get("correct").Bool() {
				q.CorrectOption = j
			}
			continue
		}
		q.Options = append(q.Options, strings.TrimSpace(opt.String()))
	}

	answer := firstOf(raw, "correctOption", "correct_option", "answer")
	switch answer.Type {
	case gjson.Number:
		q.CorrectOption = int(answer.Int())
	case gjson.String:
		for j, text := range q.Options {
			if strings.EqualFold(text, strings.TrimSpace(answer.String())) {
				q.CorrectOption = j
			}
		}
	}
	if q.CorrectOption < 0 {
		return q, fmt.Errorf("%w: question %d: correct option missing or unknown", domain.ErrInvalidQuestions, i+1)
	}
	return q, nil
}

func firstOf(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
