// Package ask orchestrates the natural-language query path: discover the
// owner's schema, translate the question, validate and repair the
// candidate statement, and execute the survivor.
package ask

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mr-cto/rapiddatachat/internal/domain"
	"github.com/mr-cto/rapiddatachat/internal/service/discovery"
	"github.com/mr-cto/rapiddatachat/internal/service/query"
)

type Service struct {
	discovery  *discovery.Service
	translator domain.Translator
	queries    *query.Service
	logger     *slog.Logger
}

func NewService(disc *discovery.Service, translator domain.Translator, queries *query.Service, logger *slog.Logger) *Service {
	return &Service{discovery: disc, translator: translator, queries: queries, logger: logger}
}

// Result is the full outcome of one question. Exactly one of Advisory
// and Page is set on success: Advisory carries a prose answer when the
// question has no executable translation, Page carries data.
type Result struct {
	Question    string            `json:"question"`
	SQL         string            `json:"sql,omitempty"`
	Explanation string            `json:"explanation,omitempty"`
	Advisory    string            `json:"advisory,omitempty"`
	Page        *domain.QueryPage `json:"page,omitempty"`
}

// Ask answers a natural-language question against the owner's sources.
func (s *Service) Ask(ctx context.Context, ownerID, question string, opts domain.QueryOptions) (*Result, error) {
	if question == "" {
		return nil, domain.ErrValidation("question must not be empty")
	}
	if s.translator == nil {
		return nil, domain.ErrValidation("natural-language queries are disabled: no translator configured")
	}

	tables, err := s.discovery.DiscoverSchema(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return &Result{
			Question: question,
			Advisory: "You have no queryable data sources yet. Upload a file to get started.",
		}, nil
	}

	schemaText := discovery.FormatSchemaForPrompt(tables)
	sampleText := discovery.FormatSampleRows(tables)

	translation, err := s.translator.TranslateToSQL(ctx, question, schemaText, sampleText)
	if err != nil {
		return nil, fmt.Errorf("translate question: %w", err)
	}

	prep := s.queries.Prepare(ctx, translation.SQL, opts)
	if !prep.IsValid {
		s.logger.Info("question resolved without execution", "owner", ownerID, "reason", prep.Error)
		return &Result{
			Question:    question,
			SQL:         prep.SQLQuery,
			Explanation: translation.Explanation,
			Advisory:    prep.Error,
		}, nil
	}

	page, err := s.queries.Execute(ctx, prep.SQLQuery, opts)
	if err != nil {
		return nil, err
	}

	return &Result{
		Question:    question,
		SQL:         page.SQL,
		Explanation: translation.Explanation,
		Page:        page,
	}, nil
}
