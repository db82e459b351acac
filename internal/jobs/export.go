package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/repository"
	"github.com/mantlz/mantlz/internal/storage"
)

// Exporter writes a user's forms and submissions to object storage.
type Exporter struct {
	queries repository.Querier
	storage storage.Storage
	clock   domain.Clock
	logger  *slog.Logger
}

// NewExporter creates a new Exporter.
func NewExporter(queries repository.Querier, storage storage.Storage, clock domain.Clock, logger *slog.Logger) *Exporter {
	return &Exporter{
		queries: queries,
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

type exportDocument struct {
	UserID     string       `json:"userId"`
	Period     string       `json:"period"`
	ExportedAt time.Time    `json:"exportedAt"`
	Forms      []exportForm `json:"forms"`
}

type exportForm struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	FormType    string             `json:"formType"`
	CreatedAt   time.Time          `json:"createdAt"`
	Submissions []exportSubmission `json:"submissions"`
}

type exportSubmission struct {
	ID        uuid.UUID       `json:"id"`
	Email     string          `json:"email,omitempty"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Export stores a JSON archive of the user's forms and submissions and
// returns a download URL. A user without forms has nothing to archive and
// gets an empty URL.
func (e *Exporter) Export(ctx context.Context, userID string, period domain.Period) (string, error) {
	forms, err := e.queries.ListFormsByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list forms: %w", err)
	}
	if len(forms) == 0 {
		return "", nil
	}

	ids := make([]uuid.UUID, len(forms))
	for i, f := range forms {
		ids[i] = f.ID
	}
	subs, err := e.queries.ListSubmissionsByFormIDs(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("list submissions: %w", err)
	}

	byForm := make(map[uuid.UUID][]exportSubmission, len(forms))
	for _, s := range subs {
		byForm[s.FormID] = append(byForm[s.FormID], exportSubmission{
			ID:        s.ID,
			Email:     domain.NullStringValue(s.Email),
			Data:      s.Data,
			CreatedAt: s.CreatedAt,
		})
	}

	doc := exportDocument{
		UserID:     userID,
		Period:     period.String(),
		ExportedAt: e.clock.Now().UTC(),
		Forms:      make([]exportForm, 0, len(forms)),
	}
	for _, f := range forms {
		doc.Forms = append(doc.Forms, exportForm{
			ID:          f.ID,
			Name:        f.Name,
			FormType:    f.FormType,
			CreatedAt:   f.CreatedAt,
			Submissions: append([]exportSubmission{}, byForm[f.ID]...),
		})
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}

	key := storage.ExportKey(userID, period)
	if err := e.storage.Put(ctx, key, bytes.NewReader(body), storage.PutOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("store export: %w", err)
	}

	url, err := e.storage.URL(ctx, key, storage.DefaultURLExpiry)
	if err != nil {
		return "", fmt.Errorf("export url: %w", err)
	}

	e.logger.Info("user data exported",
		"user_id", userID,
		"period", period.String(),
		"key", key,
		"forms", len(forms),
		"submissions", len(subs),
	)
	return url, nil
}
