// backend/src/services/classification_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/username/finloader/backend/src/config"
	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/oracle"
	"github.com/username/finloader/backend/src/rules"
	"github.com/username/finloader/backend/src/snapshots"
)

var ErrUnknownStatementType = errors.New("unknown statement type")

// classifierPrompts maps statement types to their prompt template names.
var classifierPrompts = map[models.StatementType]string{
	models.IncomeStatement: "classify_income_statement",
	models.BalanceSheet:    "classify_balance_sheet",
}

type classificationServiceImpl struct {
	client    *oracle.Client
	prompts   *oracle.PromptStore
	manager   *snapshots.Manager
	companies *CompanyStore
	ruleFiles *rules.FileStore
	email     EmailService

	// Snapshot read cache, shared with the correction service so that an
	// applied correction replaces the cached entry instead of serving stale.
	snapshotCache *gocache.Cache
}

func NewClassificationService(client *oracle.Client, prompts *oracle.PromptStore, manager *snapshots.Manager, companies *CompanyStore, ruleFiles *rules.FileStore, email EmailService, snapshotCache *gocache.Cache) ClassificationService {
	return &classificationServiceImpl{
		client:        client,
		prompts:       prompts,
		manager:       manager,
		companies:     companies,
		ruleFiles:     ruleFiles,
		email:         email,
		snapshotCache: snapshotCache,
	}
}

// ClassifyStatement sends the extracted line items through the classifying
// oracle together with the company's accumulated classification context, then
// derives and persists a snapshot from the response.
func (s *classificationServiceImpl) ClassifyStatement(ctx context.Context, companyID int64, stmt models.StatementType, period string, lineItems map[string]*float64) (*ClassificationResult, error) {
	promptName, ok := classifierPrompts[stmt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatementType, stmt)
	}

	company, err := s.companies.Get(companyID)
	if err != nil {
		return nil, err
	}

	ruleStore, err := s.ruleFiles.Load(company.Name)
	if err != nil {
		return nil, err
	}
	companyContext := ""
	if ruleStore.RuleCount() > 0 {
		companyContext = rules.RenderMarkdown(ruleStore)
	}

	itemsJSON, err := json.MarshalIndent(lineItems, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal line items: %w", err)
	}

	prompt, err := s.prompts.Render(promptName, map[string]string{
		"line_items":      string(itemsJSON),
		"company_context": companyContext,
	})
	if err != nil {
		return nil, err
	}

	logger.L.Info("Classifying statement",
		"company", company.Name, "statement", stmt, "period", period,
		"lineItems", len(lineItems), "contextRules", ruleStore.RuleCount())

	response, err := s.client.Complete(ctx, config.Cfg.ClassifierModel, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("classification oracle call failed: %w", err)
	}

	raw, err := oracle.ExtractJSON(response)
	if err != nil {
		return nil, fmt.Errorf("classification response unparseable: %w", err)
	}

	assignment, validations, err := splitClassifierResponse(raw)
	if err != nil {
		return nil, err
	}

	snap, err := s.manager.CreateFromAssignment(*company, stmt, period, assignment)
	if err != nil {
		return nil, err
	}
	s.snapshotCache.Set(snap.ID, snap, gocache.DefaultExpiration)

	s.notifyIfFlagged(snap)

	return &ClassificationResult{
		Snapshot:      snap,
		FlaggedFields: snap.FlaggedFields(),
		Validations:   validations,
	}, nil
}

// DeriveStatement builds a snapshot directly from a caller-supplied
// assignment, bypassing the oracle. Used for re-deriving edited data and for
// statements classified elsewhere.
func (s *classificationServiceImpl) DeriveStatement(companyID int64, stmt models.StatementType, period string, assignment models.LeafAssignment) (*models.Snapshot, error) {
	if stmt != models.IncomeStatement && stmt != models.BalanceSheet {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatementType, stmt)
	}
	company, err := s.companies.Get(companyID)
	if err != nil {
		return nil, err
	}
	snap, err := s.manager.CreateFromAssignment(*company, stmt, period, assignment)
	if err != nil {
		return nil, err
	}
	s.snapshotCache.Set(snap.ID, snap, gocache.DefaultExpiration)
	s.notifyIfFlagged(snap)
	return snap, nil
}

func (s *classificationServiceImpl) GetSnapshot(id string) (*models.Snapshot, error) {
	if cached, ok := s.snapshotCache.Get(id); ok {
		if snap, ok := cached.(*models.Snapshot); ok {
			return snap, nil
		}
	}
	snap, err := s.manager.Store().Get(id)
	if err != nil {
		return nil, err
	}
	s.snapshotCache.Set(id, snap, gocache.DefaultExpiration)
	return snap, nil
}

// notifyIfFlagged emails the review inbox when a freshly derived snapshot
// still carries flags. Delivery failure never fails the classification.
func (s *classificationServiceImpl) notifyIfFlagged(snap *models.Snapshot) {
	if config.Cfg == nil || config.Cfg.ReviewNotifyEmail == "" {
		return
	}
	flagged := snap.FlaggedFields()
	failed := snap.Report.Failed()
	if len(flagged) == 0 && len(failed) == 0 {
		return
	}
	if err := s.email.SendFlaggedReviewEmail(config.Cfg.ReviewNotifyEmail, snap.CompanyName, snap.Period, flagged, failed); err != nil {
		logger.L.Warn("Failed to send flagged review email", "error", err, "snapshotId", snap.ID)
	}
}

const flaggedSuffix = "__FLAGGED"

// splitClassifierResponse splits the oracle's JSON into the assignment and
// the validation-to-field mapping. The response may be flat
// ({"Total Revenue": 123, ...}) or nested under section keys
// ({"REVENUE": {"Total Revenue": 123}}); REASONING and VALIDATION are
// reserved keys, and a __FLAGGED suffix on a field name marks low
// confidence.
func splitClassifierResponse(raw json.RawMessage) (models.LeafAssignment, map[string][]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return models.LeafAssignment{}, nil, fmt.Errorf("classification response is not a JSON object: %w", err)
	}

	assignment := models.LeafAssignment{
		Values:      make(map[string]*float64),
		Annotations: make(map[string]models.FlagAnnotation),
		Reasoning:   make(map[string]string),
	}
	validationRaw := make(map[string]string)

	addField := func(name string, value json.RawMessage) {
		clean := strings.TrimSpace(strings.ReplaceAll(name, flaggedSuffix, ""))
		// JSON null unmarshals into a plain float64 as a silent no-op, which
		// would turn "unreported" into 0. Keep nulls null.
		var num *float64
		if strings.TrimSpace(string(value)) != "null" {
			var f float64
			if err := json.Unmarshal(value, &f); err == nil {
				val := f
				num = &val
			}
		}
		assignment.Values[clean] = num
		if strings.Contains(name, flaggedSuffix) {
			assignment.Annotations[clean] = models.FlagAnnotation{Reason: "classifier low confidence"}
		}
	}

	for key, val := range top {
		switch key {
		case "REASONING":
			var reasoning map[string]string
			if err := json.Unmarshal(val, &reasoning); err == nil {
				for field, text := range reasoning {
					assignment.Reasoning[strings.TrimSpace(field)] = text
				}
			}
		case "VALIDATION":
			var checks map[string]json.RawMessage
			if err := json.Unmarshal(val, &checks); err != nil {
				continue
			}
			for name, data := range checks {
				var structured struct {
					Status  string `json:"status"`
					Details string `json:"details"`
				}
				if err := json.Unmarshal(data, &structured); err == nil && structured.Status != "" {
					validationRaw[name] = structured.Status + " " + structured.Details
					continue
				}
				var text string
				if err := json.Unmarshal(data, &text); err == nil {
					validationRaw[name] = text
				}
			}
		default:
			if strings.HasPrefix(strings.TrimSpace(string(val)), "{") {
				// Nested section, flatten into the assignment.
				var nested map[string]json.RawMessage
				if err := json.Unmarshal(val, &nested); err == nil {
					for field, fieldVal := range nested {
						addField(field, fieldVal)
					}
					continue
				}
			}
			addField(key, val)
		}
	}

	return assignment, mapValidationsToFields(validationRaw, assignment.Values), nil
}

// mapValidationsToFields finds, for each field, which validation checks
// mention it by name in the check name or details text.
func mapValidationsToFields(validations map[string]string, values map[string]*float64) map[string][]string {
	if len(validations) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for name, text := range validations {
		combined := strings.ToLower(name + " " + text)
		for field := range values {
			if strings.Contains(combined, strings.ToLower(field)) {
				out[field] = append(out[field], name)
			}
		}
	}
	return out
}
