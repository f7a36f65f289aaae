// backend/src/services/context_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/username/finloader/backend/src/config"
	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/models"
	"github.com/username/finloader/backend/src/oracle"
	"github.com/username/finloader/backend/src/rules"
	"github.com/username/finloader/backend/src/template"
)

type contextServiceImpl struct {
	client    *oracle.Client
	prompts   *oracle.PromptStore
	queue     *QueueStore
	companies *CompanyStore
	ruleFiles *rules.FileStore
	merger    *rules.Merger
	changelog *rules.Changelog
	email     EmailService
}

func NewContextService(client *oracle.Client, prompts *oracle.PromptStore, queue *QueueStore, companies *CompanyStore, ruleFiles *rules.FileStore, merger *rules.Merger, changelog *rules.Changelog, email EmailService) ContextService {
	return &contextServiceImpl{
		client:    client,
		prompts:   prompts,
		queue:     queue,
		companies: companies,
		ruleFiles: ruleFiles,
		merger:    merger,
		changelog: changelog,
		email:     email,
	}
}

// ProcessPending drains the whole correction queue, oldest first. Returns the
// number of corrections folded into context documents. A failure on one
// correction stops that company's run (order matters within a company) but
// not the others.
func (s *contextServiceImpl) ProcessPending(ctx context.Context) (int, error) {
	return s.process(ctx, 0)
}

// ProcessCompany drains the queue for a single company.
func (s *contextServiceImpl) ProcessCompany(ctx context.Context, companyID int64) (int, error) {
	return s.process(ctx, companyID)
}

func (s *contextServiceImpl) process(ctx context.Context, companyID int64) (int, error) {
	pending, err := s.queue.Pending(companyID)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// Corrections for one company must land in order: a later instruction may
	// refine an earlier one. Group while preserving the queue order.
	byCompany := make(map[int64][]models.QueuedCorrection)
	var companyOrder []int64
	for _, q := range pending {
		if _, seen := byCompany[q.CompanyID]; !seen {
			companyOrder = append(companyOrder, q.CompanyID)
		}
		byCompany[q.CompanyID] = append(byCompany[q.CompanyID], q)
	}

	processed := 0
	var firstErr error
	for _, id := range companyOrder {
		n, err := s.processCompanyQueue(ctx, id, byCompany[id])
		processed += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return processed, firstErr
}

func (s *contextServiceImpl) processCompanyQueue(ctx context.Context, companyID int64, queue []models.QueuedCorrection) (int, error) {
	lock := s.ruleFiles.Lock(queue[0].CompanyName)
	lock.Lock()
	defer lock.Unlock()

	processed := 0
	for _, q := range queue {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := s.processOne(ctx, q); err != nil {
			logger.L.Error("Context processing stopped for company",
				"error", err, "company", q.CompanyName, "queueId", q.ID)
			return processed, fmt.Errorf("company %s correction %d: %w", q.CompanyName, q.ID, err)
		}
		processed++
	}
	logger.L.Info("Context processing complete", "companyId", companyID, "processed", processed)
	return processed, nil
}

// processOne runs one queued correction through rewrite, merge, persist,
// changelog, and marks it processed. Caller holds the company file lock.
func (s *contextServiceImpl) processOne(ctx context.Context, q models.QueuedCorrection) error {
	instruction, unclear, err := s.rewriteInstruction(ctx, q)
	if err != nil {
		return err
	}
	if unclear {
		// The rewriter could not extract a reusable rule; dropping the
		// correction is deliberate, it stays visible in the changelog.
		if err := s.changelog.Record(rules.ChangelogEntry{
			Company:      q.CompanyName,
			CorrectionID: strconv.FormatInt(q.ID, 10),
			Field:        q.FieldID,
			Action:       rules.ActionDiscard,
			Detail:       "rewriter found no generalizable instruction",
		}); err != nil {
			logger.L.Warn("Failed to record changelog entry", "error", err)
		}
		return s.queue.MarkProcessed(q.ID)
	}

	store, err := s.ruleFiles.Load(q.CompanyName)
	if err != nil {
		return err
	}

	action, updated, err := s.merger.Merge(ctx, store, instruction)
	if err != nil {
		return err
	}

	if action != rules.ActionDiscard {
		if err := s.ruleFiles.Save(updated); err != nil {
			return err
		}
	}

	section := ""
	if sec, err := s.merger.TargetSection(instruction); err == nil {
		section = string(sec)
	}
	if err := s.changelog.Record(rules.ChangelogEntry{
		Company:      q.CompanyName,
		CorrectionID: strconv.FormatInt(q.ID, 10),
		Field:        q.FieldID,
		Action:       action,
		Section:      section,
		Detail:       instruction.Text,
	}); err != nil {
		logger.L.Warn("Failed to record changelog entry", "error", err)
	}

	s.notifyIfReviewNeeded(q.CompanyName, updated, instruction)

	logger.L.Info("Correction merged into company context",
		"company", q.CompanyName, "field", q.FieldID, "action", action, "section", section)
	return s.queue.MarkProcessed(q.ID)
}

// rewriteInstruction asks the rewriting oracle to turn one correction into a
// generalized classification instruction.
func (s *contextServiceImpl) rewriteInstruction(ctx context.Context, q models.QueuedCorrection) (models.Instruction, bool, error) {
	classified := "null"
	if q.ClassifiedValue != nil {
		classified = strconv.FormatFloat(*q.ClassifiedValue, 'f', -1, 64)
	}

	prompt, err := s.prompts.Render("rewrite_instruction", map[string]string{
		"company":              q.CompanyName,
		"statement_type":       string(q.StatementType),
		"period":               q.Period,
		"field":                q.FieldID,
		"classified_value":     classified,
		"classifier_reasoning": q.ClassifierReasoning,
		"corrected_value":      strconv.FormatFloat(q.CorrectedValue, 'f', -1, 64),
		"analyst_reasoning":    q.AnalystReasoning,
	})
	if err != nil {
		return models.Instruction{}, false, err
	}

	response, err := s.client.Complete(ctx, config.Cfg.RewriterModel, "", prompt)
	if err != nil {
		return models.Instruction{}, false, fmt.Errorf("rewriter oracle call failed: %w", err)
	}

	if strings.Contains(strings.ToUpper(response), "UNCLEAR") && !strings.Contains(response, "{") {
		return models.Instruction{}, true, nil
	}

	raw, err := oracle.ExtractJSON(response)
	if err != nil {
		return models.Instruction{}, false, fmt.Errorf("rewriter response unparseable: %w", err)
	}

	var parsed struct {
		Instruction      string   `json:"instruction"`
		ReferencedFields []string `json:"referenced_fields"`
		Unclear          bool     `json:"unclear"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return models.Instruction{}, false, fmt.Errorf("rewriter response malformed: %w", err)
	}
	if parsed.Unclear || strings.EqualFold(strings.TrimSpace(parsed.Instruction), "UNCLEAR") {
		return models.Instruction{}, true, nil
	}
	if strings.TrimSpace(parsed.Instruction) == "" {
		return models.Instruction{}, true, nil
	}

	// The corrected destination field always leads the reference list, even
	// when the rewriter forgot it.
	fields := parsed.ReferencedFields
	if len(fields) == 0 || fields[0] != q.FieldID {
		fields = append([]string{q.FieldID}, fields...)
	}

	return models.Instruction{
		Text:             strings.TrimSpace(parsed.Instruction),
		ReferencedFields: dedupe(fields),
	}, false, nil
}

func (s *contextServiceImpl) notifyIfReviewNeeded(company string, store *rules.Store, instruction models.Instruction) {
	if config.Cfg == nil || config.Cfg.ReviewNotifyEmail == "" {
		return
	}
	for _, sec := range store.Sections {
		for _, r := range sec.Rules {
			if r.NeedsReview() && strings.Contains(r.Text, instruction.Text) {
				if err := s.email.SendRuleReviewEmail(config.Cfg.ReviewNotifyEmail, company, r.Text); err != nil {
					logger.L.Warn("Failed to send rule review email", "error", err, "company", company)
				}
				return
			}
		}
	}
}

// CompanyRules renders the company's current classification context document.
func (s *contextServiceImpl) CompanyRules(companyID int64) (string, error) {
	company, err := s.companies.Get(companyID)
	if err != nil {
		return "", err
	}
	store, err := s.ruleFiles.Load(company.Name)
	if err != nil {
		return "", err
	}
	if store.RuleCount() == 0 {
		return "", nil
	}
	return rules.RenderMarkdown(store), nil
}

func dedupe(fields []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// OraclePolicy consults the integrating oracle for the three-way merge
// decision. It satisfies rules.DecisionPolicy.
type OraclePolicy struct {
	client  *oracle.Client
	prompts *oracle.PromptStore
}

func NewOraclePolicy(client *oracle.Client, prompts *oracle.PromptStore) *OraclePolicy {
	return &OraclePolicy{client: client, prompts: prompts}
}

func (p *OraclePolicy) Decide(ctx context.Context, store *rules.Store, instruction models.Instruction, targetSection template.Section) (rules.Decision, error) {
	existing := "(no existing rules in this section)"
	if sec := store.Section(targetSection); sec != nil && len(sec.Rules) > 0 {
		var b strings.Builder
		for i, r := range sec.Rules {
			fmt.Fprintf(&b, "%d. %s\n", i, r.Text)
		}
		existing = b.String()
	}

	prompt, err := p.prompts.Render("integrate_rule", map[string]string{
		"company":        store.Company,
		"section":        string(targetSection),
		"existing_rules": existing,
		"instruction":    instruction.Text,
	})
	if err != nil {
		return rules.Decision{}, err
	}

	response, err := p.client.Complete(ctx, config.Cfg.IntegratorModel, "", prompt)
	if err != nil {
		return rules.Decision{}, fmt.Errorf("integrator oracle call failed: %w", err)
	}

	raw, err := oracle.ExtractJSON(response)
	if err != nil {
		return rules.Decision{}, fmt.Errorf("%w: integrator response unparseable", rules.ErrMergeAmbiguous)
	}

	var parsed struct {
		Action      string `json:"action"`
		RuleIndex   *int   `json:"rule_index"`
		AmendedText string `json:"amended_text"`
		Detail      string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return rules.Decision{}, fmt.Errorf("%w: integrator response malformed", rules.ErrMergeAmbiguous)
	}

	decision := rules.Decision{
		Section:   targetSection,
		RuleIndex: -1,
		Detail:    parsed.Detail,
	}
	switch strings.ToUpper(strings.TrimSpace(parsed.Action)) {
	case string(rules.ActionDiscard):
		decision.Action = rules.ActionDiscard
	case string(rules.ActionAmend):
		if parsed.RuleIndex == nil || parsed.AmendedText == "" {
			return rules.Decision{}, fmt.Errorf("%w: amend without target or text", rules.ErrMergeAmbiguous)
		}
		decision.Action = rules.ActionAmend
		decision.RuleIndex = *parsed.RuleIndex
		decision.AmendedText = parsed.AmendedText
	case string(rules.ActionAppend):
		decision.Action = rules.ActionAppend
	default:
		return rules.Decision{}, fmt.Errorf("%w: unknown action %q", rules.ErrMergeAmbiguous, parsed.Action)
	}
	return decision, nil
}
