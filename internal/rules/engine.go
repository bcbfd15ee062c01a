// Package rules applies user-authored classification overrides to parsed
// transactions before enrichment.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// Application is the outcome of applying a rule set to one transaction.
type Application struct {
	Updated        domain.ParsedTransaction
	AppliedRuleIDs []string
}

// Apply runs rules against target in priority order. Every rule is matched
// against the transaction as it was before any rule ran. Matching rules
// apply cumulatively, but a field already set by a higher-priority rule is
// never overwritten by a lower-priority one.
func Apply(target domain.ParsedTransaction, rules []domain.Rule) Application {
	updated := target.Clone()
	var (
		applied []string
		claimed fieldSet
	)

	for _, rule := range ordered(rules) {
		if !matches(target, rule) {
			continue
		}
		applyRule(&updated, rule, &claimed)
		applied = append(applied, rule.ID)
	}
	return Application{Updated: updated, AppliedRuleIDs: applied}
}

// fieldSet records which fields a rule has already written.
type fieldSet struct {
	category, business, master, reimbursement, normalized bool
}

func ordered(rules []domain.Rule) []domain.Rule {
	out := append([]domain.Rule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RuleType.Priority() < out[j].RuleType.Priority()
	})
	return out
}

func matches(tx domain.ParsedTransaction, rule domain.Rule) bool {
	value := strings.ToLower(strings.TrimSpace(rule.MatchValue))
	if value == "" {
		return false
	}

	original := strings.ToLower(tx.OriginalMerchantName)
	switch rule.RuleType {
	case domain.RuleMerchantExact:
		return original == value
	case domain.RuleMerchantContains:
		return strings.Contains(original, value)
	case domain.RuleNormalizedExact:
		return strings.ToLower(tx.NormalizedMerchantName) == value
	case domain.RuleCategoryHint:
		return strings.Contains(strings.ToLower(tx.MerchantCategoryHint), value)
	case domain.RuleNoteContains:
		return strings.Contains(strings.ToLower(tx.Notes), value)
	default:
		return false
	}
}

// applyRule writes the fields rule defines. The first rule in priority order
// to set a field owns it, so an exact match is never overridden by a later
// substring, hint or note match.
func applyRule(tx *domain.ParsedTransaction, rule domain.Rule, claimed *fieldSet) {
	if rule.CategoryID != "" && !claimed.category {
		tx.CategoryID = rule.CategoryID
		claimed.category = true
	}
	if rule.IsBusiness != nil && !claimed.business {
		tx.IsBusiness = domain.Bool(*rule.IsBusiness)
		claimed.business = true
	}
	if rule.MasterFlag != nil && !claimed.master {
		tx.MasterFlag = domain.Bool(*rule.MasterFlag)
		claimed.master = true
	}
	if rule.IsReimbursement != nil && !claimed.reimbursement {
		tx.IsReimbursement = domain.Bool(*rule.IsReimbursement)
		claimed.reimbursement = true
	}
	if rule.NormalizedMerchantName != "" && !claimed.normalized {
		tx.NormalizedMerchantName = rule.NormalizedMerchantName
		claimed.normalized = true
	}
}

// Engine loads a user's rules and applies them to a batch.
type Engine struct {
	repo store.RuleRepository
}

func NewEngine(repo store.RuleRepository) *Engine {
	return &Engine{repo: repo}
}

// Load returns the rules of userID. Without a repository or a user there are
// no rules.
func (e *Engine) Load(ctx context.Context, userID string) ([]domain.Rule, error) {
	if e == nil || e.repo == nil || userID == "" {
		return nil, nil
	}
	rules, err := e.repo.ListRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Load: listing rules: %w", err)
	}
	return rules, nil
}

// ApplyAll applies rules to every transaction and appends the fired rule ids
// to each transaction's provenance.
func (e *Engine) ApplyAll(txs []domain.ParsedTransaction, rules []domain.Rule) []domain.ParsedTransaction {
	out := make([]domain.ParsedTransaction, len(txs))
	for i, tx := range txs {
		app := Apply(tx, rules)
		app.Updated.AppliedRuleIDs = append(app.Updated.AppliedRuleIDs, app.AppliedRuleIDs...)
		out[i] = app.Updated
	}
	return out
}

// Save validates and stores a rule.
func (e *Engine) Save(ctx context.Context, rule *domain.Rule) error {
	if !rule.RuleType.Valid() {
		return fmt.Errorf("Save: unknown rule type %q", rule.RuleType)
	}
	if strings.TrimSpace(rule.MatchValue) == "" {
		return fmt.Errorf("Save: empty match value")
	}
	if err := e.repo.SaveRule(ctx, rule); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}
