// Package identity maps source identifiers to the ids the target system
// assigned when the matching entity was created.
//
// The Translator is populated phase by phase (accounts first, then
// categories) and only queried once the relevant creation phase is over.
// It is the single owner of cross-reference state for a run.
package identity

import (
	"buckets-migrator/internal/models"
	"buckets-migrator/pkg/errors"
)

const (
	kindAccount  = "account"
	kindCategory = "category"
)

// Translator holds bidirectional source/target id tables
type Translator struct {
	accounts         map[models.SourceID]models.TargetID
	accountsByTarget map[models.TargetID]models.SourceID
	categories       map[models.SourceID]models.TargetID
}

// NewTranslator creates an empty translator
func NewTranslator() *Translator {
	return &Translator{
		accounts:         make(map[models.SourceID]models.TargetID),
		accountsByTarget: make(map[models.TargetID]models.SourceID),
		categories:       make(map[models.SourceID]models.TargetID),
	}
}

// RecordAccountTarget maps a source account to its created target account.
func (t *Translator) RecordAccountTarget(source models.SourceID, target models.TargetID) error {
	if _, exists := t.accounts[source]; exists {
		return errors.DuplicateMapping(kindAccount, source.String())
	}
	if target == "" {
		return errors.InternalError("record account target", nil).WithContext("source_id", source.String())
	}
	t.accounts[source] = target
	t.accountsByTarget[target] = source
	return nil
}

// ResolveAccount returns the target id for a source account
func (t *Translator) ResolveAccount(source models.SourceID) (models.TargetID, error) {
	target, ok := t.accounts[source]
	if !ok {
		return "", errors.UnresolvedReference(kindAccount, source.String())
	}
	return target, nil
}

// SourceAccountFor is the reverse of ResolveAccount.
func (t *Translator) SourceAccountFor(target models.TargetID) (models.SourceID, bool) {
	source, ok := t.accountsByTarget[target]
	return source, ok
}

// RecordCategoryTarget maps a source bucket to its created target category.
func (t *Translator) RecordCategoryTarget(source models.SourceID, target models.TargetID) error {
	if source == models.LicenseCategoryID {
		return errors.InternalError("record category target", nil).
			WithContext("source_id", source.String()).
			WithSuggestion("the reserved license bucket must never be imported")
	}
	if _, exists := t.categories[source]; exists {
		return errors.DuplicateMapping(kindCategory, source.String())
	}
	if target == "" {
		return errors.InternalError("record category target", nil).WithContext("source_id", source.String())
	}
	t.categories[source] = target
	return nil
}

// ResolveCategory returns the target id for a source bucket
func (t *Translator) ResolveCategory(source models.SourceID) (models.TargetID, error) {
	target, ok := t.categories[source]
	if !ok {
		return "", errors.UnresolvedReference(kindCategory, source.String())
	}
	return target, nil
}

// AccountCount returns the number of mapped accounts
func (t *Translator) AccountCount() int { return len(t.accounts) }

// CategoryCount returns the number of mapped categories
func (t *Translator) CategoryCount() int { return len(t.categories) }
