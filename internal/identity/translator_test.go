package identity

import (
	stderrors "errors"
	"testing"

	"buckets-migrator/internal/models"
	"buckets-migrator/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRoundTrip(t *testing.T) {
	tr := NewTranslator()

	_, err := tr.ResolveAccount("1")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnresolvedReference))

	require.NoError(t, tr.RecordAccountTarget("1", "acc-1"))

	target, err := tr.ResolveAccount("1")
	require.NoError(t, err)
	assert.Equal(t, models.TargetID("acc-1"), target)

	source, ok := tr.SourceAccountFor("acc-1")
	assert.True(t, ok)
	assert.Equal(t, models.SourceID("1"), source)
	assert.Equal(t, 1, tr.AccountCount())
}

func TestAccountRecordedOnce(t *testing.T) {
	tr := NewTranslator()
	require.NoError(t, tr.RecordAccountTarget("1", "acc-1"))

	err := tr.RecordAccountTarget("1", "acc-2")
	require.Error(t, err)
	migrationErr, ok := errors.AsMigrationError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeDuplicateMapping, migrationErr.Code)

	target, _ := tr.ResolveAccount("1")
	assert.Equal(t, models.TargetID("acc-1"), target)
}

func TestEmptyTargetRejected(t *testing.T) {
	tr := NewTranslator()
	assert.Error(t, tr.RecordAccountTarget("1", ""))
	assert.Error(t, tr.RecordCategoryTarget("a", ""))
	assert.Zero(t, tr.AccountCount())
	assert.Zero(t, tr.CategoryCount())
}

func TestCategoryRoundTrip(t *testing.T) {
	tr := NewTranslator()

	_, err := tr.ResolveCategory("a")
	assert.True(t, stderrors.Is(err, errors.ErrUnresolvedReference))

	require.NoError(t, tr.RecordCategoryTarget("a", "cat-a"))
	target, err := tr.ResolveCategory("a")
	require.NoError(t, err)
	assert.Equal(t, models.TargetID("cat-a"), target)

	assert.Error(t, tr.RecordCategoryTarget("a", "cat-b"))
	assert.Equal(t, 1, tr.CategoryCount())
}

func TestLicenseCategoryNeverRecorded(t *testing.T) {
	tr := NewTranslator()

	assert.Error(t, tr.RecordCategoryTarget(models.LicenseCategoryID, "cat-x"))
	_, err := tr.ResolveCategory(models.LicenseCategoryID)
	assert.Error(t, err)
}

func TestAccountAndCategoryNamespacesAreSeparate(t *testing.T) {
	tr := NewTranslator()
	require.NoError(t, tr.RecordAccountTarget("1", "acc-1"))
	require.NoError(t, tr.RecordCategoryTarget("1", "cat-1"))

	acc, _ := tr.ResolveAccount("1")
	cat, _ := tr.ResolveCategory("1")
	assert.Equal(t, models.TargetID("acc-1"), acc)
	assert.Equal(t, models.TargetID("cat-1"), cat)
}
