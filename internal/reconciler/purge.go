package reconciler

import (
	"context"
	"time"

	"buckets-migrator/internal/models"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"
)

// purgeEpoch is early enough to list every transaction in an account
var purgeEpoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Purge empties the target budget so an import can be re-run from scratch.
// Listing failures are fatal. A failed delete is recorded as a warning and
// the purge moves on; deleting one leg of a transfer also removes the other,
// so a later delete of that leg can fail harmlessly.
//
// Income category groups are kept because the target requires one.
func Purge(ctx context.Context, target TargetPurger, log logger.Logger) (*PurgeResult, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("purge")

	result := &PurgeResult{}
	var warnings []*errors.MigrationError
	softFail := func(err error, kind string, id models.TargetID) {
		w := errors.WrapIfNeeded(err, errors.CategoryRemote, errors.CodeRemoteOperationFailed, "delete "+kind).
			AsWarning().
			WithContext("id", id.String())
		warnings = append(warnings, w)
		log.WithFields(logger.Fields(w.Context)).Warn(w.Error())
	}

	accounts, err := target.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	phase := logger.StartPhase("purge_transactions", log)
	for _, account := range accounts {
		txs, err := target.ListTransactions(ctx, account.ID, purgeEpoch)
		if err != nil {
			phase.Failed(err)
			return nil, err
		}
		for _, tx := range txs {
			if err := target.DeleteTransaction(ctx, tx.ID); err != nil {
				softFail(err, "transaction", tx.ID)
				continue
			}
			result.Transactions++
		}
	}
	phase.Done(logger.Fields{"transactions": result.Transactions})

	phase = logger.StartPhase("purge_categories", log)
	groups, err := target.ListCategoryGroups(ctx)
	if err != nil {
		phase.Failed(err)
		return nil, err
	}
	for _, group := range groups {
		if group.IsIncome {
			continue
		}
		for _, category := range group.Categories {
			if err := target.DeleteCategory(ctx, category.ID); err != nil {
				softFail(err, "category", category.ID)
				continue
			}
			result.Categories++
		}
		if err := target.DeleteCategoryGroup(ctx, group.ID); err != nil {
			softFail(err, "category group", group.ID)
			continue
		}
		result.CategoryGroups++
	}
	phase.Done(logger.Fields{"categories": result.Categories, "groups": result.CategoryGroups})

	phase = logger.StartPhase("purge_accounts", log)
	for _, account := range accounts {
		if err := target.DeleteAccount(ctx, account.ID); err != nil {
			softFail(err, "account", account.ID)
			continue
		}
		result.Accounts++
	}
	phase.Done(logger.Fields{"accounts": result.Accounts})

	result.Warnings = errors.NewErrorSummary(warnings)
	return result, nil
}
