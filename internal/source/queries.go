package source

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"buckets-migrator/internal/models"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"
)

const accountsQuery = `
	SELECT id, name, COALESCE(starting_balance, 0)
	FROM account
	ORDER BY id`

const categoriesQuery = `
	SELECT b.id, b.name, COALESCE(g.name, ?)
	FROM bucket b
	LEFT JOIN bucket_group g ON g.id = b.group_id
	WHERE CAST(b.id AS TEXT) <> ?
	ORDER BY b.id`

// Split transactions produce one row per bucket_transaction; the bucket
// amount wins over the account amount when both are present.
const transactionsQuery = `
	SELECT t.id, t.posted, t.account_id, b.bucket_id,
		COALESCE(t.general_cat, '') = ?,
		COALESCE(b.amount, t.amount),
		COALESCE(b.memo, t.memo, '')
	FROM account_transaction t
	FULL OUTER JOIN bucket_transaction b ON b.account_trans_id = t.id
	WHERE t.id IS NOT NULL
	ORDER BY t.posted, t.id, b.id`

// ListAccounts returns every source account in id order
func (s *Store) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, accountsQuery)
	if err != nil {
		return nil, errors.QueryFailed("accounts", err)
	}
	defer rows.Close()

	seen := make(map[models.SourceID]bool)
	var accounts []*models.Account
	for rows.Next() {
		var (
			id      string
			name    sql.NullString
			balance int64
		)
		if err := rows.Scan(&id, &name, &balance); err != nil {
			return nil, errors.QueryFailed("accounts", err)
		}
		sourceID := models.SourceID(id)
		if seen[sourceID] {
			return nil, errors.DuplicateSource("account", id)
		}
		seen[sourceID] = true
		accounts = append(accounts, &models.Account{
			SourceID:       sourceID,
			Name:           name.String,
			OpeningBalance: balance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.QueryFailed("accounts", err)
	}

	s.logger.WithField("accounts", len(accounts)).Debug("Loaded accounts")
	return accounts, nil
}

// Categories is the result of ListCategories
type Categories struct {
	ByID    map[models.SourceID]*models.Category
	ByGroup map[string][]*models.Category
	Groups  []string // group names in first-seen order
}

// ListCategories returns every bucket keyed by id and grouped by group
// name. The reserved license bucket is never included.
func (s *Store) ListCategories(ctx context.Context) (*Categories, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, categoriesQuery, models.DefaultGroupName, string(models.LicenseCategoryID))
	if err != nil {
		return nil, errors.QueryFailed("categories", err)
	}
	defer rows.Close()

	result := &Categories{
		ByID:    make(map[models.SourceID]*models.Category),
		ByGroup: make(map[string][]*models.Category),
	}
	for rows.Next() {
		var (
			id, group string
			name      sql.NullString
		)
		if err := rows.Scan(&id, &name, &group); err != nil {
			return nil, errors.QueryFailed("categories", err)
		}
		sourceID := models.SourceID(id)
		if sourceID == models.LicenseCategoryID {
			continue
		}
		if _, exists := result.ByID[sourceID]; exists {
			return nil, errors.DuplicateSource("bucket", id)
		}
		if strings.TrimSpace(group) == "" {
			group = models.DefaultGroupName
		}

		category := &models.Category{SourceID: sourceID, Name: name.String, GroupName: group}
		result.ByID[sourceID] = category
		if _, ok := result.ByGroup[group]; !ok {
			result.Groups = append(result.Groups, group)
		}
		result.ByGroup[group] = append(result.ByGroup[group], category)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.QueryFailed("categories", err)
	}

	s.logger.WithFields(logger.Fields{
		"categories": len(result.ByID),
		"groups":     len(result.Groups),
	}).Debug("Loaded categories")
	return result, nil
}

// ListTransactions returns every transaction ordered by date, then id.
func (s *Store) ListTransactions(ctx context.Context) ([]*models.RawTransaction, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, transactionsQuery, models.TransferTag)
	if err != nil {
		return nil, errors.QueryFailed("transactions", err)
	}
	defer rows.Close()

	var transactions []*models.RawTransaction
	for rows.Next() {
		var (
			id, posted, account string
			bucket              sql.NullString
			transfer            bool
			amount              int64
			notes               string
		)
		if err := rows.Scan(&id, &posted, &account, &bucket, &transfer, &amount, &notes); err != nil {
			return nil, errors.QueryFailed("transactions", err)
		}
		date, err := models.ParseSourceTime(posted)
		if err != nil {
			return nil, errors.QueryFailed("transactions", fmt.Errorf("transaction %s: %w", id, err))
		}
		transactions = append(transactions, &models.RawTransaction{
			SourceID:   models.SourceID(id),
			Date:       date,
			AccountID:  models.SourceID(account),
			CategoryID: models.SourceID(bucket.String),
			IsTransfer: transfer,
			Amount:     amount,
			Notes:      notes,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.QueryFailed("transactions", err)
	}

	SortTransactions(transactions)
	markSplits(transactions)

	s.logger.WithField("transactions", len(transactions)).Debug("Loaded transactions")
	return transactions, nil
}

// SortTransactions orders by calendar time, then numeric-aware source id.
// The sort is stable so split lines keep their query order.
func SortTransactions(transactions []*models.RawTransaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		a, b := transactions[i], transactions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return lessID(a.SourceID, b.SourceID)
	})
}

// lessID compares numerically when both ids are integers.
func lessID(a, b models.SourceID) bool {
	if len(a) != len(b) && isDigits(string(a)) && isDigits(string(b)) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// markSplits numbers the lines of transactions that span several buckets.
func markSplits(transactions []*models.RawTransaction) {
	counts := make(map[models.SourceID]int)
	for _, tx := range transactions {
		counts[tx.SourceID]++
	}
	lines := make(map[models.SourceID]int)
	for _, tx := range transactions {
		if counts[tx.SourceID] > 1 {
			lines[tx.SourceID]++
			tx.SplitLine = lines[tx.SourceID]
		}
	}
}
