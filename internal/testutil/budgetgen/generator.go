// Package budgetgen writes synthetic Buckets budget files for tests.
//
// A generated file uses the same tables the source store reads: accounts,
// bucket groups, buckets, account transactions and bucket transactions.
// Transfers are written as two legs on the same timestamp with a unique
// absolute amount, so each leg has exactly one possible counter-leg.
//
// Example usage:
//
//	gen := budgetgen.Default()
//	gen.Transfers = 20
//	stats, err := gen.WriteFile(filepath.Join(t.TempDir(), "backup.buckets"))
package budgetgen

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"time"

	"buckets-migrator/internal/models"

	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE account (
	id INTEGER PRIMARY KEY,
	name TEXT,
	balance INTEGER DEFAULT 0,
	starting_balance INTEGER
);
CREATE TABLE bucket_group (
	id INTEGER PRIMARY KEY,
	name TEXT
);
CREATE TABLE bucket (
	id TEXT PRIMARY KEY,
	name TEXT,
	group_id INTEGER
);
CREATE TABLE account_transaction (
	id INTEGER PRIMARY KEY,
	account_id INTEGER,
	amount INTEGER,
	memo TEXT,
	posted TEXT,
	general_cat TEXT
);
CREATE TABLE bucket_transaction (
	id INTEGER PRIMARY KEY,
	bucket_id TEXT,
	amount INTEGER,
	memo TEXT,
	account_trans_id INTEGER
);`

const postedLayout = "2006-01-02 15:04:05"

var memos = []string{"groceries", "rent", "coffee", "fuel", "salary", "insurance", "books", ""}

// Generator describes the budget to write
type Generator struct {
	Accounts     int
	Groups       int
	Buckets      int
	Transactions int // ordinary transactions, excluding transfer legs
	Transfers    int // transfer pairs
	SplitRatio   float64
	StartDate    time.Time
	Days         int
	Seed         int64
}

// Stats describes what a generated file contains, in the terms the source
// store reports them.
type Stats struct {
	Accounts      int
	Categories    int
	Rows          int // rows ListTransactions returns, one per split line
	TransferPairs int
	SplitRows     int
	Net           decimal.Decimal // sum of every non counter-leg row
}

// Default returns a small budget that exercises every code path
func Default() *Generator {
	return &Generator{
		Accounts:     3,
		Groups:       2,
		Buckets:      5,
		Transactions: 40,
		Transfers:    8,
		SplitRatio:   0.2,
		StartDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:         90,
		Seed:         1,
	}
}

// Validate validates the generator settings
func (g *Generator) Validate() error {
	if g.Accounts < 1 {
		return fmt.Errorf("at least one account is required")
	}
	if g.Transfers > 0 && g.Accounts < 2 {
		return fmt.Errorf("transfers need at least two accounts")
	}
	if g.Buckets < 2 && g.SplitRatio > 0 {
		return fmt.Errorf("splits need at least two buckets")
	}
	if g.Days < 1 {
		return fmt.Errorf("days must be positive, got %d", g.Days)
	}
	if g.SplitRatio < 0 || g.SplitRatio > 1 {
		return fmt.Errorf("split ratio must be between 0 and 1, got %f", g.SplitRatio)
	}
	return nil
}

// WriteFile creates a new budget file at path
func (g *Generator) WriteFile(path string) (*Stats, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("refusing to overwrite %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	w := &writer{tx: tx, rng: rand.New(rand.NewSource(g.Seed)), stats: &Stats{}}
	steps := []func(*Generator) error{w.accounts, w.buckets, w.transactions, w.transfers}
	for _, step := range steps {
		if err := step(g); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return w.stats, nil
}

type writer struct {
	tx     *sql.Tx
	rng    *rand.Rand
	stats  *Stats
	nextTx int
	nextBT int
}

func (w *writer) accounts(g *Generator) error {
	for i := 1; i <= g.Accounts; i++ {
		opening := w.rng.Int63n(500000)
		if _, err := w.tx.Exec(`INSERT INTO account (id, name, starting_balance) VALUES (?, ?, ?)`,
			i, fmt.Sprintf("Account %d", i), opening); err != nil {
			return fmt.Errorf("failed to insert account %d: %w", i, err)
		}
	}
	w.stats.Accounts = g.Accounts
	return nil
}

func (w *writer) buckets(g *Generator) error {
	for i := 1; i <= g.Groups; i++ {
		if _, err := w.tx.Exec(`INSERT INTO bucket_group (id, name) VALUES (?, ?)`,
			i, fmt.Sprintf("Group %d", i)); err != nil {
			return fmt.Errorf("failed to insert group %d: %w", i, err)
		}
	}

	// Every third bucket has no group and lands in the default one
	for i := 1; i <= g.Buckets; i++ {
		var group interface{}
		if g.Groups > 0 && i%3 != 0 {
			group = 1 + (i-1)%g.Groups
		}
		if _, err := w.tx.Exec(`INSERT INTO bucket (id, name, group_id) VALUES (?, ?, ?)`,
			fmt.Sprint(i), fmt.Sprintf("Bucket %d", i), group); err != nil {
			return fmt.Errorf("failed to insert bucket %d: %w", i, err)
		}
	}

	// The license bucket exists in real files and must be skipped by readers
	if _, err := w.tx.Exec(`INSERT INTO bucket (id, name) VALUES (?, 'License')`,
		string(models.LicenseCategoryID)); err != nil {
		return fmt.Errorf("failed to insert license bucket: %w", err)
	}

	w.stats.Categories = g.Buckets
	return nil
}

// transactions writes ordinary rows. Their amounts are odd so they never
// collide with the even transfer amounts.
func (w *writer) transactions(g *Generator) error {
	for i := 0; i < g.Transactions; i++ {
		amount := w.rng.Int63n(50000)*2 + 1
		if w.rng.Float64() < 0.7 {
			amount = -amount
		}
		account := 1 + w.rng.Intn(g.Accounts)
		id, err := w.insertTransaction(account, amount, w.memo(), w.posted(g), "")
		if err != nil {
			return err
		}

		switch {
		case g.Buckets >= 2 && w.rng.Float64() < g.SplitRatio:
			if err := w.split(g, id, amount); err != nil {
				return err
			}
		case g.Buckets > 0 && w.rng.Float64() < 0.8:
			if err := w.insertBucketRow(w.bucket(g), amount, nil, id); err != nil {
				return err
			}
			w.stats.Rows++
		default:
			w.stats.Rows++
		}
		w.stats.Net = w.stats.Net.Add(models.AmountDecimal(amount))
	}
	return nil
}

// split divides amount over two bucket rows that sum to it
func (w *writer) split(g *Generator, id int, amount int64) error {
	first := amount / 2
	second := amount - first
	buckets := w.rng.Perm(g.Buckets)

	if err := w.insertBucketRow(fmt.Sprint(buckets[0]+1), first, nil, id); err != nil {
		return err
	}
	if err := w.insertBucketRow(fmt.Sprint(buckets[1]+1), second, "split", id); err != nil {
		return err
	}
	w.stats.Rows += 2
	w.stats.SplitRows += 2
	return nil
}

func (w *writer) transfers(g *Generator) error {
	for i := 1; i <= g.Transfers; i++ {
		amount := int64(i) * 1000
		from := 1 + w.rng.Intn(g.Accounts)
		to := 1 + (from+w.rng.Intn(g.Accounts-1))%g.Accounts
		posted := w.posted(g)

		if _, err := w.insertTransaction(from, -amount, fmt.Sprintf("to account %d", to), posted, models.TransferTag); err != nil {
			return err
		}
		if _, err := w.insertTransaction(to, amount, "", posted, models.TransferTag); err != nil {
			return err
		}
		w.stats.Rows += 2
		w.stats.TransferPairs++
		w.stats.Net = w.stats.Net.Add(models.AmountDecimal(-amount))
	}
	return nil
}

func (w *writer) insertTransaction(account int, amount int64, memo, posted, tag string) (int, error) {
	w.nextTx++
	var generalCat interface{}
	if tag != "" {
		generalCat = tag
	}
	_, err := w.tx.Exec(`INSERT INTO account_transaction (id, account_id, amount, memo, posted, general_cat)
		VALUES (?, ?, ?, ?, ?, ?)`, w.nextTx, account, amount, memo, posted, generalCat)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction %d: %w", w.nextTx, err)
	}
	return w.nextTx, nil
}

func (w *writer) insertBucketRow(bucket string, amount int64, memo interface{}, transaction int) error {
	w.nextBT++
	_, err := w.tx.Exec(`INSERT INTO bucket_transaction (id, bucket_id, amount, memo, account_trans_id)
		VALUES (?, ?, ?, ?, ?)`, w.nextBT, bucket, amount, memo, transaction)
	if err != nil {
		return fmt.Errorf("failed to insert bucket transaction %d: %w", w.nextBT, err)
	}
	return nil
}

func (w *writer) bucket(g *Generator) string {
	return fmt.Sprint(1 + w.rng.Intn(g.Buckets))
}

func (w *writer) memo() string {
	return memos[w.rng.Intn(len(memos))]
}

// posted spreads rows across the range at whole minutes
func (w *writer) posted(g *Generator) string {
	offset := time.Duration(w.rng.Intn(g.Days*24*60)) * time.Minute
	return g.StartDate.Add(offset).Format(postedLayout)
}
