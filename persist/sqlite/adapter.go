// Package sqlite provides a relational policy adapter backed by SQLite via
// the driverless modernc.org/sqlite port. Rules live in one table keyed by
// ptype with up to six value columns; rule order is preserved through an
// autoincrement id.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Sentinel-Gate/gatekit/model"
	"github.com/Sentinel-Gate/gatekit/persist"
)

const maxFields = 6

const schema = `
CREATE TABLE IF NOT EXISTS policy_rules (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	sec    TEXT NOT NULL,
	ptype  TEXT NOT NULL,
	v0     TEXT NOT NULL DEFAULT '',
	v1     TEXT NOT NULL DEFAULT '',
	v2     TEXT NOT NULL DEFAULT '',
	v3     TEXT NOT NULL DEFAULT '',
	v4     TEXT NOT NULL DEFAULT '',
	v5     TEXT NOT NULL DEFAULT '',
	UNIQUE (sec, ptype, v0, v1, v2, v3, v4, v5)
);`

// Adapter stores policy rules in a SQLite database.
type Adapter struct {
	db       *sql.DB
	filtered bool
}

// NewAdapter opens (creating if needed) the database at dsn, e.g. a file
// path or ":memory:", and ensures the rule table exists.
func NewAdapter(ctx context.Context, dsn string) (*Adapter, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite adapter: schema: %w", err)
	}
	return &Adapter{db: db}, nil
}

// Close releases the database handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func ruleColumns(rule []string) ([]any, error) {
	if len(rule) > maxFields {
		return nil, fmt.Errorf("sqlite adapter: rule has %d fields, max %d", len(rule), maxFields)
	}
	cols := make([]any, maxFields)
	for i := range cols {
		if i < len(rule) {
			cols[i] = rule[i]
		} else {
			cols[i] = ""
		}
	}
	return cols, nil
}

func scanRule(v [maxFields]string) []string {
	rule := make([]string, 0, maxFields)
	for _, f := range v {
		if f == "" {
			break
		}
		rule = append(rule, f)
	}
	return rule
}

// LoadPolicy fills the model with every stored rule in insertion order.
func (a *Adapter) LoadPolicy(ctx context.Context, m *model.Model) error {
	a.filtered = false
	return a.loadWhere(ctx, m, nil)
}

// LoadFilteredPolicy fills the model with the rules the filter retains.
func (a *Adapter) LoadFilteredPolicy(ctx context.Context, m *model.Model, f persist.Filter) error {
	a.filtered = false
	return a.loadWhere(ctx, m, &f)
}

func (a *Adapter) loadWhere(ctx context.Context, m *model.Model, f *persist.Filter) error {
	rows, err := a.db.QueryContext(ctx,
		`SELECT sec, ptype, v0, v1, v2, v3, v4, v5 FROM policy_rules ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var sec, ptype string
		var v [maxFields]string
		if err := rows.Scan(&sec, &ptype, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5]); err != nil {
			return err
		}
		rule := scanRule(v)
		if f != nil && !f.MatchesRule(sec, rule) {
			a.filtered = true
			continue
		}
		m.AddPolicy(sec, ptype, rule)
	}
	return rows.Err()
}

// IsFiltered reports whether the last load dropped any rules.
func (a *Adapter) IsFiltered() bool {
	return a.filtered
}

// SavePolicy replaces the stored rules with the model's current ones in one
// transaction.
func (a *Adapter) SavePolicy(ctx context.Context, m *model.Model) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM policy_rules`); err != nil {
		return err
	}
	for _, sec := range []string{"p", "g"} {
		for _, ptype := range m.PTypes(sec) {
			for _, rule := range m.GetPolicy(sec, ptype) {
				if err := insertRule(ctx, tx, sec, ptype, rule); err != nil {
					return err
				}
			}
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRule(ctx context.Context, x execer, sec, ptype string, rule []string) error {
	cols, err := ruleColumns(rule)
	if err != nil {
		return err
	}
	args := append([]any{sec, ptype}, cols...)
	_, err = x.ExecContext(ctx,
		`INSERT INTO policy_rules (sec, ptype, v0, v1, v2, v3, v4, v5) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	return err
}

func (a *Adapter) ruleExists(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	cols, err := ruleColumns(rule)
	if err != nil {
		return false, err
	}
	args := append([]any{sec, ptype}, cols...)
	var n int
	err = a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM policy_rules WHERE sec = ? AND ptype = ? AND v0 = ? AND v1 = ? AND v2 = ? AND v3 = ? AND v4 = ? AND v5 = ?`,
		args...).Scan(&n)
	return n > 0, err
}

// AddPolicy stores one rule; false means it already existed.
func (a *Adapter) AddPolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	exists, err := a.ruleExists(ctx, sec, ptype, rule)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := insertRule(ctx, a.db, sec, ptype, rule); err != nil {
		return false, err
	}
	return true, nil
}

// AddPolicies stores the batch in one transaction, or nothing when any rule
// already exists.
func (a *Adapter) AddPolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	for _, rule := range rules {
		exists, err := a.ruleExists(ctx, sec, ptype, rule)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, rule := range rules {
		if err := insertRule(ctx, tx, sec, ptype, rule); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

func deleteRule(ctx context.Context, x execer, sec, ptype string, rule []string) (bool, error) {
	cols, err := ruleColumns(rule)
	if err != nil {
		return false, err
	}
	args := append([]any{sec, ptype}, cols...)
	res, err := x.ExecContext(ctx,
		`DELETE FROM policy_rules WHERE sec = ? AND ptype = ? AND v0 = ? AND v1 = ? AND v2 = ? AND v3 = ? AND v4 = ? AND v5 = ?`,
		args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RemovePolicy deletes one rule; false means it was absent.
func (a *Adapter) RemovePolicy(ctx context.Context, sec, ptype string, rule []string) (bool, error) {
	return deleteRule(ctx, a.db, sec, ptype, rule)
}

// RemovePolicies deletes the batch in one transaction, or nothing when any
// rule is absent.
func (a *Adapter) RemovePolicies(ctx context.Context, sec, ptype string, rules [][]string) (bool, error) {
	for _, rule := range rules {
		exists, err := a.ruleExists(ctx, sec, ptype, rule)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, rule := range rules {
		if _, err := deleteRule(ctx, tx, sec, ptype, rule); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

// RemoveFilteredPolicy deletes every rule under (sec, ptype) whose fields
// starting at fieldIndex equal the non-empty fieldValues.
func (a *Adapter) RemoveFilteredPolicy(ctx context.Context, sec, ptype string, fieldIndex int, fieldValues []string) (bool, error) {
	if fieldIndex+len(fieldValues) > maxFields {
		return false, fmt.Errorf("sqlite adapter: filter exceeds %d fields", maxFields)
	}

	where := []string{"sec = ?", "ptype = ?"}
	args := []any{sec, ptype}
	constrained := false
	for i, fv := range fieldValues {
		if fv == "" {
			continue
		}
		constrained = true
		where = append(where, fmt.Sprintf("v%d = ?", fieldIndex+i))
		args = append(args, fv)
	}
	if !constrained {
		return false, nil
	}

	res, err := a.db.ExecContext(ctx,
		`DELETE FROM policy_rules WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
