// Package sqlstore provides the SQL-backed Store. It speaks plain
// database/sql so both the pgx stdlib driver (postgres) and go-sqlite3
// (local development) work unchanged.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

// DB wraps the database handle and the relation schema.
type DB struct {
	db     *sql.DB
	schema *store.Schema
	logger *zap.Logger
}

// New creates a sqlstore over an open database handle.
func New(db *sql.DB, schema *store.Schema, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{db: db, schema: schema, logger: logger}
}

// Session opens a transaction-scoped Store. One inbound submission or query
// is served by exactly one session; Commit or Rollback ends it.
func (d *DB) Session(ctx context.Context) (*Session, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Session{
		db:     d,
		tx:     tx,
		loaded: make(map[string]*store.Record),
	}, nil
}

// Session is a single-transaction Store implementation. Records are tracked
// in an identity map so repeated loads of the same row return the same
// pointer, which the serializer relies on for wrapper comparisons.
type Session struct {
	db        *DB
	tx        *sql.Tx
	loaded    map[string]*store.Record
	savepoint int
}

var _ store.Store = (*Session)(nil)

// Commit commits the session transaction.
func (s *Session) Commit() error {
	return s.tx.Commit()
}

// Rollback aborts the session transaction.
func (s *Session) Rollback() error {
	return s.tx.Rollback()
}

// Create inserts a new record without checking for an existing one.
func (s *Session) Create(ctx context.Context, kind string, fields map[string]interface{}) (*store.Record, error) {
	rec := store.NewRecord(kind)
	for k, v := range fields {
		rec.Set(k, v)
	}
	if err := s.insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetOrCreate finds the record matching keys, creating it when absent.
func (s *Session) GetOrCreate(ctx context.Context, kind string, keys, defaults map[string]interface{}) (*store.Record, bool, error) {
	rec, err := s.Get(ctx, kind, keys)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	fields := make(map[string]interface{}, len(keys)+len(defaults))
	for k, v := range defaults {
		fields[k] = v
	}
	for k, v := range keys {
		fields[k] = v
	}
	rec, err = s.Create(ctx, kind, fields)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Get finds the single record matching keys, or store.ErrNotFound.
func (s *Session) Get(ctx context.Context, kind string, keys map[string]interface{}) (*store.Record, error) {
	pred := query.NewPredicateGroup(false)
	for _, k := range sortedKeys(keys) {
		pred.Where(columnFor(k, keys[k]), query.OpEqual, bindable(keys[k]))
	}
	recs, err := s.Find(ctx, kind, pred)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s %v", store.ErrNotFound, kind, keys)
	}
	return recs[0], nil
}

// Find returns all records of kind matching the predicate, ordered by id.
func (s *Session) Find(ctx context.Context, kind string, pred *query.PredicateGroup) ([]*store.Record, error) {
	table := query.TableForKind(kind)
	sqlText := fmt.Sprintf("SELECT * FROM %s t", table)

	paramCounter := 1
	args := make([]interface{}, 0)
	if !pred.Empty() {
		where, err := normalizePred(pred).ToSQL("t", &paramCounter, &args)
		if err != nil {
			return nil, err
		}
		sqlText += " WHERE " + where
	}
	sqlText += " ORDER BY t.id"

	s.db.logger.Debug("find", zap.String("kind", kind), zap.String("sql", sqlText))

	rows, err := s.tx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed for %s: %w", kind, err)
	}
	defer rows.Close()

	recs, err := s.scanAll(ctx, kind, rows)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Save persists field mutations on an existing record, or inserts a new one.
func (s *Session) Save(ctx context.Context, rec *store.Record) error {
	if rec.ID == 0 {
		return s.insert(ctx, rec)
	}

	cols, vals := columnize(rec.Fields)
	if len(cols) > 0 {
		sets := make([]string, len(cols))
		for i, col := range cols {
			sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		}
		vals = append(vals, rec.ID)
		sqlText := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
			query.TableForKind(rec.Kind), strings.Join(sets, ", "), len(vals))

		if _, err := s.tx.ExecContext(ctx, sqlText, vals...); err != nil {
			return fmt.Errorf("update failed for %s id=%d: %w", rec.Kind, rec.ID, err)
		}
	}
	return s.syncMemberships(ctx, rec)
}

// Delete removes the record.
func (s *Session) Delete(ctx context.Context, rec *store.Record) error {
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE id = $1", query.TableForKind(rec.Kind))
	if _, err := s.tx.ExecContext(ctx, sqlText, rec.ID); err != nil {
		return fmt.Errorf("delete failed for %s id=%d: %w", rec.Kind, rec.ID, err)
	}
	rec.Deleted = true
	delete(s.loaded, identity(rec.Kind, rec.ID))
	return nil
}

// Related returns the member records of the named related set.
func (s *Session) Related(ctx context.Context, rec *store.Record, relatedName string) ([]*store.Record, error) {
	rel, err := s.db.schema.Relation(rec.Kind, relatedName)
	if err != nil {
		return nil, err
	}

	if rel.ManyToMany {
		return s.relatedThroughJoin(ctx, rec, rel)
	}

	pred := query.NewPredicateGroup(false).
		Where(rel.Field+"_id", query.OpEqual, rec.ID)
	return s.Find(ctx, rel.Member, pred)
}

// relatedThroughJoin resolves a many-to-many related set through its join
// table (<member table>_<field>, columns source_id/target_id).
func (s *Session) relatedThroughJoin(ctx context.Context, rec *store.Record, rel *store.Relation) ([]*store.Record, error) {
	joinTable := JoinTable(rel)
	sqlText := fmt.Sprintf(
		"SELECT source_id FROM %s WHERE target_id = $1 ORDER BY source_id", joinTable)
	rows, err := s.tx.QueryContext(ctx, sqlText, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("join query failed for %s: %w", joinTable, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*store.Record, 0, len(ids))
	for _, id := range ids {
		member, err := s.loadByID(ctx, rel.Member, id)
		if err != nil {
			return nil, err
		}
		result = append(result, member)
	}
	return result, nil
}

// JoinTable names the join table backing a many-to-many relation.
func JoinTable(rel *store.Relation) string {
	return query.TableForKind(rel.Member) + "_" + rel.Field
}

func (s *Session) insert(ctx context.Context, rec *store.Record) error {
	table := query.TableForKind(rec.Kind)
	cols, vals := columnize(rec.Fields)

	var sqlText string
	if len(cols) == 0 {
		sqlText = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING id", table)
	} else {
		placeholders := make([]string, len(cols))
		for i := range cols {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		sqlText = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	}

	if err := s.tx.QueryRowContext(ctx, sqlText, vals...).Scan(&rec.ID); err != nil {
		return fmt.Errorf("insert failed for %s: %w", rec.Kind, err)
	}
	s.loaded[identity(rec.Kind, rec.ID)] = rec
	return s.syncMemberships(ctx, rec)
}

// syncMemberships rewrites the join-table rows for every many-to-many
// membership field held on the record.
func (s *Session) syncMemberships(ctx context.Context, rec *store.Record) error {
	for field, v := range rec.Fields {
		owners, ok := v.([]*store.Record)
		if !ok {
			continue
		}
		rel := s.db.schema.MembershipRelation(rec.Kind, field)
		if rel == nil {
			continue
		}
		joinTable := JoinTable(rel)
		if _, err := s.tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE source_id = $1", joinTable), rec.ID); err != nil {
			return fmt.Errorf("membership sync failed for %s: %w", joinTable, err)
		}
		for _, owner := range owners {
			if _, err := s.tx.ExecContext(ctx,
				fmt.Sprintf("INSERT INTO %s (source_id, target_id) VALUES ($1, $2)", joinTable),
				rec.ID, owner.ID); err != nil {
				return fmt.Errorf("membership sync failed for %s: %w", joinTable, err)
			}
		}
	}
	return nil
}

func (s *Session) scanAll(ctx context.Context, kind string, rows *sql.Rows) ([]*store.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	type pending struct {
		rec *store.Record
		fks map[string]int64 // field name -> referenced id
	}
	var result []*store.Record
	var toHydrate []pending

	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := store.NewRecord(kind)
		fks := make(map[string]int64)
		for i, col := range columns {
			v := normalize(values[i])
			switch {
			case col == "id":
				rec.ID = v.(int64)
			case strings.HasSuffix(col, "_id") && s.db.schema.ForeignKeyTarget(kind, strings.TrimSuffix(col, "_id")) != "":
				if v != nil {
					fks[strings.TrimSuffix(col, "_id")] = v.(int64)
				}
			default:
				if v != nil {
					rec.Set(col, v)
				}
			}
		}

		if existing, ok := s.loaded[identity(kind, rec.ID)]; ok {
			result = append(result, existing)
			continue
		}
		s.loaded[identity(kind, rec.ID)] = rec
		result = append(result, rec)
		toHydrate = append(toHydrate, pending{rec: rec, fks: fks})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Hydrate foreign keys after the result rows are closed; loadByID runs
	// its own queries.
	for _, p := range toHydrate {
		for field, id := range p.fks {
			target := s.db.schema.ForeignKeyTarget(kind, field)
			ref, err := s.loadByID(ctx, target, id)
			if err != nil {
				return nil, err
			}
			p.rec.Set(field, ref)
		}
	}
	return result, nil
}

func (s *Session) loadByID(ctx context.Context, kind string, id int64) (*store.Record, error) {
	if rec, ok := s.loaded[identity(kind, id)]; ok {
		return rec, nil
	}
	pred := query.NewPredicateGroup(false).Where("id", query.OpEqual, id)
	recs, err := s.Find(ctx, kind, pred)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s id=%d", store.ErrNotFound, kind, id)
	}
	return recs[0], nil
}

// normalizePred rewrites conditions whose value is a *Record into the
// backing <field>_id column and id value, so callers can filter on foreign
// keys the same way against both store backends.
func normalizePred(pg *query.PredicateGroup) *query.PredicateGroup {
	if pg.Empty() {
		return pg
	}
	out := &query.PredicateGroup{Or: pg.Or}
	for _, cond := range pg.Conditions {
		if rec, ok := cond.Value.(*store.Record); ok {
			out.Conditions = append(out.Conditions, &query.Condition{
				Field: cond.Field + "_id", Operator: cond.Operator, Value: rec.ID,
			})
			continue
		}
		out.Conditions = append(out.Conditions, cond)
	}
	for _, rel := range pg.Relations {
		out.Relations = append(out.Relations, &query.RelationPredicate{
			Steps: rel.Steps, Pred: normalizePred(rel.Pred),
		})
	}
	for _, group := range pg.Groups {
		out.Groups = append(out.Groups, normalizePred(group))
	}
	return out
}

func identity(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// columnize maps record fields to columns in deterministic order,
// translating *Record foreign keys into <field>_id values.
func columnize(fields map[string]interface{}) ([]string, []interface{}) {
	keys := sortedKeys(fields)
	cols := make([]string, 0, len(keys))
	vals := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if _, ok := v.([]*store.Record); ok {
			// Many-to-many memberships live in join tables, not columns.
			continue
		}
		cols = append(cols, columnFor(k, v))
		vals = append(vals, bindable(v))
	}
	return cols, vals
}

func columnFor(field string, value interface{}) string {
	if _, ok := value.(*store.Record); ok {
		return field + "_id"
	}
	return field
}

func bindable(value interface{}) interface{} {
	if rec, ok := value.(*store.Record); ok {
		return rec.ID
	}
	return value
}

func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case []byte:
		return string(n)
	default:
		return v
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
