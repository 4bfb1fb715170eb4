package sqlstore

import (
	"fmt"
	"strings"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func columnType(t rf2.DataType) string {
	switch t {
	case rf2.SCTID:
		return "BIGINT"
	case rf2.UUID:
		return "UUID"
	case rf2.Boolean:
		return "BOOLEAN"
	case rf2.Time:
		return "TIMESTAMP"
	case rf2.Integer:
		return "INTEGER"
	default:
		return "VARCHAR"
	}
}

func createTableSQL(table string, schema *rf2.TableSchema) string {
	cols := make([]string, 0, len(schema.Fields)+1)
	for _, f := range schema.Fields {
		cols = append(cols, quote(f.Name)+" "+columnType(f.Type))
	}
	cols = append(cols, seqColumn+" BIGINT NOT NULL")
	return fmt.Sprintf("CREATE TABLE %s (%s)", quote(table), strings.Join(cols, ", "))
}

func insertSQL(table string, schema *rf2.TableSchema) string {
	names := make([]string, 0, len(schema.Fields)+1)
	params := make([]string, 0, len(schema.Fields)+1)
	for i, f := range schema.Fields {
		names = append(names, quote(f.Name))
		p := fmt.Sprintf("$%d", i+1)
		if f.Type == rf2.UUID {
			p = "CAST(" + p + " AS UUID)"
		}
		params = append(params, p)
	}
	names = append(names, seqColumn)
	params = append(params, fmt.Sprintf("$%d", len(schema.Fields)+1))
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(names, ", "), strings.Join(params, ", "))
}

// keyColumns lists the identity columns followed by effectiveTime.
func keyColumns(schema *rf2.TableSchema) []string {
	cols := make([]string, 0, schema.IdentityColumnSpan()+1)
	for _, f := range schema.IdentityFields() {
		cols = append(cols, quote(f.Name))
	}
	return append(cols, quote(schema.Fields[schema.EffectiveTimeIndex()].Name))
}

// dedupeSQL keeps only the latest ingested row per (identity, effectiveTime).
func dedupeSQL(table string, schema *rf2.TableSchema) string {
	return fmt.Sprintf(
		"DELETE FROM %[1]s WHERE %[2]s IN (SELECT %[2]s FROM (SELECT %[2]s, ROW_NUMBER() OVER (PARTITION BY %[3]s ORDER BY %[2]s DESC) AS rn FROM %[1]s) AS ranked WHERE rn > 1)",
		quote(table), seqColumn, strings.Join(keyColumns(schema), ", "))
}

// selectSQL orders by identity then effectiveTime. Text identity columns
// compare bytewise so both dialects agree with the in-memory ordering.
func selectSQL(dialect Dialect, table string, schema *rf2.TableSchema, byEffectiveTime, none bool) string {
	cols := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		if f.Type == rf2.UUID {
			cols[i] = "CAST(" + quote(f.Name) + " AS VARCHAR)"
		} else {
			cols[i] = quote(f.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), quote(table))
	if none {
		b.WriteString(" LIMIT 0")
		return b.String()
	}
	if byEffectiveTime {
		fmt.Fprintf(&b, " WHERE %s = $1", quote(schema.Fields[schema.EffectiveTimeIndex()].Name))
	}

	order := make([]string, 0, schema.IdentityColumnSpan()+1)
	for _, f := range schema.IdentityFields() {
		c := quote(f.Name)
		if f.Type == rf2.String && dialect == DialectPostgres {
			c += ` COLLATE "C"`
		}
		order = append(order, c)
	}
	order = append(order, quote(schema.Fields[schema.EffectiveTimeIndex()].Name))
	fmt.Fprintf(&b, " ORDER BY %s", strings.Join(order, ", "))
	return b.String()
}
