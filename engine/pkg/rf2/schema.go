package rf2

import (
	"fmt"
	"strings"
)

// DataType is the logical type of an RF2 column.
type DataType int

const (
	SCTID DataType = iota
	UUID
	Boolean
	Time
	Integer
	String
)

func (t DataType) String() string {
	switch t {
	case SCTID:
		return "SCTID"
	case UUID:
		return "UUID"
	case Boolean:
		return "BOOLEAN"
	case Time:
		return "TIME"
	case Integer:
		return "INTEGER"
	case String:
		return "STRING"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// ComponentType classifies the table an RF2 file is loaded into.
type ComponentType int

const (
	ComponentConcept ComponentType = iota
	ComponentDescription
	ComponentTextDefinition
	ComponentRelationship
	ComponentStatedRelationship
	ComponentIdentifier
	ComponentRefset
)

func (c ComponentType) String() string {
	switch c {
	case ComponentConcept:
		return "Concept"
	case ComponentDescription:
		return "Description"
	case ComponentTextDefinition:
		return "TextDefinition"
	case ComponentRelationship:
		return "Relationship"
	case ComponentStatedRelationship:
		return "StatedRelationship"
	case ComponentIdentifier:
		return "Identifier"
	case ComponentRefset:
		return "Refset"
	default:
		return fmt.Sprintf("ComponentType(%d)", int(c))
	}
}

// Field is one named, typed column.
type Field struct {
	Name string
	Type DataType
}

// TableSchema describes one RF2 file. It is built by SchemaFactory and not
// modified after the store hands it out.
type TableSchema struct {
	// TableName is the filename without extension.
	TableName     string
	Filename      string
	ComponentType ComponentType
	Fields        []Field
}

func newTableSchema(filename, tableName string, ct ComponentType) *TableSchema {
	return &TableSchema{TableName: tableName, Filename: filename, ComponentType: ct}
}

func (s *TableSchema) field(name string, t DataType) *TableSchema {
	s.Fields = append(s.Fields, Field{Name: name, Type: t})
	return s
}

// IdentityColumnSpan is the number of leading columns forming a row's
// identity: 2 for identifier components, 1 otherwise.
func (s *TableSchema) IdentityColumnSpan() int {
	if s.ComponentType == ComponentIdentifier {
		return 2
	}
	return 1
}

// EffectiveTimeIndex is the column index holding the effective time.
func (s *TableSchema) EffectiveTimeIndex() int {
	return s.IdentityColumnSpan()
}

// IdentityFields returns the fields making up a row's identity.
func (s *TableSchema) IdentityFields() []Field {
	return s.Fields[:s.IdentityColumnSpan()]
}

// Header returns the field names joined by the column separator.
func (s *TableSchema) Header() string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return strings.Join(names, ColumnSeparator)
}

// IsRefset reports whether rows are reference set members.
func (s *TableSchema) IsRefset() bool {
	return s.ComponentType == ComponentRefset
}

// FileIs reports whether the filename carries the given file identifier,
// e.g. AttributeValueFileIdentifier.
func (s *TableSchema) FileIs(identifier string) bool {
	return strings.Contains(s.Filename, identifier)
}

// Identity extracts the identity and effective time of a split row.
func (s *TableSchema) Identity(cols []string) (identity, effectiveTime string, err error) {
	span := s.IdentityColumnSpan()
	if len(cols) <= span {
		return "", "", fmt.Errorf("row has %d columns, need at least %d", len(cols), span+1)
	}
	if span == 2 {
		return cols[0] + ColumnSeparator + cols[1], cols[2], nil
	}
	return cols[0], cols[1], nil
}
