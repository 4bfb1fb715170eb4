package rf2

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrFileRecognition is returned when a filename does not follow the RF2
// naming convention <FileType>_<ContentType>_<ContentSubType>_<Country|Namespace>_<VersionDate>.txt
var ErrFileRecognition = errors.New("file not recognised as RF2")

// SchemaFactory derives table schemas from RF2 file names and headers.
type SchemaFactory struct{}

func NewSchemaFactory() *SchemaFactory {
	return &SchemaFactory{}
}

// Recognize returns the schema for a file name. Refset files whose content
// type carries extra field characters (e.g. cRefset) get their extra fields
// named by PopulateExtendedFields.
func (f *SchemaFactory) Recognize(filename string) (*TableSchema, error) {
	base := filepath.Base(filename)
	tableName := base
	if i := strings.Index(base, "."); i >= 0 {
		tableName = base[:i]
	}

	parts := strings.Split(tableName, FileNameSeparator)
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: %s contains %d underscores, expected 4", ErrFileRecognition, base, len(parts)-1)
	}
	fileType := strings.TrimPrefix(parts[0], BetaPrefix)
	contentType := parts[1]

	switch fileType {
	case DER2, SCT2:
	default:
		return nil, fmt.Errorf("%w: file type %q is not supported", ErrFileRecognition, parts[0])
	}

	if strings.HasSuffix(contentType, "Refset") {
		return refsetSchema(base, tableName, contentType)
	}
	if fileType == DER2 {
		return nil, fmt.Errorf("%w: content type %q is not supported", ErrFileRecognition, contentType)
	}
	return componentSchema(base, tableName, contentType)
}

// PopulateExtendedFields names the schema's fields from the header line, so
// extra refset fields get their real names and exported headers match the
// input verbatim.
func (f *SchemaFactory) PopulateExtendedFields(schema *TableSchema, header string) error {
	names := strings.Split(strings.TrimRight(header, "\r\n"), ColumnSeparator)
	if len(names) != len(schema.Fields) {
		return fmt.Errorf("%w: header of %s has %d columns, expected %d", ErrFileRecognition, schema.Filename, len(names), len(schema.Fields))
	}
	for i, name := range names {
		if name == "" {
			return fmt.Errorf("%w: header of %s has an empty column name at %d", ErrFileRecognition, schema.Filename, i)
		}
		schema.Fields[i].Name = name
	}
	return nil
}

var simpleRefsetFields = []Field{
	{Name: "id", Type: UUID},
	{Name: EffectiveTimeField, Type: Time},
	{Name: "active", Type: Boolean},
	{Name: "moduleId", Type: SCTID},
	{Name: "refsetId", Type: SCTID},
	{Name: "referencedComponentId", Type: SCTID},
}

func refsetSchema(filename, tableName, contentType string) (*TableSchema, error) {
	s := newTableSchema(filename, tableName, ComponentRefset)
	s.Fields = append(s.Fields, simpleRefsetFields...)
	for i, c := range strings.TrimSuffix(contentType, "Refset") {
		var t DataType
		switch c {
		case 'c':
			t = SCTID
		case 'i':
			t = Integer
		case 's':
			t = String
		default:
			return nil, fmt.Errorf("%w: unexpected character %q within content type of refset file %s", ErrFileRecognition, c, filename)
		}
		s.field(fmt.Sprintf("field%d", len(simpleRefsetFields)+i), t)
	}
	return s, nil
}

func componentSchema(filename, tableName, contentType string) (*TableSchema, error) {
	switch contentType {
	case "Concept":
		return newTableSchema(filename, tableName, ComponentConcept).
			field("id", SCTID).
			field(EffectiveTimeField, Time).
			field("active", Boolean).
			field("moduleId", SCTID).
			field("definitionStatusId", SCTID), nil
	case "Description", "TextDefinition":
		ct := ComponentDescription
		if contentType == "TextDefinition" {
			ct = ComponentTextDefinition
		}
		return newTableSchema(filename, tableName, ct).
			field("id", SCTID).
			field(EffectiveTimeField, Time).
			field("active", Boolean).
			field("moduleId", SCTID).
			field("conceptId", SCTID).
			field("languageCode", String).
			field("typeId", SCTID).
			field("term", String).
			field("caseSignificanceId", SCTID), nil
	case "Relationship", "StatedRelationship":
		ct := ComponentRelationship
		if contentType == "StatedRelationship" {
			ct = ComponentStatedRelationship
		}
		return newTableSchema(filename, tableName, ct).
			field("id", SCTID).
			field(EffectiveTimeField, Time).
			field("active", Boolean).
			field("moduleId", SCTID).
			field("sourceId", SCTID).
			field("destinationId", SCTID).
			field("relationshipGroup", Integer).
			field("typeId", SCTID).
			field("characteristicTypeId", SCTID).
			field("modifierId", SCTID), nil
	case "RelationshipConcreteValues":
		return newTableSchema(filename, tableName, ComponentRelationship).
			field("id", SCTID).
			field(EffectiveTimeField, Time).
			field("active", Boolean).
			field("moduleId", SCTID).
			field("sourceId", SCTID).
			field("value", String).
			field("relationshipGroup", Integer).
			field("typeId", SCTID).
			field("characteristicTypeId", SCTID).
			field("modifierId", SCTID), nil
	case "Identifier":
		return newTableSchema(filename, tableName, ComponentIdentifier).
			field("identifierSchemeId", SCTID).
			field("alternateIdentifier", String).
			field(EffectiveTimeField, Time).
			field("active", Boolean).
			field("moduleId", SCTID).
			field("referencedComponentId", SCTID), nil
	default:
		return nil, fmt.Errorf("%w: content type %q is not supported", ErrFileRecognition, contentType)
	}
}
