package rf2

const (
	ColumnSeparator   = "\t"
	LineEnding        = "\r\n"
	FileNameSeparator = "_"
	TxtFileExtension  = ".txt"

	// DateLayout is the yyyyMMdd effective time format.
	DateLayout = "20060102"

	BooleanTrue  = "1"
	BooleanFalse = "0"
	NullString   = "null"
	EmptySpace   = ""

	Delta    = "Delta"
	Full     = "Full"
	Snapshot = "Snapshot"

	SCT2 = "sct2"
	DER2 = "der2"

	// BetaPrefix marks pre-release file names, e.g. xsct2 or xder2.
	BetaPrefix = "x"

	EffectiveTimeField = "effectiveTime"
)

const (
	InternationalNamespaceID     = 0
	InternationalCoreModuleID    = "900000000000207008"
	InternationalModelModuleID   = "900000000000012004"
	CTV3IDRefsetID               = "900000000000497000"
	SNOMEDIDRefsetID             = "900000000000498005"
	IsA                          = "116680003"
	StatedRelationshipTypeMarker = "Stated"
)

// File identifiers found in refset file names.
const (
	AttributeValueFileIdentifier       = "AttributeValue"
	SimpleMapFileIdentifier            = "SimpleMap"
	AssociationReferenceFileIdentifier = "AssociationReference"
	ExtendedMapFileIdentifier          = "ExtendedMap"
	RefsetDescriptorFileIdentifier     = "RefsetDescriptor"
	ModuleDependencyFileIdentifier     = "ModuleDependency"
	ComplexMapFileIdentifier           = "ComplexMap"
	LanguageFileIdentifier             = "Language"
)

// Partition identifies the component kind an SCTID is issued for.
type Partition string

const (
	PartitionConcept      Partition = "concept"
	PartitionDescription  Partition = "description"
	PartitionRelationship Partition = "relationship"
)

// ID returns the two-digit partition id for the namespace. The international
// namespace uses the short format, extension namespaces the long one.
func (p Partition) ID(namespaceID int) string {
	var digit string
	switch p {
	case PartitionConcept:
		digit = "0"
	case PartitionDescription:
		digit = "1"
	case PartitionRelationship:
		digit = "2"
	default:
		return ""
	}
	if namespaceID == InternationalNamespaceID {
		return "0" + digit
	}
	return "1" + digit
}

// IsSentinel reports whether a value is a "to be replaced" placeholder.
func IsSentinel(v string) bool {
	return v == EmptySpace || v == NullString
}
