package transform

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

type Config struct {
	Logger *slog.Logger
	// EffectiveTime stamps rows that arrive without one, as yyyyMMdd.
	EffectiveTime string
	Identifiers   IdentifierFactory
	Namespace     int
	CoreModuleID  string
	ModelModuleID string
	BufferSize    int

	// ModelConceptIDs enables the module id fix: active components of these
	// concepts move to the model module, all others to the core module.
	ModelConceptIDs map[string]struct{}
	// ExistingRelationshipIDs maps relationship UUIDs to SCTIDs already
	// published for them.
	ExistingRelationshipIDs map[string]string
	NewUUID                 func() uuid.UUID
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Identifiers == nil {
		return errors.New("identifier factory is required")
	}
	if _, err := rf2.ParseDate(cfg.EffectiveTime); err != nil {
		return fmt.Errorf("invalid effective time: %w", err)
	}
	if cfg.Namespace < 0 {
		return fmt.Errorf("invalid namespace %d", cfg.Namespace)
	}
	if cfg.CoreModuleID == "" {
		cfg.CoreModuleID = rf2.InternationalCoreModuleID
	}
	if cfg.ModelModuleID == "" {
		cfg.ModelModuleID = rf2.InternationalModelModuleID
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.NewUUID == nil {
		cfg.NewUUID = uuid.New
	}
	return nil
}

// Factory builds the ordered transformations for each RF2 file type.
type Factory struct {
	log *slog.Logger
	cfg Config
}

func NewFactory(cfg Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Factory{log: cfg.Logger, cfg: cfg}, nil
}

// PreProcess returns the identifier-minting pass for files other files
// refer to: concepts, descriptions and stated relationships. It must run
// over all of them before ForSchema so references resolve from the cache.
func (f *Factory) PreProcess(schema *rf2.TableSchema) (*StreamingFileTransformation, bool) {
	var t *StreamingFileTransformation
	switch schema.ComponentType {
	case rf2.ComponentConcept:
		t = f.newTransformation().
			Add(f.randomID()).
			AddBatch(f.sctid(0, 3, rf2.PartitionConcept))
		f.withModuleFix(t, 0, 2, 3)
	case rf2.ComponentDescription:
		t = f.newTransformation().
			Add(f.randomID()).
			AddBatch(f.sctid(0, 3, rf2.PartitionDescription))
		f.withModuleFix(t, 4, 2, 3)
	case rf2.ComponentStatedRelationship:
		t = f.newTransformation().
			Add(RepeatableRelationshipUUID{Stated: true}).
			AddBatch(f.sctid(0, 3, rf2.PartitionRelationship))
	default:
		return nil, false
	}
	return t, true
}

// ForSchema returns the main transformation for a file. Sentinel ids are
// minted, sentinel effective times stamped, and UUID references replaced
// with SCTIDs minted earlier in the build. Values already set are left
// alone, so running it twice changes nothing.
func (f *Factory) ForSchema(schema *rf2.TableSchema) (*StreamingFileTransformation, error) {
	t := f.newTransformation()
	switch schema.ComponentType {
	case rf2.ComponentConcept:
		t.Add(f.randomID()).
			AddBatch(f.sctid(0, 3, rf2.PartitionConcept))
		f.withModuleFix(t, 0, 2, 3)
	case rf2.ComponentDescription, rf2.ComponentTextDefinition:
		t.Add(f.randomID()).
			AddBatch(f.sctid(0, 3, rf2.PartitionDescription))
		f.withModuleFix(t, 4, 2, 3)
	case rf2.ComponentStatedRelationship:
		t.Add(RepeatableRelationshipUUID{Stated: true}).
			AddBatch(f.sctid(0, 3, rf2.PartitionRelationship))
		f.withModuleFix(t, 5, 2, 3)
	case rf2.ComponentRelationship:
		t.Add(ReplaceValue{Column: 3, Value: f.cfg.CoreModuleID, OnlyIfEmpty: true}).
			Add(RepeatableRelationshipUUID{})
		if f.cfg.ExistingRelationshipIDs != nil {
			t.Add(ReplaceFromMap{Column: 0, Values: f.cfg.ExistingRelationshipIDs})
		}
		t.AddBatch(f.sctid(0, 3, rf2.PartitionRelationship))
	case rf2.ComponentIdentifier:
		// identifierSchemeId names a scheme concept, it is never minted here.
		t.Add(SCTIDFromCache{Column: 0, Factory: f.cfg.Identifiers})
		f.withModuleFix(t, 5, 3, 4)
	case rf2.ComponentRefset:
		t.Add(f.randomID())
		f.withModuleFix(t, 5, 2, 3)
	default:
		return nil, fmt.Errorf("%w: no transformation available for %s", rf2.ErrFileRecognition, schema.Filename)
	}

	t.Add(ReplaceValue{Column: schema.EffectiveTimeIndex(), Value: f.cfg.EffectiveTime, OnlyIfEmpty: true})
	for i, field := range schema.Fields {
		if i < schema.IdentityColumnSpan() || field.Type != rf2.SCTID {
			continue
		}
		t.Add(SCTIDFromCache{Column: i, Factory: f.cfg.Identifiers})
	}
	return t, nil
}

func (f *Factory) newTransformation() *StreamingFileTransformation {
	return NewStreamingFileTransformation(f.log, f.cfg.BufferSize)
}

func (f *Factory) randomID() LineTransformation {
	return RandomUUID{Column: 0, NewUUID: f.cfg.NewUUID}
}

func (f *Factory) sctid(col, moduleCol int, partition rf2.Partition) SCTIDTransformation {
	return SCTIDTransformation{
		Column:       col,
		ModuleColumn: moduleCol,
		PartitionID:  partition.ID(f.cfg.Namespace),
		Factory:      f.cfg.Identifiers,
	}
}

// withModuleFix prepends the module id fix keyed on conceptCol when model
// concept ids are configured.
func (f *Factory) withModuleFix(t *StreamingFileTransformation, conceptCol, activeCol, moduleCol int) {
	if f.cfg.ModelConceptIDs == nil {
		return
	}
	t.Prepend(Conditional{
		Conditions: []Condition{
			ColumnIn(conceptCol, f.cfg.ModelConceptIDs),
			ColumnEquals(activeCol, rf2.BooleanTrue),
		},
		Then:      ReplaceValue{Column: moduleCol, Value: f.cfg.ModelModuleID},
		Otherwise: ReplaceValue{Column: moduleCol, Value: f.cfg.CoreModuleID},
	})
}
