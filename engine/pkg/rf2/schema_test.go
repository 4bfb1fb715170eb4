package rf2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRF2_SchemaFactory_Recognize(t *testing.T) {
	t.Parallel()

	f := NewSchemaFactory()

	t.Run("concept delta", func(t *testing.T) {
		t.Parallel()
		s, err := f.Recognize("/tmp/in/sct2_Concept_Delta_INT_20140731.txt")
		require.NoError(t, err)
		require.Equal(t, "sct2_Concept_Delta_INT_20140731", s.TableName)
		require.Equal(t, "sct2_Concept_Delta_INT_20140731.txt", s.Filename)
		require.Equal(t, ComponentConcept, s.ComponentType)
		require.Equal(t, 1, s.IdentityColumnSpan())
		require.Equal(t, "id\teffectiveTime\tactive\tmoduleId\tdefinitionStatusId", s.Header())
	})

	t.Run("beta relationship", func(t *testing.T) {
		t.Parallel()
		s, err := f.Recognize("xsct2_StatedRelationship_Full_INT_20140731.txt")
		require.NoError(t, err)
		require.Equal(t, ComponentStatedRelationship, s.ComponentType)
		require.Len(t, s.Fields, 10)
		require.Equal(t, Integer, s.Fields[6].Type)
	})

	t.Run("identifier spans two columns", func(t *testing.T) {
		t.Parallel()
		s, err := f.Recognize("sct2_Identifier_Delta_INT_20140731.txt")
		require.NoError(t, err)
		require.Equal(t, 2, s.IdentityColumnSpan())
		require.Equal(t, 2, s.EffectiveTimeIndex())
		id, et, err := s.Identity([]string{"900000000000294009", "A1", "20140731", "1", "900000000000207008", "100005"})
		require.NoError(t, err)
		require.Equal(t, "900000000000294009\tA1", id)
		require.Equal(t, "20140731", et)
	})

	t.Run("simple refset", func(t *testing.T) {
		t.Parallel()
		s, err := f.Recognize("der2_Refset_SimpleDelta_INT_20140731.txt")
		require.NoError(t, err)
		require.True(t, s.IsRefset())
		require.Len(t, s.Fields, 6)
		require.Equal(t, UUID, s.Fields[0].Type)
	})

	t.Run("refset with extra fields named from header", func(t *testing.T) {
		t.Parallel()
		s, err := f.Recognize("der2_ciRefset_RefsetDescriptorDelta_INT_20140731.txt")
		require.NoError(t, err)
		require.Len(t, s.Fields, 8)
		require.Equal(t, SCTID, s.Fields[6].Type)
		require.Equal(t, Integer, s.Fields[7].Type)

		header := "id\teffectiveTime\tactive\tmoduleId\trefsetId\treferencedComponentId\tattributeDescription\tattributeOrder\r\n"
		require.NoError(t, f.PopulateExtendedFields(s, header))
		require.Equal(t, "attributeDescription", s.Fields[6].Name)
		require.Equal(t, "attributeOrder", s.Fields[7].Name)
	})

	t.Run("header with wrong column count", func(t *testing.T) {
		t.Parallel()
		s, err := f.Recognize("der2_cRefset_AttributeValueDelta_INT_20140731.txt")
		require.NoError(t, err)
		err = f.PopulateExtendedFields(s, "id\teffectiveTime")
		require.ErrorIs(t, err, ErrFileRecognition)
	})

	t.Run("unrecognised names", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{
			"sct2_Concept_Delta_INT.txt",
			"rel2_Concept_Delta_INT_20140731.txt",
			"der2_Concept_Delta_INT_20140731.txt",
			"der2_cxRefset_AttributeValueDelta_INT_20140731.txt",
			"sct2_Widget_Delta_INT_20140731.txt",
		} {
			_, err := f.Recognize(name)
			require.ErrorIs(t, err, ErrFileRecognition, name)
		}
	})
}

func TestRF2_NormalizeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     DataType
		in      string
		want    string
		wantErr bool
	}{
		{name: "empty stays empty", typ: SCTID, in: "", want: ""},
		{name: "sctid", typ: SCTID, in: "900000000000207008", want: "900000000000207008"},
		{name: "sctid not numeric", typ: SCTID, in: "null", wantErr: true},
		{name: "integer", typ: Integer, in: "0", want: "0"},
		{name: "integer overflow", typ: Integer, in: "9999999999", wantErr: true},
		{name: "uuid lowercased", typ: UUID, in: "C5C20346-62D2-5FB1-8DF4-82FBDBB4CC49", want: "c5c20346-62d2-5fb1-8df4-82fbdbb4cc49"},
		{name: "uuid invalid", typ: UUID, in: "not-a-uuid", wantErr: true},
		{name: "boolean", typ: Boolean, in: "true", want: "1"},
		{name: "boolean invalid", typ: Boolean, in: "yes", wantErr: true},
		{name: "time", typ: Time, in: "20140731", want: "20140731"},
		{name: "time invalid", typ: Time, in: "2014-07-31", wantErr: true},
		{name: "string untouched", typ: String, in: " a b ", want: " a b "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeValue(tt.typ, tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRF2_SplitLine(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b", ""}, SplitLine("a\tb\t"))
	require.Equal(t, []string{"a", "b"}, SplitLine("a\tb\r"))
	require.Equal(t, "a\tb\t", JoinLine([]string{"a", "b", ""}))
}

func TestRF2_Partition_ID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "00", PartitionConcept.ID(0))
	require.Equal(t, "01", PartitionDescription.ID(0))
	require.Equal(t, "02", PartitionRelationship.ID(0))
	require.Equal(t, "10", PartitionConcept.ID(1000005))
	require.Equal(t, "12", PartitionRelationship.ID(1000005))
	require.Equal(t, "", Partition("bogus").ID(0))
}

func TestRF2_CompositeKeyPattern(t *testing.T) {
	t.Parallel()

	f := NewSchemaFactory()
	mustSchema := func(name string) *TableSchema {
		s, err := f.Recognize(name)
		require.NoError(t, err)
		return s
	}

	t.Run("standard keys by file type", func(t *testing.T) {
		t.Parallel()
		factory := NewCompositeKeyPatternFactory(nil)
		cases := map[string][]int{
			"der2_Refset_SimpleDelta_INT_20140731.txt": {4, 5},
			"der2_sRefset_SimpleMapDelta_INT_20140731.txt": {4, 5, 6},
			"der2_cRefset_AssociationReferenceDelta_INT_20140731.txt": {4, 5, 6},
			"der2_ssRefset_ModuleDependencyDelta_INT_20140731.txt": {4, 5, 6, 7},
			"der2_iisssccRefset_ExtendedMapDelta_INT_20140731.txt": {4, 5, 7, 10},
			"der2_cciRefset_RefsetDescriptorDelta_INT_20140731.txt": {4, 5, 8},
			"der2_iissscRefset_ComplexMapDelta_INT_20140731.txt": {4, 5, 7, 10},
			"der2_cRefset_AttributeValueDelta_INT_20140731.txt": {4, 5},
		}
		for name, want := range cases {
			s := mustSchema(name)
			p, err := factory.Pattern(s, "449608002")
			require.NoError(t, err, name)
			require.Equal(t, want, p.Indexes, name)
			require.False(t, p.Custom)
		}
	})

	t.Run("descriptor without attributeOrder column", func(t *testing.T) {
		t.Parallel()
		_, err := NewCompositeKeyPatternFactory(nil).Pattern(mustSchema("der2_ciRefset_RefsetDescriptorDelta_INT_20140731.txt"), "900000000000456007")
		require.ErrorIs(t, err, ErrBadConfiguration)
	})

	t.Run("custom keys", func(t *testing.T) {
		t.Parallel()
		factory := NewCompositeKeyPatternFactory(map[string][]int{"447562003": {6, 5}})
		p, err := factory.Pattern(mustSchema("der2_iisssccRefset_ExtendedMapDelta_INT_20140731.txt"), "447562003")
		require.NoError(t, err)
		require.True(t, p.Custom)
		require.Equal(t, []int{4, 5, 6}, p.Indexes)

		cols := []string{"id", "20140731", "1", "m", "447562003", "100005", "1", "x"}
		require.Equal(t, "447562003\t100005\t1", p.Key(cols))
	})

	t.Run("out of range custom key", func(t *testing.T) {
		t.Parallel()
		factory := NewCompositeKeyPatternFactory(map[string][]int{"723264001": {12}})
		_, err := factory.Pattern(mustSchema("der2_Refset_SimpleDelta_INT_20140731.txt"), "723264001")
		require.ErrorIs(t, err, ErrBadConfiguration)
	})
}

func TestRF2_ParseCompositeKeys(t *testing.T) {
	t.Parallel()

	keys, err := ParseCompositeKeys("447562003=9|447200001=13,14", " 700043003 = 3, 4 ")
	require.NoError(t, err)
	require.Equal(t, map[string][]int{
		"447562003": {9},
		"447200001": {13, 14},
		"700043003": {3, 4},
	}, keys)

	keys, err = ParseCompositeKeys()
	require.NoError(t, err)
	require.Empty(t, keys)

	for _, bad := range []string{"447562003", "=9", "447562003=", "447562003=x", "447562003=-1"} {
		_, err := ParseCompositeKeys(bad)
		require.ErrorIs(t, err, ErrBadConfiguration, bad)
	}
}
