package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "single word", in: "Order", want: "order"},
		{name: "two words", in: "OrderLine", want: "order_line"},
		{name: "three words", in: "CustomerOrderLine", want: "customer_order_line"},
		{name: "already lower", in: "order", want: "order"},
		{name: "trailing acronym-ish", in: "OrderV2", want: "order_v2"},
		{name: "all caps", in: "ID", want: "id"},
		{name: "trailing acronym", in: "CustomerID", want: "customer_id"},
		{name: "leading acronym", in: "HTTPLog", want: "http_log"},
		{name: "inner acronym", in: "OrderIDList", want: "order_id_list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TableName(tt.in))
		})
	}
}

func TestDescriptorValidation(t *testing.T) {
	tests := []struct {
		name    string
		desc    *Descriptor
		wantErr error
	}{
		{
			name:    "empty name",
			desc:    &Descriptor{Fields: []Field{{Name: "ID", Kind: KindInt, PrimaryKey: true}}},
			wantErr: ErrEmptyName,
		},
		{
			name:    "no fields",
			desc:    &Descriptor{Name: "Thing"},
			wantErr: ErrNoFields,
		},
		{
			name: "no primary key",
			desc: &Descriptor{
				Name:   "Thing",
				Fields: []Field{{Name: "Name", Kind: KindString}},
			},
			wantErr: ErrNoPrimaryKey,
		},
		{
			name: "duplicate field",
			desc: &Descriptor{
				Name: "Thing",
				Fields: []Field{
					{Name: "ID", Kind: KindInt, PrimaryKey: true},
					{Name: "ID", Kind: KindString},
				},
			},
			wantErr: ErrDuplicateField,
		},
		{
			name: "relationship without target",
			desc: &Descriptor{
				Name:          "Thing",
				Fields:        []Field{{Name: "ID", Kind: KindInt, PrimaryKey: true}},
				Relationships: []Relationship{{Name: "Owner", ForeignKey: "OwnerID"}},
			},
			wantErr: ErrIncompleteRelationship,
		},
		{
			name: "valid",
			desc: &Descriptor{
				Name:   "OrderLine",
				Fields: []Field{{Name: "ID", Kind: KindInt, PrimaryKey: true}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := NewSchema()
			err := schema.Register(tt.desc)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			// Defaults derive from names.
			assert.Equal(t, "order_line", tt.desc.Table)
			assert.Equal(t, "id", tt.desc.Fields[0].Column)
		})
	}
}

func TestDescriptorLookups(t *testing.T) {
	schema := NewSchema()
	desc := &Descriptor{
		Name: "Order",
		Fields: []Field{
			{Name: "ID", Kind: KindString, PrimaryKey: true},
			{Name: "Total", Kind: KindFloat},
		},
	}
	require.NoError(t, schema.Register(desc))

	f, err := desc.Field("Total")
	require.NoError(t, err)
	assert.Equal(t, "total", f.Column)

	_, err = desc.Field("Nope")
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = desc.Relationship("Nope")
	assert.ErrorIs(t, err, ErrUnknownRelationship)

	keys := desc.KeyFields()
	require.Len(t, keys, 1)
	assert.Equal(t, "ID", keys[0].Name)
}

func TestValidateValues(t *testing.T) {
	schema := NewSchema()
	desc := &Descriptor{
		Name: "Order",
		Fields: []Field{
			{Name: "ID", Kind: KindString, PrimaryKey: true},
			{Name: "Total", Kind: KindFloat},
			{Name: "Note", Kind: KindString, Nullable: true},
		},
	}
	require.NoError(t, schema.Register(desc))

	tests := []struct {
		name    string
		values  map[string]any
		wantErr error
	}{
		{
			name:   "complete",
			values: map[string]any{"ID": "o1", "Total": 10.0},
		},
		{
			name:   "nullable absent",
			values: map[string]any{"ID": "o1", "Total": 10.0},
		},
		{
			name:    "required missing",
			values:  map[string]any{"ID": "o1"},
			wantErr: ErrNullValue,
		},
		{
			name:    "required nil",
			values:  map[string]any{"ID": "o1", "Total": nil},
			wantErr: ErrNullValue,
		},
		{
			name:    "wrong kind",
			values:  map[string]any{"ID": "o1", "Total": "ten"},
			wantErr: ErrTypeMismatch,
		},
		{
			name:    "unknown field",
			values:  map[string]any{"ID": "o1", "Total": 10.0, "Ghost": 1},
			wantErr: ErrUnknownField,
		},
		{
			name:   "unset primary key allowed",
			values: map[string]any{"Total": 10.0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := desc.ValidateValues(tt.values)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
