package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTypeText(t *testing.T) {
	tests := []struct {
		input string
		want  TypeParts
	}{
		{"INTEGER", TypeParts{Name: "integer"}},
		{"varchar(255)", TypeParts{Name: "varchar", Size: 255}},
		{"decimal(10,2)", TypeParts{Name: "decimal", Size: 10, Scale: 2}},
		{"int(10) unsigned", TypeParts{Name: "int", Size: 10, Unsigned: true}},
		{"character varying(64)", TypeParts{Name: "character varying", Size: 64}},
		{"timestamp(6) without time zone", TypeParts{Name: "timestamp without time zone", Size: 6}},
		{"numeric( 8 , 3 )", TypeParts{Name: "numeric", Size: 8, Scale: 3}},
		{"bigint unsigned zerofill", TypeParts{Name: "bigint", Unsigned: true}},
		{"", TypeParts{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTypeText(tt.input))
		})
	}
}

func TestColumnTypeString(t *testing.T) {
	assert.Equal(t, "varchar", TypeVarchar.String())
	assert.Equal(t, "jsonb", TypeJSONB.String())
	assert.Equal(t, "unknown", ColumnType(999).String())
	assert.True(t, TypeDecimal.IsNumeric())
	assert.False(t, TypeText.IsNumeric())
}

func TestColumnDefault(t *testing.T) {
	c := Column{Name: "status"}
	assert.False(t, c.HasDefault())
	assert.Equal(t, "", c.DefaultValue())

	c.Default = Default("'active'")
	assert.True(t, c.HasDefault())
	assert.Equal(t, "'active'", c.DefaultValue())
}
