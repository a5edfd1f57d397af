package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJavaReserved(t *testing.T) {
	for _, w := range []string{"int", "class", "null", "true", "goto", "const"} {
		assert.True(t, Java.IsReserved(w), w)
	}
	for _, w := range []string{"count", "int_", "Class", "string", ""} {
		assert.False(t, Java.IsReserved(w), w)
	}
}

func TestWith(t *testing.T) {
	s := Java.With("record", "var")
	assert.True(t, s.IsReserved("record"))
	assert.True(t, s.IsReserved("int"))
	assert.False(t, Java.IsReserved("record"), "original set is unchanged")
}
