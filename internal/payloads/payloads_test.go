package payloads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

func TestAll_Catalog(t *testing.T) {
	all := All()
	require.Len(t, all, 16)

	assert.Equal(t, "'", all[0].Payload)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", all[15].Payload)

	seen := make(map[string]bool)
	for _, p := range all {
		assert.True(t, p.Category.Valid(), p.Name)
		assert.NotEmpty(t, p.ExpectedBehavior, p.Name)
		assert.False(t, seen[p.Name], "duplicate name %s", p.Name)
		seen[p.Name] = true
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	a := All()
	a[0].Payload = "changed"
	assert.Equal(t, "'", All()[0].Payload)
}

func TestByCategory(t *testing.T) {
	assert.Len(t, ByCategory(model.CategoryInjection), 11)
	assert.Len(t, ByCategory(model.CategorySSRF), 2)
	assert.Len(t, ByCategory(model.CategoryXXE), 1)
	assert.Len(t, ByCategory(model.CategoryIDOR), 2)
	assert.Empty(t, ByCategory(model.CategoryCORS))
}

func TestFind(t *testing.T) {
	p, ok := Find("SQL Injection - Time-based")
	require.True(t, ok)
	assert.Contains(t, p.Payload, "WAITFOR")

	_, ok = Find("nope")
	assert.False(t, ok)
}
