package schema

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministicAcrossEquivalentViews(t *testing.T) {
	v1 := NewView(sampleTables())
	v2 := NewView(append([]Table(nil), sampleTables()...))

	require.Equal(t, v1.Fingerprint(), v2.Fingerprint())
	_, err := uuid.Parse(v1.Fingerprint())
	require.NoError(t, err)
}

func TestFingerprintChangesWithShape(t *testing.T) {
	v1 := NewView(sampleTables())

	tables := sampleTables()
	tables[0].Columns = append(tables[0].Columns, Column{Name: "extra", Type: TypeString})
	v2 := NewView(tables)

	require.NotEqual(t, v1.Fingerprint(), v2.Fingerprint())
}

func TestFingerprintOfEmptyViewIsStable(t *testing.T) {
	require.Equal(t, Empty().Fingerprint(), Empty().Fingerprint())
}
