package exec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

func TestStatsAggregatesAcrossWorkers(t *testing.T) {
	s := NewStats()
	s.RecordGenerated(0, "SELECT 1;", false)
	s.RecordGenerated(1, "SELECT 2;", true)
	s.RecordSubmission(0, 10, time.Millisecond, ".", "", true, false)
	s.RecordSubmission(1, 20, 2*time.Millisecond, "S", rqgerr.SQLClassSyntax, false, false)

	total, perWorker, _, symbols := s.Snapshot()
	require.Equal(t, int64(2), total.Generated)
	require.Equal(t, int64(1), total.DuplicateCollisions)
	require.Equal(t, int64(2), total.Submitted)
	require.Equal(t, int64(1), total.OK)
	require.Equal(t, int64(1), total.ErrorByKind[rqgerr.SQLClassSyntax])
	require.Equal(t, int64(30), total.BytesOut)

	require.Equal(t, int64(1), perWorker[0].OK)
	require.Equal(t, int64(1), perWorker[1].ErrorByKind[rqgerr.SQLClassSyntax])

	require.Equal(t, int64(1), symbols["."])
	require.Equal(t, int64(1), symbols["S"])
}

func TestNormalizeShapeCollapsesLiteralsAndNumbers(t *testing.T) {
	require.Equal(t, "SELECT * FROM t WHERE x = #NUM# AND y = '#STR#';",
		normalizeShape("SELECT * FROM t WHERE x = 42 AND y = 'hello';"))
}

func TestStatsShapeDedupCountsDistinctShapes(t *testing.T) {
	s := NewStats()
	s.RecordGenerated(0, "SELECT * FROM t WHERE x = 1;", false)
	s.RecordGenerated(0, "SELECT * FROM t WHERE x = 2;", false)
	s.RecordGenerated(0, "SELECT * FROM u;", false)

	_, _, shapes, _ := s.Snapshot()
	require.Equal(t, int64(2), shapes["SELECT * FROM t WHERE x = #NUM#;"])
	require.Equal(t, int64(1), shapes["SELECT * FROM u;"])
}
