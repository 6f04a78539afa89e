package uniqueness

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	f := NewBloomFilter(1000, 0.01)

	fps := make([]Fingerprint, 500)
	for i := range fps {
		fps[i] = Fingerprint128(fmt.Sprintf("query-%d", i))
		require.True(t, f.CheckAndAdd(fps[i]), "first sight of a fingerprint must be fresh")
	}
	for _, fp := range fps {
		require.True(t, f.Contains(fp), "no false negatives: every added fingerprint must still be contained")
	}
}

func TestBloomFilterSecondAddIsDuplicate(t *testing.T) {
	f := NewBloomFilter(1000, 0.01)
	fp := Fingerprint128("SELECT 1")

	require.True(t, f.CheckAndAdd(fp))
	require.False(t, f.CheckAndAdd(fp))
	require.False(t, f.CheckAndAdd(fp))
}

// P3: false positive rate stays within a small multiple of the
// configured target across a filter filled up to, but not past, its
// designed capacity.
func TestBloomFilterFalsePositiveRateNearTarget(t *testing.T) {
	const capacity = 5000
	const targetFPR = 0.01
	f := NewBloomFilter(capacity, targetFPR)

	for i := 0; i < capacity; i++ {
		f.CheckAndAdd(Fingerprint128(fmt.Sprintf("seen-%d", i)))
	}

	falsePositives := 0
	const probes = 20000
	for i := 0; i < probes; i++ {
		fp := Fingerprint128(fmt.Sprintf("unseen-%d", i))
		if f.Contains(fp) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / probes
	// Generous slack: this is a statistical property, not an exact
	// bound, and the test must not be flaky.
	require.Less(t, rate, targetFPR*5)
}

func TestBloomFilterConcurrentCheckAndAddHasNoFalseNegatives(t *testing.T) {
	f := NewBloomFilter(10000, 0.001)

	const workers = 16
	const perWorker = 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				f.CheckAndAdd(Fingerprint128(fmt.Sprintf("w%d-%d", w, i)))
			}
		}()
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			require.True(t, f.Contains(Fingerprint128(fmt.Sprintf("w%d-%d", w, i))))
		}
	}
}

func TestFingerprint128Deterministic(t *testing.T) {
	a := Fingerprint128("SELECT * FROM t;")
	b := Fingerprint128("SELECT * FROM t;")
	c := Fingerprint128("SELECT * FROM u;")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
