package usecase

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/baitwatch/internal/adapter/metrics"
)

func TestCachedClassifier(t *testing.T) {
	m := metrics.NewIngestMetrics(prometheus.NewRegistry())
	counter := &countingClassifier{next: defaultClassifier(t)}
	c, err := NewCachedClassifier(counter, 2, m)
	require.NoError(t, err)

	first := c.Classify("curl/7.68.0", "/.env")
	second := c.Classify("curl/7.68.0", "/.env")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, counter.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassifyCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassifyCacheMiss))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Classifications.WithLabelValues("malicious")))

	t.Run("returned slices are independent of the cache", func(t *testing.T) {
		res := c.Classify("curl/7.68.0", "/.env")
		res.MatchedPatterns[0] = "tampered"
		assert.Equal(t, first, c.Classify("curl/7.68.0", "/.env"))
	})

	t.Run("bounded size evicts least recently used", func(t *testing.T) {
		c.Classify("Googlebot/2.1", "/")
		c.Classify("python-requests/2.28.0", "/wp-admin/")
		assert.Equal(t, 2, c.Len())

		before := counter.calls
		c.Classify("curl/7.68.0", "/.env")
		assert.Equal(t, before+1, counter.calls, "evicted pair is recomputed")
	})
}

func TestCachedClassifier_Concurrent(t *testing.T) {
	c, err := NewCachedClassifier(defaultClassifier(t), 8, metrics.NewIngestMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)

	paths := []string{"/", "/.env", "/wp-admin/", "/admin", "/.git/config", "/robots.txt"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p := paths[(i+j)%len(paths)]
				res := c.Classify("curl/7.68.0", p)
				assert.NotEmpty(t, res.ThreatLevel)
			}
		}(i)
	}
	wg.Wait()
}

func TestNewCachedClassifier_RejectsInvalidSize(t *testing.T) {
	_, err := NewCachedClassifier(defaultClassifier(t), 0, metrics.NewIngestMetrics(prometheus.NewRegistry()))
	require.Error(t, err)
}
