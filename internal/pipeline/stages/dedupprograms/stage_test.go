package dedupprograms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
	"github.com/jmylchreest/m3u-proxy/internal/testutil"
)

// prog builds a program with the given title and times on channel "c1".
func prog(title string, start time.Time, duration time.Duration) *models.EpgProgram {
	p := &models.EpgProgram{
		ChannelID: "c1",
		Title:     title,
		Start:     start,
		Stop:      start.Add(duration),
	}
	p.ID = models.NewULID()
	return p
}

// run executes the dedup stage over programs, in order.
func run(t *testing.T, programs []*models.EpgProgram) ([]*models.EpgProgram, *core.State) {
	t.Helper()

	state := testutil.NewState(t, &repository.ProxyConfig{Proxy: testutil.SampleProxy("dedup")})
	state.Programs = iterator.FromSlice(programs)

	ctx := context.Background()
	_, err := New().Execute(ctx, state)
	require.NoError(t, err)

	kept, err := iterator.Collect[*models.EpgProgram](ctx, state.Programs, 100)
	require.NoError(t, err)
	return kept, state
}

var noon = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDedup_ExactTier(t *testing.T) {
	kept, state := run(t, []*models.EpgProgram{
		prog("Breaking News", noon, time.Hour),
		prog("BREAKING NEWS", noon, time.Hour), // case-insensitive exact dup
	})

	assert.Len(t, kept, 1)
	assert.Equal(t, 1, state.Counters.DedupExact)
}

func TestDedup_NearTier(t *testing.T) {
	kept, state := run(t, []*models.EpgProgram{
		prog("Breaking News", noon, time.Hour),
		prog("Breaking News", noon.Add(3*time.Minute), 61*time.Minute), // within ±5m on both ends
	})

	assert.Len(t, kept, 1)
	assert.Equal(t, 1, state.Counters.DedupNear)
}

func TestDedup_NearTierOutsideWindowKept(t *testing.T) {
	kept, _ := run(t, []*models.EpgProgram{
		prog("Breaking News", noon, time.Hour),
		prog("Breaking News", noon.Add(30*time.Minute), time.Hour),
	})

	assert.Len(t, kept, 2)
}

func TestDedup_TitleSimilarTier(t *testing.T) {
	// Ten shared tokens, one extra in the variant: Jaccard 10/11 > 0.9,
	// starts 5 minutes apart.
	base := "the morning news review with extra commentary and analysis today"
	variant := base + " tonight"

	kept, state := run(t, []*models.EpgProgram{
		prog(base, noon, time.Hour),
		prog(variant, noon.Add(5*time.Minute), time.Hour),
	})

	assert.Len(t, kept, 1)
	assert.Equal(t, 1, state.Counters.DedupSimilar)
}

func TestDedup_SimilarOutsideTimeWindowKept(t *testing.T) {
	base := "the morning news review with extra commentary and analysis today"
	variant := base + " tonight"

	kept, _ := run(t, []*models.EpgProgram{
		prog(base, noon, time.Hour),
		prog(variant, noon.Add(20*time.Minute), time.Hour),
	})

	assert.Len(t, kept, 2)
}

func TestDedup_DissimilarTitlesKept(t *testing.T) {
	kept, _ := run(t, []*models.EpgProgram{
		prog("Morning Briefing", noon, time.Hour),
		prog("Deep Ocean", noon, time.Hour),
	})

	assert.Len(t, kept, 2)
}

func TestDedup_FirstSourceWins(t *testing.T) {
	// Three sources, priority order S1 > S2 > S3. S1 and S2 emit identical
	// programmes, S3 a near-duplicate; only S1's survives.
	s1 := prog("Breaking News", noon, time.Hour)
	s2 := prog("Breaking News", noon, time.Hour)
	s3 := prog("Breaking News", noon.Add(3*time.Minute), 61*time.Minute)

	s1src := models.NewULID()
	s1.SourceID = s1src

	kept, state := run(t, []*models.EpgProgram{s1, s2, s3})

	require.Len(t, kept, 1)
	assert.Equal(t, s1src, kept[0].SourceID)
	assert.Equal(t, 1, state.Counters.DedupExact)
	assert.Equal(t, 1, state.Counters.DedupNear)
}

func TestDedup_ChannelsAreIndependent(t *testing.T) {
	a := prog("Breaking News", noon, time.Hour)
	b := prog("Breaking News", noon, time.Hour)
	b.ChannelID = "c2"

	kept, _ := run(t, []*models.EpgProgram{a, b})
	assert.Len(t, kept, 2)
}
