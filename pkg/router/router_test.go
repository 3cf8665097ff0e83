package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/graphstore"
	"github.com/happyrust/plantgraph/pkg/perfmon"
)

func seedEngine(t *testing.T, eng graphstore.Engine, names ...string) []element.RefNo {
	t.Helper()
	refs := make([]element.RefNo, len(names))
	for i, name := range names {
		refs[i] = element.RefNo{DB: 1, Seq: int32(i + 1)}
		require.NoError(t, eng.CreateElement(context.Background(),
			element.NewAttributeMap(refs[i], map[string]element.Value{
				element.AttrType: element.StringValue(element.TypePipe),
				element.AttrName: element.StringValue(name),
			})))
	}
	return refs
}

// brokenEngine fails every read with a fixed error.
type brokenEngine struct {
	graphstore.Engine
	err error
}

func (b *brokenEngine) Attributes(ctx context.Context, ref element.RefNo) (*element.AttributeMap, error) {
	return nil, b.err
}

func (b *brokenEngine) Children(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	return nil, b.err
}

func (b *brokenEngine) Ancestors(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	return nil, b.err
}

func (b *brokenEngine) QueryByType(ctx context.Context, typeTags []string, dbNum int32, filter graphstore.TypeFilter) ([]element.RefNo, error) {
	return nil, b.err
}

func (b *brokenEngine) QuerySubtree(ctx context.Context, ref element.RefNo, maxDepth int) ([]element.RefNo, error) {
	return nil, b.err
}

func (b *brokenEngine) Name() string { return "broken" }

// slowEngine blocks until the call context expires.
type slowEngine struct {
	graphstore.Engine
}

func (s *slowEngine) QueryByType(ctx context.Context, typeTags []string, dbNum int32, filter graphstore.TypeFilter) ([]element.RefNo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowEngine) Name() string { return "slow" }

func TestRouter_AutoPrefersSecondaryEngine(t *testing.T) {
	engA := graphstore.NewMemoryEngine()
	engB := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = engA.Close(); _ = engB.Close() })
	seedEngine(t, engA, "/A1")
	want := seedEngine(t, engB, "/B1", "/B2")

	r := New(engA, engB, Strategy{Preference: PreferAuto}, nil)
	refs, err := r.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, want, refs)
}

func TestRouter_PinnedPreferenceOverridesAuto(t *testing.T) {
	engA := graphstore.NewMemoryEngine()
	engB := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = engA.Close(); _ = engB.Close() })
	want := seedEngine(t, engA, "/A1")
	seedEngine(t, engB, "/B1", "/B2")

	r := New(engA, engB, Strategy{Preference: PreferEngineA}, nil)
	refs, err := r.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, want, refs)
}

func TestRouter_SetStrategyTakesEffectOnNextCall(t *testing.T) {
	engA := graphstore.NewMemoryEngine()
	engB := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = engA.Close(); _ = engB.Close() })
	wantA := seedEngine(t, engA, "/A1")
	wantB := seedEngine(t, engB, "/B1", "/B2")

	r := New(engA, engB, Strategy{Preference: PreferEngineA}, nil)
	refs, err := r.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, wantA, refs)

	r.SetStrategy(Strategy{Preference: PreferEngineB})
	refs, err = r.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, wantB, refs)
}

func TestRouter_FallbackMatchesSecondaryDirectResult(t *testing.T) {
	healthy := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = healthy.Close() })
	want := seedEngine(t, healthy, "/P1", "/P2")

	broken := &brokenEngine{Engine: healthy, err: errors.New("disk gone")}
	r := New(broken, healthy, Strategy{Preference: PreferEngineA, Fallback: true}, nil)

	refs, err := r.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.NoError(t, err)

	direct, err := healthy.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, direct, refs)
	require.Equal(t, want, refs)
}

func TestRouter_NoFallbackSurfacesPrimaryError(t *testing.T) {
	healthy := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = healthy.Close() })
	seedEngine(t, healthy, "/P1")

	sentinel := errors.New("disk gone")
	broken := &brokenEngine{Engine: healthy, err: sentinel}
	r := New(broken, healthy, Strategy{Preference: PreferEngineA, Fallback: false}, nil)

	_, err := r.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.ErrorIs(t, err, sentinel)
}

func TestRouter_BothEnginesFailingReportsBoth(t *testing.T) {
	healthy := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = healthy.Close() })

	sentinel := errors.New("disk gone")
	r := New(
		&brokenEngine{Engine: healthy, err: sentinel},
		&brokenEngine{Engine: healthy, err: errors.New("also gone")},
		Strategy{Preference: PreferEngineA, Fallback: true}, nil)

	_, err := r.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.ErrorIs(t, err, sentinel)
}

func TestRouter_TimeoutTriggersFallback(t *testing.T) {
	healthy := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = healthy.Close() })
	want := seedEngine(t, healthy, "/P1")

	slow := &slowEngine{Engine: healthy}
	r := New(slow, healthy, Strategy{
		Preference: PreferEngineA,
		Timeout:    20 * time.Millisecond,
		Fallback:   true,
	}, nil)

	refs, err := r.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, want, refs)
}

func TestRouter_AttributesBatchKeepsCallerOrder(t *testing.T) {
	eng := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	refs := seedEngine(t, eng, "/P1", "/P2", "/P3")
	missing := element.RefNo{DB: 9, Seq: 9}

	r := New(eng, nil, Strategy{Preference: PreferEngineA}, nil)
	lookup := []element.RefNo{refs[2], missing, refs[0]}
	results := r.AttributesBatch(context.Background(), lookup)
	require.Len(t, results, 3)

	require.Equal(t, refs[2], results[0].Ref)
	require.NoError(t, results[0].Err)
	name, _ := results[0].Attrs.Attrs[element.AttrName].AsString()
	require.Equal(t, "/P3", name)

	require.Equal(t, missing, results[1].Ref)
	require.ErrorIs(t, results[1].Err, graphstore.ErrNotFound)
	require.Nil(t, results[1].Attrs)

	require.Equal(t, refs[0], results[2].Ref)
	require.NoError(t, results[2].Err)
}

func TestRouter_ChildrenBatchKeepsCallerOrder(t *testing.T) {
	eng := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	ctx := context.Background()

	root := element.RefNo{DB: 1, Seq: 1}
	kid := element.RefNo{DB: 1, Seq: 2}
	require.NoError(t, eng.CreateElement(ctx, element.NewAttributeMap(root, map[string]element.Value{
		element.AttrType: element.StringValue("ZONE"),
	})))
	require.NoError(t, eng.CreateElement(ctx, element.NewAttributeMap(kid, map[string]element.Value{
		element.AttrType: element.StringValue(element.TypePipe),
		element.AttrOwn:  element.RefValue(root),
	})))

	r := New(eng, nil, Strategy{Preference: PreferEngineA}, nil)
	results := r.ChildrenBatch(ctx, []element.RefNo{kid, root})
	require.Len(t, results, 2)
	require.Empty(t, results[0].Children)
	require.Equal(t, []element.RefNo{kid}, results[1].Children)
}

func TestRouter_RecordsSamplesInMonitor(t *testing.T) {
	eng := graphstore.NewMemoryEngine()
	t.Cleanup(func() { _ = eng.Close() })
	seedEngine(t, eng, "/P1")

	mon := perfmon.NewMonitor(16)
	r := New(eng, nil, Strategy{Preference: PreferEngineA}, mon)
	_, err := r.QueryByType(context.Background(), []string{element.TypePipe}, 0, nil)
	require.NoError(t, err)

	report := mon.GenerateReport()
	require.Equal(t, int64(1), report.TotalOps)
	require.Zero(t, report.FailedOps)
}
