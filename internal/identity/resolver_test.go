package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	churches []string
	members  map[string]map[string]string // church -> local phone -> member id
	visitors map[string]map[string]string
	history  map[string]Attribution

	listErr   error
	listCalls int

	version    int64
	versionErr error
	roster     map[string]bool // "church/id"
}

func (f *fakeDirectory) DirectoryVersion(ctx context.Context) (int64, error) {
	return f.version, f.versionErr
}

func (f *fakeDirectory) HasMember(ctx context.Context, churchID, memberID string) (bool, error) {
	return f.roster[churchID+"/"+memberID], nil
}

func (f *fakeDirectory) HasVisitor(ctx context.Context, churchID, visitorID string) (bool, error) {
	return f.roster[churchID+"/"+visitorID], nil
}

func (f *fakeDirectory) ListChurchIDs(ctx context.Context) ([]string, error) {
	f.listCalls++
	return f.churches, f.listErr
}

func (f *fakeDirectory) FindMemberByPhone(ctx context.Context, churchID, local string) (string, bool, error) {
	id, ok := f.members[churchID][local]
	return id, ok, nil
}

func (f *fakeDirectory) FindVisitorByPhone(ctx context.Context, churchID, local string) (string, bool, error) {
	id, ok := f.visitors[churchID][local]
	return id, ok, nil
}

func (f *fakeDirectory) LatestMessageTo(ctx context.Context, normalized string) (Attribution, bool, error) {
	a, ok := f.history[normalized]
	return a, ok, nil
}

func TestScanResolver_MemberMatch(t *testing.T) {
	dir := &fakeDirectory{
		churches: []string{"church-A", "church-B"},
		members:  map[string]map[string]string{"church-B": {"7035551234": "m-1"}},
	}
	a, err := NewScanResolver(dir).Resolve(context.Background(), "+17035551234")
	require.NoError(t, err)
	assert.Equal(t, Attribution{ChurchID: "church-B", MemberID: "m-1"}, a)
	assert.Equal(t, KindMember, a.Kind())
}

func TestScanResolver_MemberBeatsVisitorInSameChurch(t *testing.T) {
	dir := &fakeDirectory{
		churches: []string{"church-A"},
		members:  map[string]map[string]string{"church-A": {"7035551234": "m-1"}},
		visitors: map[string]map[string]string{"church-A": {"7035551234": "v-1"}},
	}
	a, err := NewScanResolver(dir).Resolve(context.Background(), "+17035551234")
	require.NoError(t, err)
	assert.Equal(t, "m-1", a.MemberID)
	assert.Empty(t, a.VisitorID)
}

func TestScanResolver_FirstChurchWins(t *testing.T) {
	dir := &fakeDirectory{
		churches: []string{"church-A", "church-B"},
		visitors: map[string]map[string]string{"church-A": {"7035551234": "v-a"}},
		members:  map[string]map[string]string{"church-B": {"7035551234": "m-b"}},
	}
	a, err := NewScanResolver(dir).Resolve(context.Background(), "+17035551234")
	require.NoError(t, err)
	assert.Equal(t, Attribution{ChurchID: "church-A", VisitorID: "v-a"}, a)
}

func TestScanResolver_FallsBackToHistory(t *testing.T) {
	dir := &fakeDirectory{
		churches: []string{"church-A"},
		history: map[string]Attribution{
			"+17035551234": {ChurchID: "church-A", MemberID: "m-1", VisitorID: "v-stale"},
		},
	}
	a, err := NewScanResolver(dir).Resolve(context.Background(), "+17035551234")
	require.NoError(t, err)
	assert.Equal(t, Attribution{ChurchID: "church-A", MemberID: "m-1"}, a)
}

func TestScanResolver_Unattributed(t *testing.T) {
	dir := &fakeDirectory{churches: []string{"church-A"}}
	a, err := NewScanResolver(dir).Resolve(context.Background(), "+17035551234")
	require.NoError(t, err)
	assert.False(t, a.Attributed())
	assert.Equal(t, KindNone, a.Kind())
}

func TestScanResolver_PropagatesDirectoryError(t *testing.T) {
	dir := &fakeDirectory{listErr: errors.New("down")}
	_, err := NewScanResolver(dir).Resolve(context.Background(), "+17035551234")
	assert.Error(t, err)
}

func TestAttribution_Validate(t *testing.T) {
	assert.NoError(t, Attribution{ChurchID: "c", MemberID: "m"}.Validate())
	assert.ErrorIs(t, Attribution{ChurchID: "c", MemberID: "m", VisitorID: "v"}.Validate(), ErrConflictingIdentity)
	assert.Equal(t, KindChurch, Attribution{ChurchID: "c"}.Kind())
}

func TestIndexedResolver_CachesDirectoryMatches(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	dir := &fakeDirectory{
		churches: []string{"church-A"},
		members:  map[string]map[string]string{"church-A": {"7035551234": "m-1"}},
	}
	r := NewIndexedResolver(NewScanResolver(dir), dir, rdb, time.Minute)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "+17035551234")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "+17035551234")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, dir.listCalls, "second lookup should be served from the index")
	assert.True(t, mr.Exists("phoneidx:+17035551234"))
}

func TestIndexedResolver_DirectoryChangeInvalidatesEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	dir := &fakeDirectory{
		churches: []string{"church-A"},
		members:  map[string]map[string]string{"church-A": {}},
		visitors: map[string]map[string]string{"church-A": {"7035551234": "v-1"}},
		version:  1,
	}
	scan := NewScanResolver(dir)
	r := NewIndexedResolver(scan, dir, rdb, time.Minute)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "+17035551234")
	require.NoError(t, err)
	assert.Equal(t, Attribution{ChurchID: "church-A", VisitorID: "v-1"}, a)

	// a member with the same phone joins church-A
	dir.members["church-A"]["7035551234"] = "m-1"
	dir.version++

	want, err := scan.Resolve(ctx, "+17035551234")
	require.NoError(t, err)
	got, err := r.Resolve(ctx, "+17035551234")
	require.NoError(t, err)
	assert.Equal(t, Attribution{ChurchID: "church-A", MemberID: "m-1"}, want)
	assert.Equal(t, want, got)

	// the refreshed entry is served again without a scan
	calls := dir.listCalls
	_, err = r.Resolve(ctx, "+17035551234")
	require.NoError(t, err)
	assert.Equal(t, calls, dir.listCalls)
}

func TestIndexedResolver_ScansWhenVersionUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	dir := &fakeDirectory{
		churches:   []string{"church-A"},
		members:    map[string]map[string]string{"church-A": {"7035551234": "m-1"}},
		versionErr: errors.New("relation directory_version does not exist"),
	}
	r := NewIndexedResolver(NewScanResolver(dir), dir, rdb, time.Minute)
	for i := 0; i < 2; i++ {
		a, err := r.Resolve(context.Background(), "+17035551234")
		require.NoError(t, err)
		assert.Equal(t, "m-1", a.MemberID)
	}
	assert.Equal(t, 2, dir.listCalls)
	assert.False(t, mr.Exists("phoneidx:+17035551234"))
}

func TestCheckRoster(t *testing.T) {
	dir := &fakeDirectory{roster: map[string]bool{"church-A/m-1": true, "church-A/v-1": true}}
	ctx := context.Background()

	assert.NoError(t, CheckRoster(ctx, dir, Attribution{ChurchID: "church-A", MemberID: "m-1"}))
	assert.NoError(t, CheckRoster(ctx, dir, Attribution{ChurchID: "church-A", VisitorID: "v-1"}))
	assert.NoError(t, CheckRoster(ctx, dir, Attribution{ChurchID: "church-B"}))
	assert.ErrorIs(t, CheckRoster(ctx, dir, Attribution{ChurchID: "church-B", MemberID: "m-1"}), ErrForeignIdentity)
	assert.ErrorIs(t, CheckRoster(ctx, dir, Attribution{ChurchID: "church-B", VisitorID: "v-1"}), ErrForeignIdentity)
}

func TestIndexedResolver_DoesNotCacheHistoryOrMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	dir := &fakeDirectory{
		churches: []string{"church-A"},
		history:  map[string]Attribution{"+15550001111": {ChurchID: "church-A"}},
	}
	r := NewIndexedResolver(NewScanResolver(dir), dir, rdb, time.Minute)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, "church-A", a.ChurchID)
	assert.False(t, mr.Exists("phoneidx:+15550001111"))

	_, err = r.Resolve(ctx, "+19999999999")
	require.NoError(t, err)
	assert.False(t, mr.Exists("phoneidx:+19999999999"))
}

func TestIndexedResolver_FallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	dir := &fakeDirectory{
		churches: []string{"church-A"},
		members:  map[string]map[string]string{"church-A": {"7035551234": "m-1"}},
	}
	a, err := NewIndexedResolver(NewScanResolver(dir), dir, rdb, time.Minute).Resolve(context.Background(), "+17035551234")
	require.NoError(t, err)
	assert.Equal(t, "m-1", a.MemberID)
}
