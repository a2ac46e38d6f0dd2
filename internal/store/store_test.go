package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Load(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	return s
}

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	s := newTestStore(t)

	snap := s.Snapshot()
	assert.Empty(t, snap.Guilds)
	assert.Empty(t, snap.Users)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	require.Error(t, err)

	var corrupt *CorruptStateError
	assert.ErrorAs(t, err, &corrupt)
	assert.Equal(t, path, corrupt.Path)
}

func TestRegisterLoginAppendsWithoutDedup(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RegisterLogin("g1", "u1"))
	require.NoError(t, s.RegisterLogin("g1", "u2"))
	require.NoError(t, s.RegisterLogin("g1", "u1"))

	snap := s.Snapshot()
	// 追記のみ、重複も保持される
	assert.Equal(t, []string{"u1", "u2", "u1"}, snap.Guilds["g1"].LoggedUsers)

	// 重複排除ビューは初回ログイン順
	assert.Equal(t, []string{"u1", "u2"}, s.DistinctLoggedUsers("g1"))
}

func TestUpsertUserMergeSemantics(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertUser("u1", "alice", []string{"a.example"}))
	// username 省略は既存値を保持、servers は全置換
	require.NoError(t, s.UpsertUser("u1", "", []string{"b.example"}))

	snap := s.Snapshot()
	assert.Equal(t, "alice", snap.Users["u1"].Username)
	assert.Equal(t, []string{"b.example"}, snap.Users["u1"].Servers)

	// servers が nil の場合は既存値を保持
	require.NoError(t, s.UpsertUser("u1", "bob", nil))
	snap = s.Snapshot()
	assert.Equal(t, "bob", snap.Users["u1"].Username)
	assert.Equal(t, []string{"b.example"}, snap.Users["u1"].Servers)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	s, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, s.UpsertUser("u1", "alice", []string{"a.example", "b.example"}))
	require.NoError(t, s.RegisterLogin("g1", "u1"))
	require.NoError(t, s.RegisterLogin("g1", "u1"))
	require.NoError(t, s.SetDefault("g1", "a.example"))

	reloaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
}

func TestResolveDefaultWithoutConfiguration(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Resolve("g1", DefaultSentinel)
	assert.ErrorIs(t, err, ErrNoDefaultConfigured)

	// ギルドが存在してもデフォルト未設定なら同じ
	require.NoError(t, s.RegisterLogin("g1", "u1"))
	_, _, err = s.Resolve("g1", DefaultSentinel)
	assert.ErrorIs(t, err, ErrNoDefaultConfigured)
}

func TestResolveFirstMatchWins(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertUser("u1", "alice", []string{"s.example"}))
	require.NoError(t, s.UpsertUser("u2", "bob", []string{"s.example"}))
	require.NoError(t, s.RegisterLogin("g1", "u1"))
	require.NoError(t, s.RegisterLogin("g1", "u2"))

	server, owner, err := s.Resolve("g1", "s.example")
	require.NoError(t, err)
	assert.Equal(t, "s.example", server)
	// ログイン順で先のユーザーが勝つ
	assert.Equal(t, "u1", owner)
}

func TestResolveUnclaimedServer(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertUser("u1", "alice", []string{"a.example"}))
	require.NoError(t, s.RegisterLogin("g1", "u1"))

	_, _, err := s.Resolve("g1", "other.example")
	assert.ErrorIs(t, err, ErrServerNotClaimed)

	// 未知のギルドも同様
	_, _, err = s.Resolve("unknown", "a.example")
	assert.ErrorIs(t, err, ErrServerNotClaimed)
}

func TestResolveSkipsUsersWithoutRecord(t *testing.T) {
	s := newTestStore(t)

	// logged_users に居るが UserRecord が無いユーザーは無視される
	require.NoError(t, s.RegisterLogin("g1", "ghost"))
	require.NoError(t, s.UpsertUser("u1", "alice", []string{"a.example"}))
	require.NoError(t, s.RegisterLogin("g1", "u1"))

	server, owner, err := s.Resolve("g1", "a.example")
	require.NoError(t, err)
	assert.Equal(t, "a.example", server)
	assert.Equal(t, "u1", owner)
}

func TestResolveScenario(t *testing.T) {
	s := newTestStore(t)

	// 記録が何もないギルド
	_, _, err := s.Resolve("G", DefaultSentinel)
	require.ErrorIs(t, err, ErrNoDefaultConfigured)

	// デフォルト設定後も、誰も所有を主張していなければ解決できない
	require.NoError(t, s.SetDefault("G", "mc.example.com"))
	_, _, err = s.Resolve("G", DefaultSentinel)
	require.ErrorIs(t, err, ErrServerNotClaimed)

	// 所有者がログインすると解決できる
	require.NoError(t, s.UpsertUser("u1", "alice", []string{"mc.example.com"}))
	require.NoError(t, s.RegisterLogin("G", "u1"))

	server, owner, err := s.Resolve("G", DefaultSentinel)
	require.NoError(t, err)
	assert.Equal(t, "mc.example.com", server)
	assert.Equal(t, "u1", owner)
}

func TestUniqueOwnerPolicy(t *testing.T) {
	s := newTestStore(t)
	s.SetOwnerPolicy(UniqueOwnerPolicy)

	require.NoError(t, s.UpsertUser("u1", "alice", []string{"s.example"}))
	require.NoError(t, s.UpsertUser("u2", "bob", []string{"s.example"}))
	require.NoError(t, s.RegisterLogin("g1", "u1"))

	// 所有者が一意なら解決できる
	_, owner, err := s.Resolve("g1", "s.example")
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	// 衝突すると曖昧エラー
	require.NoError(t, s.RegisterLogin("g1", "u2"))
	_, _, err = s.Resolve("g1", "s.example")
	assert.ErrorIs(t, err, ErrAmbiguousOwner)
}

func TestUniqueOwnerPolicyIgnoresDuplicateLogins(t *testing.T) {
	s := newTestStore(t)
	s.SetOwnerPolicy(UniqueOwnerPolicy)

	require.NoError(t, s.UpsertUser("u1", "alice", []string{"s.example"}))
	require.NoError(t, s.RegisterLogin("g1", "u1"))
	require.NoError(t, s.RegisterLogin("g1", "u1"))

	// 同一ユーザーの再ログインは衝突扱いにしない
	_, owner, err := s.Resolve("g1", "s.example")
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)
}

func TestDefaultServer(t *testing.T) {
	s := newTestStore(t)

	_, err := s.DefaultServer("g1")
	assert.ErrorIs(t, err, ErrNoDefaultConfigured)

	require.NoError(t, s.SetDefault("g1", "mc.example.com"))
	server, err := s.DefaultServer("g1")
	require.NoError(t, err)
	assert.Equal(t, "mc.example.com", server)
}

func TestGuildServers(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertUser("u1", "alice", []string{"a.example"}))
	require.NoError(t, s.RegisterLogin("g1", "u1"))
	require.NoError(t, s.RegisterLogin("g1", "u1"))
	require.NoError(t, s.RegisterLogin("g1", "ghost"))

	entries := s.GuildServers("g1")
	require.Len(t, entries, 2)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, []string{"a.example"}, entries[0].Servers)
	// UserRecord の無いユーザーも行としては出る（名前と一覧は空）
	assert.Equal(t, "ghost", entries[1].UserID)
	assert.Empty(t, entries[1].Username)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertUser("u1", "alice", []string{"a.example"}))
	snap := s.Snapshot()
	snap.Users["u1"].Servers[0] = "tampered.example"

	assert.Equal(t, []string{"a.example"}, s.Snapshot().Users["u1"].Servers)
}

func TestUsernameLookup(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.Username("u1")
	assert.False(t, ok)

	require.NoError(t, s.UpsertUser("u1", "alice", nil))
	name, ok := s.Username("u1")
	assert.True(t, ok)
	assert.Equal(t, "alice", name)
}
