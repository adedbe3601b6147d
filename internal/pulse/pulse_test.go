package pulse

import (
	"errors"
	"testing"

	"github.com/pulseout/pulse-service/internal/session"
	"github.com/pulseout/pulse-service/internal/types"
)

// fakeStore records writes and serves score reads from memory.
type fakeStore struct {
	aggregates map[string]types.ReactionCounts
	reactions  map[string]types.ReactionKind // user|post
	scores     map[string]int
	follows    map[string]bool // follower|following
	bookmarks  map[string][]string

	failAggregates bool
	failReactions  bool
	failScores     bool
	failFollows    bool
	failBookmarks  bool

	aggregateWrites int
	reactionWrites  int
	scoreWrites     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		aggregates: make(map[string]types.ReactionCounts),
		reactions:  make(map[string]types.ReactionKind),
		scores:     make(map[string]int),
		follows:    make(map[string]bool),
		bookmarks:  make(map[string][]string),
	}
}

func (f *fakeStore) UpdatePostReactions(postID string, counts types.ReactionCounts) error {
	if f.failAggregates {
		return errors.New("aggregate write refused")
	}
	f.aggregateWrites++
	f.aggregates[postID] = counts
	return nil
}

func (f *fakeStore) UpsertReaction(userID, postID string, kind types.ReactionKind) error {
	if f.failReactions {
		return errors.New("reaction write refused")
	}
	f.reactionWrites++
	f.reactions[userID+"|"+postID] = kind
	return nil
}

func (f *fakeStore) DeleteReaction(userID, postID string) error {
	if f.failReactions {
		return errors.New("reaction delete refused")
	}
	f.reactionWrites++
	delete(f.reactions, userID+"|"+postID)
	return nil
}

func (f *fakeStore) GetPulseScore(userID string) (int, error) {
	if f.failScores {
		return 0, errors.New("score read refused")
	}
	return f.scores[userID], nil
}

func (f *fakeStore) UpdatePulseScore(userID string, score int) error {
	if f.failScores {
		return errors.New("score write refused")
	}
	f.scoreWrites++
	f.scores[userID] = score
	return nil
}

func (f *fakeStore) InsertFollow(followerID, followingID string) error {
	if f.failFollows {
		return errors.New("follow insert refused")
	}
	f.follows[followerID+"|"+followingID] = true
	return nil
}

func (f *fakeStore) DeleteFollow(followerID, followingID string) error {
	if f.failFollows {
		return errors.New("follow delete refused")
	}
	delete(f.follows, followerID+"|"+followingID)
	return nil
}

func (f *fakeStore) UpdateBookmarks(userID string, bookmarks []string) error {
	if f.failBookmarks {
		return errors.New("bookmark write refused")
	}
	f.bookmarks[userID] = bookmarks
	return nil
}

func newTestSession(t *testing.T, user types.User, posts []types.Post) *session.Session {
	t.Helper()
	sess := &session.Session{}
	sess.SetUser(user)
	sess.ReplacePosts(posts)
	return sess
}

func viewerSession(t *testing.T) *session.Session {
	t.Helper()
	return newTestSession(t,
		types.User{ID: "user-a", Following: []string{}, Bookmarks: []string{}},
		[]types.Post{{ID: "post-1", UserID: "author-b"}})
}

func TestApplyToggle_Retraction(t *testing.T) {
	counts := types.ReactionCounts{Thanks: 3}

	got, kind := ApplyToggle(counts, types.ReactionThanks, types.ReactionThanks)
	if kind != "" {
		t.Fatalf("Expected cleared kind after retraction, got %q", kind)
	}
	if got.Thanks != 2 {
		t.Fatalf("Expected thanks counter 2, got %d", got.Thanks)
	}
}

func TestApplyToggle_Switch(t *testing.T) {
	counts := types.ReactionCounts{Insight: 1}

	got, kind := ApplyToggle(counts, types.ReactionInsight, types.ReactionPractical)
	if kind != types.ReactionPractical {
		t.Fatalf("Expected active kind P, got %q", kind)
	}
	if got.Insight != 0 || got.Practical != 1 {
		t.Fatalf("Expected {I:0 P:1}, got {I:%d P:%d}", got.Insight, got.Practical)
	}
}

func TestApplyToggle_NeverNegative(t *testing.T) {
	// Retracting a kind that was never counted must floor at zero.
	got, _ := ApplyToggle(types.ReactionCounts{}, types.ReactionAmplifier, types.ReactionAmplifier)
	if got.Amplifier != 0 {
		t.Fatalf("Expected amplifier counter floored at 0, got %d", got.Amplifier)
	}

	// Switching away from an uncounted kind must not push it below zero.
	got, _ = ApplyToggle(types.ReactionCounts{}, types.ReactionInsight, types.ReactionThanks)
	if got.Insight != 0 || got.Thanks != 1 {
		t.Fatalf("Expected {I:0 T:1}, got {I:%d T:%d}", got.Insight, got.Thanks)
	}
}

func TestApplyToggle_MutualExclusivity(t *testing.T) {
	// Any sequence of toggles leaves at most one kind attributed to the user.
	counts := types.ReactionCounts{}
	active := types.ReactionKind("")
	sequence := []types.ReactionKind{
		types.ReactionInsight, types.ReactionPractical, types.ReactionPractical,
		types.ReactionThanks, types.ReactionAmplifier, types.ReactionInsight,
	}

	for _, k := range sequence {
		counts, active = ApplyToggle(counts, active, k)
		total := counts.Insight + counts.Practical + counts.Amplifier + counts.Thanks
		want := 0
		if active != "" {
			want = 1
		}
		if total != want {
			t.Fatalf("After toggling %q: expected %d total counted reactions, got %d", k, want, total)
		}
	}
}

func TestScoreDelta(t *testing.T) {
	cases := []struct {
		old, new types.ReactionKind
		want     int
	}{
		{"", types.ReactionInsight, 5},
		{"", types.ReactionAmplifier, 3},
		{"", types.ReactionPractical, 2},
		{"", types.ReactionThanks, 1},
		{types.ReactionInsight, types.ReactionPractical, -3},
		{types.ReactionThanks, "", -1},
		{types.ReactionAmplifier, types.ReactionAmplifier, 0},
		{"", "", 0},
	}

	for _, c := range cases {
		if got := ScoreDelta(c.old, c.new); got != c.want {
			t.Fatalf("ScoreDelta(%q, %q): expected %d, got %d", c.old, c.new, got, c.want)
		}
	}
}

func TestToggleReaction_NewVote(t *testing.T) {
	store := newFakeStore()
	ctrl := NewController(store)
	sess := viewerSession(t)

	post, err := ctrl.ToggleReaction(sess, "post-1", types.ReactionInsight)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if post.Reactions.Insight != 1 {
		t.Fatalf("Expected insight counter 1, got %d", post.Reactions.Insight)
	}
	if post.CurrentUserReaction != types.ReactionInsight {
		t.Fatalf("Expected active kind I, got %q", post.CurrentUserReaction)
	}
	if got := store.aggregates["post-1"]; got.Insight != 1 {
		t.Fatalf("Expected aggregate write with I:1, got %+v", got)
	}
	if got := store.reactions["user-a|post-1"]; got != types.ReactionInsight {
		t.Fatalf("Expected reaction row I, got %q", got)
	}
	if got := store.scores["author-b"]; got != 5 {
		t.Fatalf("Expected author score 5, got %d", got)
	}

	cached, _ := sess.Post("post-1")
	if cached.Reactions.Insight != 1 || cached.CurrentUserReaction != types.ReactionInsight {
		t.Fatalf("Expected cached post patched, got %+v", cached)
	}
}

func TestToggleReaction_SwitchAdjustsScoreByDelta(t *testing.T) {
	store := newFakeStore()
	ctrl := NewController(store)
	sess := viewerSession(t)

	// Insight (+5) then practical (2-5 = -3): cumulative +2 from baseline.
	if _, err := ctrl.ToggleReaction(sess, "post-1", types.ReactionInsight); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	post, err := ctrl.ToggleReaction(sess, "post-1", types.ReactionPractical)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := types.ReactionCounts{Practical: 1}
	if post.Reactions != want {
		t.Fatalf("Expected counters %+v, got %+v", want, post.Reactions)
	}
	if post.CurrentUserReaction != types.ReactionPractical {
		t.Fatalf("Expected active kind P, got %q", post.CurrentUserReaction)
	}
	if got := store.scores["author-b"]; got != 2 {
		t.Fatalf("Expected cumulative author score 2, got %d", got)
	}
	if got := store.reactions["user-a|post-1"]; got != types.ReactionPractical {
		t.Fatalf("Expected reaction row P, got %q", got)
	}
}

func TestToggleReaction_RetractionIsIdempotent(t *testing.T) {
	store := newFakeStore()
	ctrl := NewController(store)
	sess := viewerSession(t)

	if _, err := ctrl.ToggleReaction(sess, "post-1", types.ReactionThanks); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	post, err := ctrl.ToggleReaction(sess, "post-1", types.ReactionThanks)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if post.Reactions != (types.ReactionCounts{}) {
		t.Fatalf("Expected counters back at zero, got %+v", post.Reactions)
	}
	if post.CurrentUserReaction != "" {
		t.Fatalf("Expected no active kind, got %q", post.CurrentUserReaction)
	}
	if got := store.scores["author-b"]; got != 0 {
		t.Fatalf("Expected author score back at 0, got %d", got)
	}
	if _, exists := store.reactions["user-a|post-1"]; exists {
		t.Fatal("Expected reaction row deleted after retraction")
	}
}

func TestToggleReaction_OwnPostDoesNotScore(t *testing.T) {
	store := newFakeStore()
	ctrl := NewController(store)
	sess := newTestSession(t,
		types.User{ID: "author-b"},
		[]types.Post{{ID: "post-1", UserID: "author-b"}})

	post, err := ctrl.ToggleReaction(sess, "post-1", types.ReactionInsight)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if post.Reactions.Insight != 1 {
		t.Fatalf("Expected insight counter 1, got %d", post.Reactions.Insight)
	}
	if store.scoreWrites != 0 {
		t.Fatalf("Expected no score writes for self-reaction, got %d", store.scoreWrites)
	}
}

func TestToggleReaction_AggregateFailureAbortsSequence(t *testing.T) {
	store := newFakeStore()
	store.failAggregates = true
	ctrl := NewController(store)
	sess := viewerSession(t)

	post, err := ctrl.ToggleReaction(sess, "post-1", types.ReactionInsight)
	if err == nil {
		t.Fatal("Expected error from failed aggregate write")
	}

	// The later writes must not have been attempted.
	if store.reactionWrites != 0 || store.scoreWrites != 0 {
		t.Fatalf("Expected no follow-up writes, got reactions=%d scores=%d",
			store.reactionWrites, store.scoreWrites)
	}

	// No rollback: the optimistic local state stands.
	if post.Reactions.Insight != 1 || post.CurrentUserReaction != types.ReactionInsight {
		t.Fatalf("Expected optimistic state preserved, got %+v", post)
	}
	cached, _ := sess.Post("post-1")
	if cached.Reactions.Insight != 1 {
		t.Fatalf("Expected cached post still patched, got %+v", cached)
	}
}

func TestToggleReaction_ReactionRowFailureKeepsAggregate(t *testing.T) {
	store := newFakeStore()
	store.failReactions = true
	ctrl := NewController(store)
	sess := viewerSession(t)

	_, err := ctrl.ToggleReaction(sess, "post-1", types.ReactionInsight)
	if err != nil {
		t.Fatalf("Per-user row failure must not surface, got %v", err)
	}

	// The aggregate write already committed and the score write still runs.
	if store.aggregateWrites != 1 {
		t.Fatalf("Expected 1 aggregate write, got %d", store.aggregateWrites)
	}
	if got := store.scores["author-b"]; got != 5 {
		t.Fatalf("Expected score write to proceed, got %d", got)
	}
}

func TestToggleReaction_UnknownPost(t *testing.T) {
	ctrl := NewController(newFakeStore())
	sess := viewerSession(t)

	if _, err := ctrl.ToggleReaction(sess, "missing", types.ReactionInsight); err != ErrPostNotFound {
		t.Fatalf("Expected ErrPostNotFound, got %v", err)
	}
}

func TestToggleFollow_Idempotent(t *testing.T) {
	store := newFakeStore()
	ctrl := NewController(store)
	sess := viewerSession(t)

	following, err := ctrl.ToggleFollow(sess, "user-z")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !following {
		t.Fatal("Expected following after first toggle")
	}
	if !store.follows["user-a|user-z"] {
		t.Fatal("Expected follow row inserted")
	}

	following, err = ctrl.ToggleFollow(sess, "user-z")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if following {
		t.Fatal("Expected not following after second toggle")
	}
	if store.follows["user-a|user-z"] {
		t.Fatal("Expected follow row deleted")
	}
	if got := len(sess.User().Following); got != 0 {
		t.Fatalf("Expected following set back to original, got %d entries", got)
	}
}

func TestToggleFollow_LeavesEarlierSnapshotsUntouched(t *testing.T) {
	store := newFakeStore()
	ctrl := NewController(store)
	sess := newTestSession(t,
		types.User{ID: "user-a", Following: []string{"user-z"}},
		nil)

	// A snapshot handed out before the toggle (say, mid-encode on another
	// request) must not observe the unfollow rewriting the set.
	snapshot := sess.User()

	if _, err := ctrl.ToggleFollow(sess, "user-z"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(snapshot.Following) != 1 || snapshot.Following[0] != "user-z" {
		t.Fatalf("Expected snapshot following preserved, got %v", snapshot.Following)
	}
	if got := len(sess.User().Following); got != 0 {
		t.Fatalf("Expected cached following emptied, got %d entries", got)
	}
}

func TestToggleFollow_FailureKeepsLocalState(t *testing.T) {
	store := newFakeStore()
	store.failFollows = true
	ctrl := NewController(store)
	sess := viewerSession(t)

	if _, err := ctrl.ToggleFollow(sess, "user-z"); err == nil {
		t.Fatal("Expected error from failed follow insert")
	}

	// Optimistic, no rollback.
	user := sess.User()
	if len(user.Following) != 1 || user.Following[0] != "user-z" {
		t.Fatalf("Expected local following patched, got %v", user.Following)
	}
}

func TestToggleBookmark_NoDuplicates(t *testing.T) {
	store := newFakeStore()
	ctrl := NewController(store)
	sess := viewerSession(t)

	for i := 0; i < 3; i++ {
		if _, err := ctrl.ToggleBookmark(sess, "post-1"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	// Odd number of toggles: the bookmark is present exactly once.
	user := sess.User()
	seen := 0
	for _, id := range user.Bookmarks {
		if id == "post-1" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("Expected post bookmarked exactly once, found %d entries", seen)
	}

	// Whole-set replace on every toggle.
	if got := store.bookmarks["user-a"]; len(got) != 1 || got[0] != "post-1" {
		t.Fatalf("Expected persisted set [post-1], got %v", got)
	}
}

func TestToggleBookmark_RemovePersistsEmptySet(t *testing.T) {
	store := newFakeStore()
	ctrl := NewController(store)
	sess := newTestSession(t,
		types.User{ID: "user-a", Bookmarks: []string{"post-1"}},
		[]types.Post{{ID: "post-1", UserID: "author-b"}})

	bookmarked, err := ctrl.ToggleBookmark(sess, "post-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if bookmarked {
		t.Fatal("Expected bookmark removed")
	}
	if got, ok := store.bookmarks["user-a"]; !ok || len(got) != 0 {
		t.Fatalf("Expected empty set persisted, got %v (present=%v)", got, ok)
	}
}
