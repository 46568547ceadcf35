package peer

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opinionnet/swarm/protocol"
)

func TestApplyUpdateFullWeightAdoptsOpinion(t *testing.T) {
	n := idleNode(t, Config{ID: "a", Opinion: 0.3})
	assert.Equal(t, 0.9, n.ApplyUpdate(0.9, 1.0))
	assert.Equal(t, 0.9, n.Opinion())
}

func TestApplyUpdateZeroWeightIgnoresOpinion(t *testing.T) {
	n := idleNode(t, Config{ID: "a", Opinion: 0.3})
	assert.Equal(t, 0.3, n.ApplyUpdate(0.9, 0.0))
}

func TestApplyUpdateInterpolates(t *testing.T) {
	for _, w := range []float64{0.01, 0.25, 0.5, 0.75, 0.99} {
		up := idleNode(t, Config{ID: "up", Opinion: 0.2})
		got := up.ApplyUpdate(0.8, w)
		assert.Greater(t, got, 0.2, "weight %v", w)
		assert.Less(t, got, 0.8, "weight %v", w)

		down := idleNode(t, Config{ID: "down", Opinion: 0.8})
		got = down.ApplyUpdate(0.2, w)
		assert.Greater(t, got, 0.2, "weight %v", w)
		assert.Less(t, got, 0.8, "weight %v", w)
	}
}

// Updates do not commute: the same two updates in a different order end elsewhere.
func TestApplyUpdateIsOrderDependent(t *testing.T) {
	forward := idleNode(t, Config{ID: "f", Opinion: 0.5})
	forward.ApplyUpdate(1.0, 0.5)
	forward.ApplyUpdate(0.0, 0.5)

	reverse := idleNode(t, Config{ID: "r", Opinion: 0.5})
	reverse.ApplyUpdate(0.0, 0.5)
	reverse.ApplyUpdate(1.0, 0.5)

	assert.InDelta(t, 0.375, forward.Opinion(), 1e-12)
	assert.InDelta(t, 0.625, reverse.Opinion(), 1e-12)
	assert.NotEqual(t, forward.Opinion(), reverse.Opinion())
}

func TestApplyUpdateIsNotClamped(t *testing.T) {
	n := idleNode(t, Config{ID: "a", Opinion: 0.5})
	assert.InDelta(t, 1.5, n.ApplyUpdate(1.0, 2.0), 1e-12)
	assert.InDelta(t, -0.5, n.ApplyUpdate(-0.5, 1.0), 1e-12)
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	// Every update halves the distance to 0, so all interleavings end at 0.5^20 exactly.
	n := idleNode(t, Config{ID: "a", Opinion: 1})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.ApplyUpdate(0, 0.5)
		}()
	}
	wg.Wait()
	assert.Equal(t, math.Pow(0.5, 20), n.Opinion())
}

func TestReceiveUsesOwnInfluence(t *testing.T) {
	n := idleNode(t, Config{ID: "a", Opinion: 0.0, Influence: 0.25})
	require.NoError(t, n.Receive("t", 1.0))
	assert.InDelta(t, 0.25, n.Opinion(), 1e-12)
}

func TestCriticalReceiveRejects(t *testing.T) {
	n := idleNode(t, Config{ID: "c", Opinion: 0.5, Influence: 1.0, Policy: CriticalThinking})

	err := n.Receive("t", 0.22)
	assert.ErrorIs(t, err, protocol.ErrRejected)
	assert.Equal(t, 0.5, n.Opinion())

	require.NoError(t, n.Receive("t", 0.21))
	assert.InDelta(t, 0.21, n.Opinion(), 1e-12)
}

func TestNewRequiresID(t *testing.T) {
	_, err := New(Config{ListenAddress: "127.0.0.1:0"}, nil)
	assert.Error(t, err)
}

func TestJoinRegistersListenPort(t *testing.T) {
	reg := startRegistry(t)
	n := startNode(t, reg, Config{ID: "alice", Opinion: 0.4, Influence: 0.5})

	rec, err := reg.Resolve(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, n.Port(), rec.Port)
	assert.Equal(t, "127.0.0.1", rec.Address)
}

func TestSendToUnregisteredIsSkipped(t *testing.T) {
	reg := startRegistry(t)
	n := startNode(t, reg, Config{ID: "alice", Opinion: 0.4})

	err := n.SendOpinion(context.Background(), "nobody", "t")
	assert.ErrorIs(t, err, protocol.ErrNotFound)
	assert.Equal(t, 0.4, n.Opinion())
}

func TestSendToUnreachablePeer(t *testing.T) {
	reg := startRegistry(t)
	sender := startNode(t, reg, Config{ID: "sender", Opinion: 0.4})

	gone, err := New(Config{ID: "gone", ListenAddress: "127.0.0.1:0"}, reg)
	require.NoError(t, err)
	require.NoError(t, gone.Join(context.Background()))
	gone.Close()

	err = sender.SendOpinion(context.Background(), "gone", "t")
	assert.ErrorIs(t, err, protocol.ErrUnreachable)
	assert.NotErrorIs(t, err, protocol.ErrNotFound)
}

// Node A (opinion 0.2, influence 1.0) adopts the 0.8 sent by B. Critical thinker C accepts
// 0.21 and ignores 0.22.
func TestOpinionExchangeScenario(t *testing.T) {
	reg := startRegistry(t)
	ctx := context.Background()

	a := startNode(t, reg, Config{ID: "A", Opinion: 0.2, Influence: 1.0})
	b := startNode(t, reg, Config{ID: "B", Opinion: 0.8, Influence: 0.5})

	require.NoError(t, b.SendOpinion(ctx, "A", "t"))
	require.Eventually(t, func() bool {
		return a.Opinion() > 0.8-1e-9 && a.Opinion() < 0.8+1e-9
	}, 2*time.Second, 10*time.Millisecond)

	c := startNode(t, reg, Config{ID: "C", Opinion: 0.5, Influence: 1.0, Policy: CriticalThinking})
	agree := startNode(t, reg, Config{ID: "agree", Opinion: 0.21})
	disagree := startNode(t, reg, Config{ID: "disagree", Opinion: 0.22})

	require.NoError(t, agree.SendOpinion(ctx, "C", "t"))
	require.Eventually(t, func() bool {
		return c.Opinion() > 0.21-1e-9 && c.Opinion() < 0.21+1e-9
	}, 2*time.Second, 10*time.Millisecond)

	before := c.Opinion()
	require.NoError(t, disagree.SendOpinion(ctx, "C", "t"))
	require.Never(t, func() bool { return c.Opinion() != before }, 300*time.Millisecond, 20*time.Millisecond)
}

func TestBroadcastSkipsMissingRecipients(t *testing.T) {
	reg := startRegistry(t)
	ctx := context.Background()

	inf := startNode(t, reg, Config{ID: "influencer", Opinion: 0.9})
	u1 := startNode(t, reg, Config{ID: "user1", Opinion: 0.1, Influence: 1.0})
	u2 := startNode(t, reg, Config{ID: "user2", Opinion: 0.3, Influence: 1.0})

	res := inf.Broadcast(ctx, []string{"user1", "ghost", "user2"}, "t")
	assert.Equal(t, []string{"user1", "user2"}, res.Delivered)
	assert.Equal(t, []string{"ghost"}, res.FailedIDs())
	assert.ErrorIs(t, res.Failed["ghost"], protocol.ErrNotFound)

	for _, u := range []*Node{u1, u2} {
		require.Eventually(t, func() bool { return u.Opinion() == 0.9 }, 2*time.Second, 10*time.Millisecond)
	}
}
