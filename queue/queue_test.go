package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/agent"
)

func TestLeaderBoundWithNoLeaderIsTraversableLength(t *testing.T) {
	q := New("lane1", 100)
	assert.Equal(t, 100.0, q.LeaderBound())
}

func TestLeaderBoundAccountsForLengthAndFollowingDistance(t *testing.T) {
	q := New("lane1", 100)
	q.InsertCrossing(agent.CarID(1), 5, 0, 10, 50, 50)
	q.MarkQueued(agent.CarID(1), StateQueued, 50)
	assert.Equal(t, 50-5-FollowingDistance, q.LeaderBound())
}

func TestCanInsertRespectsSpacing(t *testing.T) {
	q := New("lane1", 100)
	q.InsertCrossing(agent.CarID(1), 5, 0, 10, 50, 50)
	q.MarkQueued(agent.CarID(1), StateQueued, 50)
	assert.True(t, q.CanInsert(42, 5))
	assert.False(t, q.CanInsert(46, 5))
}

func TestPositionAtInterpolatesCrossing(t *testing.T) {
	q := New("lane1", 100)
	q.InsertCrossing(agent.CarID(1), 5, 0, 10, 0, 100)
	assert.Equal(t, 0.0, q.PositionAt(agent.CarID(1), -1))
	assert.Equal(t, 50.0, q.PositionAt(agent.CarID(1), 5))
	assert.Equal(t, 100.0, q.PositionAt(agent.CarID(1), 11))
}

func TestSpacingInvariantPanicsOnViolation(t *testing.T) {
	q := New("lane1", 100)
	q.InsertCrossing(agent.CarID(1), 5, 0, 0, 50, 50)
	q.MarkQueued(agent.CarID(1), StateQueued, 50)
	q.InsertCrossing(agent.CarID(2), 5, 0, 0, 49, 49)
	q.MarkQueued(agent.CarID(2), StateQueued, 49) // fronts 1 m apart: gap 49-(50-5) = -4 m, violates 2 m FollowingDistance
	assert.Panics(t, func() { q.CheckSpacingInvariant(1e-6) })
}

func TestLaggyHeadTrackedThenCleared(t *testing.T) {
	q := New("lane1", 100)
	q.MarkLaggyHead(agent.CarID(9), 5)
	_, state, ok := q.Position(agent.CarID(9))
	assert.True(t, ok)
	assert.Equal(t, StateQueued, state)
	q.ClearLaggyHead(agent.CarID(9))
	_, _, ok = q.Position(agent.CarID(9))
	assert.False(t, ok)
}
