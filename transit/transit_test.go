package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

func TestSpawnBusAndEnqueueBoardsWithinCapacity(t *testing.T) {
	mgr := New(nil)
	bus := mgr.SpawnBus(1, 100)
	bus.Capacity = 2

	events := &event.Buffer{}
	mgr.Enqueue(10, 100, agent.PedID(1), simtime.Time(0))
	mgr.Enqueue(10, 100, agent.PedID(2), simtime.Time(1))
	mgr.Enqueue(10, 100, agent.PedID(3), simtime.Time(2)) // over capacity

	boarded := mgr.ArriveAtStop(1, 10, simtime.Time(5), events)
	assert.Len(t, boarded, 2)
	assert.Equal(t, agent.PedID(1), boarded[0].Ped)
	assert.Equal(t, simtime.Duration(5), boarded[0].Wait)
	assert.Equal(t, agent.PedID(2), boarded[1].Ped)

	// third passenger remains queued
	byRoute := mgr.queues[10]
	assert.Len(t, byRoute[100], 1)
	assert.Equal(t, agent.PedID(3), byRoute[100][0].Ped)

	evs := events.Drain()
	assert.Len(t, evs, 1)
	assert.Equal(t, event.BusArrivedAtStop, evs[0].Kind)
}

func TestAlightRemovesOnboardPassenger(t *testing.T) {
	mgr := New(nil)
	bus := mgr.SpawnBus(1, 100)
	bus.Onboard = []agent.PedID{5, 6}

	ok := mgr.Alight(1, 5)
	assert.True(t, ok)
	assert.Equal(t, []agent.PedID{6}, mgr.Bus(1).Onboard)

	ok = mgr.Alight(1, 99)
	assert.False(t, ok)
}

func TestDwellDurationFallsBackToDefault(t *testing.T) {
	route := &citymap.BusRoute{ID: 1}
	assert.Equal(t, DwellTime, DwellDuration(route))

	route.DwellTime = 45
	assert.Equal(t, simtime.Duration(45), DwellDuration(route))
}
