package flow

import (
	"hash/fnv"
	"sync"
	"time"

	"NetFlowMeter/internal/engine/protocol"
	"NetFlowMeter/internal/model"
)

const defaultShardCount = 64

// shard holds one partition of the flow table with its own lock.
type shard struct {
	flows map[string]*State
	mu    sync.RWMutex
}

// Table is a sharded map of flow accumulators. Packets are routed to a
// shard by an FNV hash of the flow key, so all updates for one flow pass
// through the same lock and a flow never observes a partial update.
type Table struct {
	shards     []*shard
	shardCount uint32
}

// NewTable creates a flow table with the given number of shards.
// Out-of-range values fall back to the default.
func NewTable(numShards uint32) *Table {
	if numShards == 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	t := &Table{
		shards:     make([]*shard, numShards),
		shardCount: numShards,
	}
	for i := range t.shards {
		t.shards[i] = &shard{flows: make(map[string]*State)}
	}
	return t
}

// Upsert attributes one packet to the flow identified by key, creating the
// flow if absent, and returns a value copy of the updated state. The copy
// reflects exactly the state after this packet, unaffected by concurrent
// updates to the same flow.
func (t *Table) Upsert(key string, info *model.PacketInfo, arrival time.Time) State {
	s := t.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flows[key]
	if !ok {
		f = &State{
			Key:            key,
			SrcIP:          info.FiveTuple.SrcIP.String(),
			DstIP:          info.FiveTuple.DstIP.String(),
			SrcPort:        info.FiveTuple.SrcPort,
			DstPort:        info.FiveTuple.DstPort,
			Protocol:       info.FiveTuple.Protocol,
			StartTime:      arrival,
			LastPacketTime: arrival,
		}
		s.flows[key] = f
	}

	f.PacketCount++
	f.ByteCount += uint64(info.Length)
	f.Length.Add(float64(info.Length))

	if f.PacketCount > 1 {
		f.IAT.Add(arrival.Sub(f.LastPacketTime).Seconds())
	}
	f.LastPacketTime = arrival

	if info.FiveTuple.Protocol == protocol.ProtocolTCP {
		f.TCPFlagsUnion |= info.TCPFlags
	}

	return *f
}

// Get returns a value copy of the state for key, if present.
func (t *Table) Get(key string) (State, bool) {
	s := t.getShard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flows[key]
	if !ok {
		return State{}, false
	}
	return *f, true
}

// Len returns the number of flows currently tracked.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.flows)
		s.mu.RUnlock()
	}
	return n
}

// EvictIdle removes every flow whose last packet is older than timeout
// relative to now and returns the number removed.
func (t *Table) EvictIdle(now time.Time, timeout time.Duration) int {
	evicted := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for key, f := range s.flows {
			if now.Sub(f.LastPacketTime) > timeout {
				delete(s.flows, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// Drain removes all flows from the table and returns value copies of their
// final states. Used on shutdown so remaining flows can be accounted for.
func (t *Table) Drain() []State {
	var drained []State
	for _, s := range t.shards {
		s.mu.Lock()
		for _, f := range s.flows {
			drained = append(drained, *f)
		}
		s.flows = make(map[string]*State)
		s.mu.Unlock()
	}
	return drained
}

// getShard routes a key to its shard.
func (t *Table) getShard(key string) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return t.shards[hasher.Sum32()%t.shardCount]
}
