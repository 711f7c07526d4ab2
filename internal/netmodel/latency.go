package netmodel

import (
	"container/heap"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sync"

	"github.com/rekrevs/xedgesim/internal/event"
)

// LinkKey identifies an ordered (src, dst) pair inside a LatencyNetworkModel.
type LinkKey struct {
	Src string
	Dst string
}

// LinkConfig is the (latency, loss) pair attached to one link.
type LinkConfig struct {
	LatencyUs int64
	LossRate  float64
}

// LatencyConfig configures a LatencyNetworkModel.
type LatencyConfig struct {
	ScenarioSeed     uint64
	DefaultLatencyUs int64
	DefaultLossRate  float64
	Links            map[LinkKey]LinkConfig
}

// LatencyNetworkModel delays and probabilistically drops routed events per
// spec.md §4.8. Per-link loss sequences are deterministic and independent
// of event interleaving across links: each link's RNG is seeded from
// SHA-256(scenario_seed || "|" || link_id)[:8].
type LatencyNetworkModel struct {
	mu    sync.Mutex
	cfg   LatencyConfig
	rngs  map[string]*rand.Rand
	queue deliveryQueue
	seq   uint64
}

func NewLatencyNetworkModel(cfg LatencyConfig) *LatencyNetworkModel {
	m := &LatencyNetworkModel{cfg: cfg}
	m.Reset()
	return m
}

func (m *LatencyNetworkModel) linkID(src, dst string) string {
	return src + "->" + dst
}

func (m *LatencyNetworkModel) resolveLink(src, dst string) LinkConfig {
	if cfg, ok := m.cfg.Links[LinkKey{Src: src, Dst: dst}]; ok {
		return cfg
	}
	return LinkConfig{LatencyUs: m.cfg.DefaultLatencyUs, LossRate: m.cfg.DefaultLossRate}
}

func (m *LatencyNetworkModel) rngFor(linkID string) *rand.Rand {
	if r, ok := m.rngs[linkID]; ok {
		return r
	}
	r := rand.New(rand.NewSource(seedForLink(m.cfg.ScenarioSeed, linkID)))
	m.rngs[linkID] = r
	return r
}

// seedForLink derives a 64-bit RNG seed from SHA-256(scenario_seed || "|" ||
// link_id)[:8], matching spec.md §4.8 verbatim.
func seedForLink(scenarioSeed uint64, linkID string) int64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], scenarioSeed)
	h := sha256.New()
	h.Write(buf[:])
	h.Write([]byte("|"))
	h.Write([]byte(linkID))
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

func (m *LatencyNetworkModel) RouteMessage(e event.Event) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	linkID := m.linkID(e.Src, e.Dst)
	link := m.resolveLink(e.Src, e.Dst)
	rng := m.rngFor(linkID)

	if rng.Float64() < link.LossRate {
		return nil
	}

	deliveryUs := e.TimeUs + link.LatencyUs
	delivered := e.WithTimeUs(deliveryUs).WithNetMeta(map[string]any{
		event.MetaSentTimeUs:     e.TimeUs,
		event.MetaDeliveryTimeUs: deliveryUs,
		event.MetaLatencyUs:      link.LatencyUs,
		event.MetaLinkID:         linkID,
	})

	m.seq++
	heap.Push(&m.queue, &deliveryItem{event: delivered, deliveryUs: deliveryUs, seq: m.seq})
	return nil
}

func (m *LatencyNetworkModel) AdvanceTo(targetTimeUs int64) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []event.Event
	for m.queue.Len() > 0 && m.queue[0].deliveryUs <= targetTimeUs {
		item := heap.Pop(&m.queue).(*deliveryItem)
		out = append(out, item.event)
	}
	return out
}

func (m *LatencyNetworkModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rngs = make(map[string]*rand.Rand)
	m.queue = nil
	m.seq = 0
}

// deliveryItem is one pending delayed event, ordered by (deliveryUs, seq) so
// ties are broken by insertion order.
type deliveryItem struct {
	event      event.Event
	deliveryUs int64
	seq        uint64
}

type deliveryQueue []*deliveryItem

func (q deliveryQueue) Len() int { return len(q) }

func (q deliveryQueue) Less(i, j int) bool {
	if q[i].deliveryUs != q[j].deliveryUs {
		return q[i].deliveryUs < q[j].deliveryUs
	}
	return q[i].seq < q[j].seq
}

func (q deliveryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *deliveryQueue) Push(x any) {
	*q = append(*q, x.(*deliveryItem))
}

func (q *deliveryQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
