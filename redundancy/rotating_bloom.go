package redundancy

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/dtn7/dtn7-core/bundle"
)

// probesPerInsert is the number of bit positions each insertion sets (and
// Check tests), derived from two independent FNV hashes via double hashing
// (Kirsch/Mitzenmacher): probe_i = h1 + i*h2.
const probesPerInsert = 3

// RotatingBloom is K parallel bloom filters of equal size. All K are
// queried on Check; a bundle counts as seen if it is set in any one of
// them. Insertions always go into the current (active) filter; once it has
// received rotationThreshold insertions, the pointer advances to the next
// filter and clears it. This bounds staleness to roughly
// numFilters*rotationThreshold insertions while guaranteeing no false
// negatives within that window, since a number is never evicted from the
// filter it was actually inserted into until that filter's turn to be
// cleared comes back around.
type RotatingBloom struct {
	mu sync.Mutex

	filters  [][]byte
	bits     uint64
	active   int
	inserted int

	rotationThreshold int
}

// NewRotatingBloom creates a RotatingBloom with numFilters filters of
// sizeBytes each, rotating the active filter after rotationThreshold
// insertions. The spec's default is two 64-byte filters and a threshold of
// 100 insertions.
func NewRotatingBloom(numFilters, sizeBytes, rotationThreshold int) *RotatingBloom {
	filters := make([][]byte, numFilters)
	for i := range filters {
		filters[i] = make([]byte, sizeBytes)
	}

	return &RotatingBloom{
		filters:           filters,
		bits:              uint64(sizeBytes) * 8,
		rotationThreshold: rotationThreshold,
	}
}

func probes(num bundle.BundleNumber) (h1, h2 uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(num))

	fa := fnv.New32a()
	_, _ = fa.Write(buf[:])
	h1 = fa.Sum32()

	f := fnv.New32()
	_, _ = f.Write(buf[:])
	h2 = f.Sum32()
	if h2 == 0 {
		h2 = 1
	}

	return
}

func (rb *RotatingBloom) positions(num bundle.BundleNumber) []uint64 {
	h1, h2 := probes(num)
	pos := make([]uint64, probesPerInsert)
	for i := 0; i < probesPerInsert; i++ {
		pos[i] = (uint64(h1) + uint64(i)*uint64(h2)) % rb.bits
	}
	return pos
}

func testBit(filter []byte, pos uint64) bool {
	return filter[pos/8]&(1<<(pos%8)) != 0
}

func setBit(filter []byte, pos uint64) {
	filter[pos/8] |= 1 << (pos % 8)
}

// Check implements Filter.
func (rb *RotatingBloom) Check(num bundle.BundleNumber) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	pos := rb.positions(num)

	for _, filter := range rb.filters {
		seen := true
		for _, p := range pos {
			if !testBit(filter, p) {
				seen = false
				break
			}
		}
		if seen {
			return true
		}
	}

	return false
}

// Set implements Filter.
func (rb *RotatingBloom) Set(num bundle.BundleNumber) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	pos := rb.positions(num)
	active := rb.filters[rb.active]
	for _, p := range pos {
		setBit(active, p)
	}

	rb.inserted++
	if rb.inserted >= rb.rotationThreshold {
		rb.active = (rb.active + 1) % len(rb.filters)
		for i := range rb.filters[rb.active] {
			rb.filters[rb.active][i] = 0
		}
		rb.inserted = 0
	}
}
