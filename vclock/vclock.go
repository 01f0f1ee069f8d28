// Package vclock provides the vector clock primitive used to track
// causality between replicas. Each replica owns one dimension, keyed
// by its socket address, and an address absent from a clock always
// reads as zero.
package vclock

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Structs

// VClock maps the socket address of a replica to the number of
// events this clock has observed from that replica.
type VClock map[string]int

// Functions

// InitVClock returns an empty initialized vector clock.
func InitVClock() VClock {
	return make(VClock)
}

// Get returns the counter stored for node. Missing entries
// read as zero without being materialized in the map.
func (vc VClock) Get(node string) int {

	value, exists := vc[node]
	if !exists {
		return 0
	}

	return value
}

// Incr advances the counter of node by one, mutating
// the clock in place.
func (vc VClock) Incr(node string) {
	vc[node] = vc[node] + 1
}

// AtLeast reports whether this clock is causally-after-or-equal
// the other clock: every entry of other is matched or exceeded
// here. The relation is reflexive but not total, concurrent
// clocks satisfy neither direction.
func (vc VClock) AtLeast(other VClock) bool {

	// Entries present only in vc trivially dominate the
	// implicit zero on the other side, so walking the
	// entries of other covers the whole union.
	for node, value := range other {

		if vc.Get(node) < value {
			return false
		}
	}

	return true
}

// Merge returns a new clock holding the elementwise maximum over
// the union of both clock domains. Neither input is mutated.
func (vc VClock) Merge(other VClock) VClock {

	merged := InitVClock()

	for node, value := range vc {
		merged[node] = value
	}

	for node, value := range other {

		if value > merged[node] {
			merged[node] = value
		}
	}

	return merged
}

// Copy returns a deep copy of this clock.
func (vc VClock) Copy() VClock {

	copied := InitVClock()

	for node, value := range vc {
		copied[node] = value
	}

	return copied
}

// String marshals the clock into its wire representation of
// semicolon-separated node:counter pairs. Node names are sorted
// so that equal clocks marshal identically.
func (vc VClock) String() string {

	nodes := make([]string, 0, len(vc))
	for node := range vc {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	var vclockValues string

	// Merge together all vector clock entries.
	for _, node := range nodes {

		if vclockValues == "" {
			vclockValues = fmt.Sprintf("%s:%d", node, vc[node])
		} else {
			vclockValues = fmt.Sprintf("%s;%s:%d", vclockValues, node, vc[node])
		}
	}

	return vclockValues
}

// Parse converts the wire representation produced by String back
// into a vector clock. The empty string parses to the empty clock.
func Parse(marshalled string) (VClock, error) {

	vc := InitVClock()

	if marshalled == "" {
		return vc, nil
	}

	// Split into pairs at semicola.
	pairs := strings.Split(marshalled, ";")

	for _, pair := range pairs {

		// Split each pair at its last colon. Node names are socket
		// addresses and carry a colon of their own.
		idx := strings.LastIndex(pair, ":")
		if idx < 1 {
			return nil, fmt.Errorf("invalid vector clock element '%s'", pair)
		}

		// Parse number from string.
		num, err := strconv.Atoi(pair[(idx + 1):])
		if err != nil {
			return nil, fmt.Errorf("invalid number as element in vector clock: %v", err)
		}

		if num < 0 {
			return nil, fmt.Errorf("negative counter in vector clock element '%s'", pair)
		}

		vc[pair[:idx]] = num
	}

	return vc, nil
}
