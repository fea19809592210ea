// Package netrange validates private IPv4 CIDR blocks and detects overlap
// between them using inclusive 32-bit address bounds.
package netrange

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

// Block is a validated IPv4 network with inclusive address bounds
type Block struct {
	prefix netip.Prefix
	start  uint32
	end    uint32
}

// Allocation is a block already held by an owner, typically a cluster
type Allocation struct {
	Owner string
	CIDR  string
}

var privateRanges = []Block{
	mustBlock("10.0.0.0/8"),
	mustBlock("172.16.0.0/12"),
	mustBlock("192.168.0.0/16"),
}

// Validate parses cidr as a.b.c.d/prefix and requires it to lie entirely
// inside RFC1918 space. Host bits are cleared; the canonical form is what
// callers should store.
func Validate(cidr string) (Block, error) {
	b, err := parse(cidr)
	if err != nil {
		return Block{}, err
	}

	for _, private := range privateRanges {
		if private.contains(b) {
			return b, nil
		}
	}
	return Block{}, errors.Validationf("cidr %s is not within private address space (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)", b)
}

// Overlaps reports whether the two blocks share any address
func Overlaps(a, b Block) bool {
	return a.start <= b.end && b.start <= a.end
}

// CheckAgainstExisting compares candidate with every existing allocation and
// returns a conflict naming all of the overlapping ones, in input order.
// Existing entries that do not parse are reported as internal errors since
// only validated blocks are ever stored.
func CheckAgainstExisting(candidate Block, existing []Allocation) error {
	var conflicts []string
	for _, alloc := range existing {
		b, err := parse(alloc.CIDR)
		if err != nil {
			return errors.Internal(fmt.Sprintf("stored cidr for %s is invalid", alloc.Owner), err)
		}
		if Overlaps(candidate, b) {
			conflicts = append(conflicts, fmt.Sprintf("%s (%s)", b, alloc.Owner))
		}
	}

	if len(conflicts) > 0 {
		return errors.Conflict(
			fmt.Sprintf("cidr %s overlaps %d existing block(s)", candidate, len(conflicts)),
			conflicts...,
		)
	}
	return nil
}

// String returns the canonical masked form, e.g. 10.0.0.0/16
func (b Block) String() string {
	return b.prefix.String()
}

// Bits returns the prefix length
func (b Block) Bits() int {
	return b.prefix.Bits()
}

// Size returns the number of addresses in the block
func (b Block) Size() uint64 {
	return uint64(b.end) - uint64(b.start) + 1
}

func (b Block) contains(other Block) bool {
	return b.start <= other.start && other.end <= b.end
}

// parse is strict: exactly four decimal octets without leading zeros and a
// decimal prefix length between 0 and 32.
func parse(cidr string) (Block, error) {
	addrPart, bitsPart, ok := strings.Cut(strings.TrimSpace(cidr), "/")
	if !ok {
		return Block{}, errors.Validationf("cidr %q must be in a.b.c.d/prefix form", cidr)
	}

	bits, err := strconv.Atoi(bitsPart)
	if err != nil || bits < 0 || bits > 32 || bitsPart != strconv.Itoa(bits) {
		return Block{}, errors.Validationf("cidr %q has invalid prefix length", cidr)
	}

	// ParseAddr rejects leading zeros and out-of-range octets but also
	// accepts IPv6, so the family is checked separately.
	addr, err := netip.ParseAddr(addrPart)
	if err != nil || !addr.Is4() || strings.Count(addrPart, ".") != 3 {
		return Block{}, errors.Validationf("cidr %q has invalid IPv4 address", cidr)
	}

	prefix := netip.PrefixFrom(addr, bits).Masked()
	start := toUint32(prefix.Addr())
	var hostMask uint32
	if bits < 32 {
		hostMask = ^uint32(0) >> uint(bits)
	}

	return Block{
		prefix: prefix,
		start:  start,
		end:    start | hostMask,
	}, nil
}

func toUint32(addr netip.Addr) uint32 {
	a := addr.As4()
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

func mustBlock(cidr string) Block {
	b, err := parse(cidr)
	if err != nil {
		panic(err)
	}
	return b
}
