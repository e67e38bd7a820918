// Package hashing provides the two hash primitives the core needs: a
// stable 64-bit mix for sticky-table keys and a ketama-compatible 32-bit
// hash for consistent-hash ring construction. Both are stable across
// process restarts (no random seed), so source-hash and consistent-hash
// assignment survive a load balancer restart.
package hashing

import (
	"crypto/md5"
	"encoding/binary"
	"strconv"
)

// fnv64 constants, used as the base mix for Murmur3_64 below.
const (
	offset64 uint64 = 14695981039346656037
	prime64  uint64 = 1099511628211
)

// Murmur3_64 mixes data with a seed (the backend id, or 0 for sticky
// keys) into a stable 64-bit value. It is an FNV-1a/avalanche hybrid
// rather than bit-exact murmur3; callers only rely on stability and
// spread, not on the reference output.
func Murmur3_64(data []byte, seed uint64) uint64 {
	h := offset64 ^ seed
	for _, b := range data {
		h ^= uint64(b)
		h *= prime64
	}
	// final avalanche mix (murmur3 fmix64 finalizer) so short keys (e.g. a
	// 4-byte IPv4 address) still spread across the full 64-bit space.
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// HashKey is the source-hash / URI-hash convenience wrapper.
func HashKey(key []byte) uint64 {
	return Murmur3_64(key, 0)
}

// KetamaHash MD5s the virtual-node identity "host:port#vnode" and takes
// the first 4 bytes little-endian.
func KetamaHash(key string, vnode int) uint32 {
	sum := md5.Sum([]byte(key + "#" + strconv.Itoa(vnode)))
	return binary.LittleEndian.Uint32(sum[:4])
}

// KetamaHashKey hashes an arbitrary request key (not a backend identity)
// into the same 32-bit ring space, used for ring lookups.
func KetamaHashKey(key string) uint32 {
	sum := md5.Sum([]byte(key))
	return binary.LittleEndian.Uint32(sum[:4])
}
