//go:build linux

package actor

import "golang.org/x/sys/unix"

// nfdbits matches glibc's __NFDBITS: each Bits element holds 64 descriptors
// on a 64-bit Linux target, where unix.FdSet.Bits is []int64.
const nfdbits = 64

func fdsetSet(set *unix.FdSet, fd int) {
	set.Bits[fd/nfdbits] |= 1 << (uint(fd) % nfdbits)
}

func fdsetIsSet(set *unix.FdSet, fd int) bool {
	if set == nil {
		return false
	}
	return set.Bits[fd/nfdbits]&(1<<(uint(fd)%nfdbits)) != 0
}

func fdsetClear(set *unix.FdSet, fd int) {
	set.Bits[fd/nfdbits] &^= 1 << (uint(fd) % nfdbits)
}
