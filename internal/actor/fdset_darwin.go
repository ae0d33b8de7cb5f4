//go:build darwin

package actor

import "golang.org/x/sys/unix"

// nfdbits matches Darwin's __NFDBITS: unix.FdSet.Bits is []int32, 32 per word.
const nfdbits = 32

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
