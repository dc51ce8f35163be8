//go:build linux && (amd64 || arm64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x)

package socketcanv3

import "golang.org/x/sys/unix"

// C struct mmsghdr, missing from x/sys/unix : 56 byte header, 4 byte length,
// padded to 64
type Mmsghdr struct {
	Hdr unix.Msghdr
	Len uint32
	pad [4]byte
}
