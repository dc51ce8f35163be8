//go:build linux && (386 || arm || mips || mipsle || ppc)

package socketcanv3

import "golang.org/x/sys/unix"

// C struct mmsghdr, missing from x/sys/unix : 28 byte header, 4 byte length
type Mmsghdr struct {
	Hdr unix.Msghdr
	Len uint32
	pad [4]byte
}
