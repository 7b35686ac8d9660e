package capture

import "golang.org/x/sys/unix"

// transmit sends frame out dev's transmit path (spec.md §4.2 step 4). It
// takes no per-device transmit lock: each call opens its own AF_PACKET
// socket, and concurrent sends to the same device are not serialized by
// this package. It is a package-level variable so tests can stub it
// without a real network interface; the production implementation is an
// AF_PACKET raw socket send.
var transmit = transmitRaw

func transmitRaw(dev Device, frame []byte) bool {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	addr := unix.SockaddrLinklayer{Ifindex: dev.Index}
	if err := unix.Bind(fd, &addr); err != nil {
		return false
	}
	if err := unix.Sendto(fd, frame, 0, &addr); err != nil {
		return false
	}
	return true
}
