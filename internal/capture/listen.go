package capture

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// ListenAll runs ListenAndDispatch concurrently across devices, one
// goroutine each, grounded in the same errgroup-based multi-worker pattern
// the teacher's ring reader uses for multiple waker channels. It returns
// as soon as any device's loop fails, cancelling the rest.
func ListenAll(ctx context.Context, rt *Runtime, devices []Device) error {
	wg, gctx := errgroup.WithContext(ctx)
	for _, dev := range devices {
		dev := dev
		wg.Go(func() error {
			return ListenAndDispatch(gctx, rt, dev)
		})
	}
	return wg.Wait()
}

// htons converts a host-order uint16 to network order, mirroring the
// kernel's ETH_P_ALL socket protocol argument convention.
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// ListenAndDispatch opens an AF_PACKET socket bound to dev and feeds every
// frame it reads into rt.OnFrame as an RX frame, until ctx is cancelled.
// It is the userland stand-in for the kernel hook point original_source
// wires parse_pkt into (ring_packet.c's netif_receive_skb probe): rather
// than intercepting the kernel's receive path, it captures straight off
// the wire through the same raw-socket facility transmit.go uses to send.
func ListenAndDispatch(ctx context.Context, rt *Runtime, dev Device) error {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return fmt.Errorf("%w: open AF_PACKET socket: %v", ErrNoDevice, err)
	}
	defer unix.Close(fd)

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  dev.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		return fmt.Errorf("%w: bind AF_PACKET socket to %q: %v", ErrNoDevice, dev.Name, err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			unix.Close(fd)
		case <-done:
		}
	}()
	defer close(done)

	buf := make([]byte, 65536)
	for {
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("recvfrom %q: %w", dev.Name, err)
		}
		if n == 0 {
			continue
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		rt.OnFrame(dev, frame, DirectionRX, true)
	}
}
