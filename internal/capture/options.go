package capture

import (
	"fmt"

	"github.com/ringtap/ringtap/internal/acsm"
)

// Option is a socket-option code from spec.md §6's table.
type Option uint8

const (
	OptAttachFilter Option = iota
	OptDetachFilter
	OptAddToCluster
	OptRemoveFromCluster
	OptSetReflector
	OptSetBloom
	OptSetString
	OptToggleBloomState
	OptResetBloomFilters
)

// ClusterJoinRequest is the ADD_TO_CLUSTER payload.
type ClusterJoinRequest struct {
	ClusterID uint16
	Mode      HashMode
}

// Apply dispatches a socket-option call to sock, implementing spec.md §6's
// option table. The cluster options take the runtime's management lock
// themselves (through Cluster, LeaveCluster, AddRing and RemoveRing), so the
// caller must not hold it; the other options change sock's fields without
// taking any lock.
func (rt *Runtime) Apply(sock *Socket, opt Option, payload any) error {
	switch opt {
	case OptAttachFilter:
		insns, ok := payload.([]Instruction)
		if !ok {
			return fmt.Errorf("%w: ATTACH_FILTER payload must be []Instruction", ErrInvalid)
		}
		prog, err := Compile(insns)
		if err != nil {
			return err
		}
		sock.Filter = prog
		return nil

	case OptDetachFilter:
		sock.Filter = nil
		return nil

	case OptAddToCluster:
		req, ok := payload.(ClusterJoinRequest)
		if !ok {
			return fmt.Errorf("%w: ADD_TO_CLUSTER payload must be ClusterJoinRequest", ErrInvalid)
		}
		c := rt.Cluster(req.ClusterID, req.Mode)
		if err := c.Join(sock); err != nil {
			return err
		}
		rt.RemoveRing(sock)
		sock.ClusterID = req.ClusterID
		return nil

	case OptRemoveFromCluster:
		if sock.ClusterID == 0 {
			return nil
		}
		rt.LeaveCluster(sock.ClusterID, sock)
		sock.ClusterID = 0
		rt.AddRing(sock)
		return nil

	case OptSetReflector:
		name, ok := payload.(string)
		if !ok || len(name) == 0 || len(name) > 7 {
			return fmt.Errorf("%w: SET_REFLECTOR payload must be a 1-7 byte device name", ErrInvalid)
		}
		dev, err := NetlinkResolver{}.Resolve(name)
		if err != nil {
			return err
		}
		sock.Reflector = &dev
		return nil

	case OptSetBloom:
		rule, ok := payload.(string)
		if !ok {
			return fmt.Errorf("%w: SET_BLOOM payload must be a string rule", ErrInvalid)
		}
		return sock.Bloom.SetRule(rule)

	case OptSetString:
		pattern, ok := payload.(string)
		if !ok {
			return fmt.Errorf("%w: SET_STRING payload must be a string pattern", ErrInvalid)
		}
		m := acsm.New(acsm.DefaultConfig())
		if _, err := m.AddPattern([]byte(pattern), true); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if err := m.Compile(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		sock.Matcher = m
		return nil

	case OptToggleBloomState:
		enabled, ok := payload.(bool)
		if !ok {
			return fmt.Errorf("%w: TOGGLE_BLOOM_STATE payload must be bool", ErrInvalid)
		}
		sock.Bloom.SetEnabled(enabled)
		return nil

	case OptResetBloomFilters:
		sock.Bloom.Reset()
		return nil

	default:
		return fmt.Errorf("%w: unknown option code %d", ErrInvalid, opt)
	}
}
