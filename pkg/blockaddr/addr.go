package blockaddr

import (
	"fmt"
)

// Validate checks that every entry has the arm matching its type and only
// references entries that precede it.
func (a *DeviceAddr) Validate() error {
	for i := range a.Volumes {
		v := &a.Volumes[i]
		if err := v.checkArm(); err != nil {
			return fmt.Errorf("volume %d: %w", i, err)
		}
		for _, child := range v.Children() {
			if int(child) >= i {
				return fmt.Errorf("%w: volume %d references %d", ErrBadIndex, i, child)
			}
		}
	}
	return nil
}

func (v *Volume) checkArm() error {
	var ok bool
	switch v.Type {
	case VolumeSimple:
		ok = v.Simple != nil
	case VolumeSlice:
		ok = v.Slice != nil
	case VolumeConcat:
		ok = v.Concat != nil
	case VolumeStripe:
		ok = v.Stripe != nil
	default:
		return fmt.Errorf("%w: %d", ErrBadUnion, int32(v.Type))
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingArm, v.Type)
	}
	return nil
}

// Marshal encodes a device address as pnfs_block_deviceaddr4.
func Marshal(addr DeviceAddr) ([]byte, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	e := &encoder{}
	e.putUint32(uint32(len(addr.Volumes)))
	for i := range addr.Volumes {
		encodeVolume(e, &addr.Volumes[i])
	}
	return e.buf, nil
}

func encodeVolume(e *encoder, v *Volume) {
	e.putInt32(int32(v.Type))
	switch v.Type {
	case VolumeSimple:
		e.putUint32(uint32(len(v.Simple.Signature)))
		for _, comp := range v.Simple.Signature {
			e.putInt64(comp.Offset)
			e.putOpaque(comp.Contents)
		}
	case VolumeSlice:
		e.putUint64(v.Slice.Start)
		e.putUint64(v.Slice.Length)
		e.putUint32(v.Slice.Volume)
	case VolumeConcat:
		e.putUint32Array(v.Concat.Volumes)
	case VolumeStripe:
		e.putUint64(v.Stripe.StripeUnit)
		e.putUint32Array(v.Stripe.Volumes)
	}
}

// Unmarshal decodes a pnfs_block_deviceaddr4 produced by Marshal.
func Unmarshal(data []byte) (DeviceAddr, error) {
	d := &decoder{data: data}
	// Smallest entry is a discriminant plus an empty array.
	n, err := d.count(8)
	if err != nil {
		return DeviceAddr{}, err
	}
	addr := DeviceAddr{Volumes: make([]Volume, n)}
	for i := range addr.Volumes {
		if addr.Volumes[i], err = decodeVolume(d); err != nil {
			return DeviceAddr{}, fmt.Errorf("volume %d: %w", i, err)
		}
	}
	if err := d.done(); err != nil {
		return DeviceAddr{}, err
	}
	if err := addr.Validate(); err != nil {
		return DeviceAddr{}, err
	}
	return addr, nil
}

func decodeVolume(d *decoder) (Volume, error) {
	tag, err := d.int32()
	if err != nil {
		return Volume{}, err
	}
	v := Volume{Type: VolumeType(tag)}
	switch v.Type {
	case VolumeSimple:
		// offset (8) + empty opaque (4)
		n, err := d.count(12)
		if err != nil {
			return Volume{}, err
		}
		info := &SimpleInfo{Signature: make([]SigComponent, n)}
		for i := range info.Signature {
			if info.Signature[i].Offset, err = d.int64(); err != nil {
				return Volume{}, err
			}
			if info.Signature[i].Contents, err = d.opaque(); err != nil {
				return Volume{}, err
			}
		}
		v.Simple = info
	case VolumeSlice:
		info := &SliceInfo{}
		if info.Start, err = d.uint64(); err != nil {
			return Volume{}, err
		}
		if info.Length, err = d.uint64(); err != nil {
			return Volume{}, err
		}
		if info.Volume, err = d.uint32(); err != nil {
			return Volume{}, err
		}
		v.Slice = info
	case VolumeConcat:
		volumes, err := d.uint32Array()
		if err != nil {
			return Volume{}, err
		}
		v.Concat = &ConcatInfo{Volumes: volumes}
	case VolumeStripe:
		unit, err := d.uint64()
		if err != nil {
			return Volume{}, err
		}
		volumes, err := d.uint32Array()
		if err != nil {
			return Volume{}, err
		}
		v.Stripe = &StripeInfo{StripeUnit: unit, Volumes: volumes}
	default:
		return Volume{}, fmt.Errorf("%w: %d", ErrBadUnion, tag)
	}
	return v, nil
}
