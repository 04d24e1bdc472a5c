package volume

import (
	"fmt"

	"github.com/example/blocklayout/pkg/blockaddr"
)

// Stripe interleaves equal-sized children in units of stripe unit bytes:
// unit g of the stripe lives on child g mod N at local unit g / N.
type Stripe struct {
	node
	unit     int64
	children []Volume
}

// Stripe builds a stripe set. All children must have the same size, and
// that size must be a whole number of units.
func (b *Builder) Stripe(unit int64, children []Volume) (*Stripe, error) {
	s := &Stripe{
		node:     node{id: b.ids.NextID()},
		unit:     unit,
		children: append([]Volume(nil), children...),
	}
	if unit <= 0 {
		return nil, configError(s.String(), fmt.Errorf("%w: %d", ErrStripeUnit, unit))
	}
	if len(children) == 0 {
		return nil, configError(s.String(), ErrNoMembers)
	}
	each := children[0].Size()
	for _, child := range children {
		if child.Size() != each {
			return nil, configError(s.String(),
				fmt.Errorf("%w: %s is %d bytes, %s is %d", ErrUnequalStripe, children[0], each, child, child.Size()))
		}
		s.size += child.Size()
	}
	if each%unit != 0 {
		return nil, configError(s.String(),
			fmt.Errorf("%w: member size %d is not a multiple of %d", ErrStripeUnit, each, unit))
	}
	return s, nil
}

// Kind returns KindStripe.
func (s *Stripe) Kind() Kind { return KindStripe }

// Children returns the members in stripe order.
func (s *Stripe) Children() []Volume {
	return append([]Volume(nil), s.children...)
}

// Unit returns the stripe unit in bytes.
func (s *Stripe) Unit() int64 { return s.unit }

func (s *Stripe) locate(offset int64) (child Volume, local, inUnit int64) {
	n := int64(len(s.children))
	global := offset / s.unit
	inUnit = offset % s.unit
	child = s.children[global%n]
	local = (global/n)*s.unit + inUnit
	return child, local, inUnit
}

// Resolve delegates to the member holding the unit containing offset.
func (s *Stripe) Resolve(offset int64) (*Simple, int64, error) {
	if err := checkRange(s, offset); err != nil {
		return nil, 0, err
	}
	child, local, _ := s.locate(offset)
	return child.Resolve(local)
}

// Extent never crosses a stripe unit boundary, whatever the limit.
func (s *Stripe) Extent(offset, limit int64) (Mapping, error) {
	if err := checkExtent(s, offset, limit); err != nil {
		return Mapping{}, err
	}
	child, local, inUnit := s.locate(offset)
	return child.Extent(local, min(limit, s.unit-inUnit))
}

// Encode returns the stripe descriptor.
func (s *Stripe) Encode(idx Index) (blockaddr.Volume, error) {
	members, err := indicesOf(idx, s.children)
	if err != nil {
		return blockaddr.Volume{}, err
	}
	return blockaddr.Volume{
		Type:   blockaddr.VolumeStripe,
		Stripe: &blockaddr.StripeInfo{StripeUnit: uint64(s.unit), Volumes: members},
	}, nil
}

func (s *Stripe) String() string { return name(KindStripe, s.id) }
