package volume

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/example/blocklayout/pkg/blockaddr"
)

func mustSimple(t *testing.T, b *Builder, size int64) *Simple {
	t.Helper()
	s, err := b.Simple(SimpleConfig{Size: size})
	if err != nil {
		t.Fatalf("Simple(%d) failed: %v", size, err)
	}
	return s
}

func checkResolve(t *testing.T, v Volume, offset int64, wantLeaf *Simple, wantOffset int64) {
	t.Helper()
	leaf, got, err := v.Resolve(offset)
	if err != nil {
		t.Fatalf("%s.Resolve(%d) failed: %v", v, offset, err)
	}
	if leaf != wantLeaf || got != wantOffset {
		t.Errorf("%s.Resolve(%d) = (%s, %d), want (%s, %d)", v, offset, leaf, got, wantLeaf, wantOffset)
	}
}

func TestSimpleResolve(t *testing.T) {
	b := NewBuilder(nil)
	s, err := b.Simple(SimpleConfig{
		Signature: []blockaddr.SigComponent{{Offset: 0, Contents: []byte("SIG")}},
		Size:      4096,
	})
	if err != nil {
		t.Fatalf("Simple failed: %v", err)
	}

	checkResolve(t, s, 100, s, 100)

	_, _, err = s.Resolve(4096)
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("Resolve(4096) error = %v, want RangeError", err)
	}
	if rangeErr.Size != 4096 || rangeErr.Offset != 4096 {
		t.Errorf("RangeError = %+v", rangeErr)
	}
	if !errors.Is(err, ErrOutOfRange) {
		t.Error("RangeError does not unwrap to ErrOutOfRange")
	}
	if _, _, err := s.Resolve(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Resolve(-1) error = %v, want ErrOutOfRange", err)
	}
}

func TestSliceResolve(t *testing.T) {
	b := NewBuilder(nil)
	simple := mustSimple(t, b, 4096)
	slice, err := b.Slice(simple, 1000, 2000)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}

	checkResolve(t, slice, 0, simple, 1000)
	checkResolve(t, slice, 1999, simple, 2999)
	if _, _, err := slice.Resolve(2000); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Resolve(2000) error = %v, want ErrOutOfRange", err)
	}

	m, err := slice.Extent(1500, 1<<40)
	if err != nil {
		t.Fatalf("Extent failed: %v", err)
	}
	if m.Leaf != simple || m.Offset != 2500 || m.Length != 500 {
		t.Errorf("Extent(1500) = %+v, want leaf offset 2500 length 500", m)
	}
}

func TestStripeResolve(t *testing.T) {
	b := NewBuilder(nil)
	a := mustSimple(t, b, 2048)
	bb := mustSimple(t, b, 2048)
	stripe, err := b.Stripe(512, []Volume{a, bb})
	if err != nil {
		t.Fatalf("Stripe failed: %v", err)
	}
	if stripe.Size() != 4096 {
		t.Errorf("Size = %d, want 4096", stripe.Size())
	}

	checkResolve(t, stripe, 0, a, 0)
	checkResolve(t, stripe, 512, bb, 0)
	checkResolve(t, stripe, 1024, a, 512)
	checkResolve(t, stripe, 1537, bb, 513)
}

func TestStripePeriodicity(t *testing.T) {
	const unit = 256
	b := NewBuilder(nil)
	members := []Volume{mustSimple(t, b, 4*unit), mustSimple(t, b, 4*unit), mustSimple(t, b, 4*unit)}
	stripe, err := b.Stripe(unit, members)
	if err != nil {
		t.Fatalf("Stripe failed: %v", err)
	}
	period := int64(unit * len(members))

	for i := int64(0); i+period < stripe.Size(); i++ {
		leaf1, off1, err := stripe.Resolve(i)
		if err != nil {
			t.Fatalf("Resolve(%d) failed: %v", i, err)
		}
		leaf2, off2, err := stripe.Resolve(i + period)
		if err != nil {
			t.Fatalf("Resolve(%d) failed: %v", i+period, err)
		}
		if leaf1 != leaf2 || off2-off1 != unit {
			t.Fatalf("Resolve(%d) = (%s, %d), Resolve(%d) = (%s, %d)", i, leaf1, off1, i+period, leaf2, off2)
		}
	}

	for i := int64(0); i < stripe.Size(); i += 37 {
		m, err := stripe.Extent(i, 1<<62)
		if err != nil {
			t.Fatalf("Extent(%d) failed: %v", i, err)
		}
		if want := unit - i%unit; m.Length != want {
			t.Errorf("Extent(%d).Length = %d, want %d", i, m.Length, want)
		}
	}

	m, err := stripe.Extent(10, 5)
	if err != nil {
		t.Fatalf("Extent failed: %v", err)
	}
	if m.Length != 5 {
		t.Errorf("Extent(10, 5).Length = %d, want 5", m.Length)
	}
}

func TestConcatExtentWalk(t *testing.T) {
	b := NewBuilder(nil)
	base := mustSimple(t, b, 3000)
	s1, _ := b.Slice(base, 0, 700)
	s2, _ := b.Slice(base, 1000, 1300)
	other := mustSimple(t, b, 1024)
	members := []Volume{s1, other, s2}
	concat, err := b.Concat(members)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	if concat.Size() != 700+1024+1300 {
		t.Fatalf("Size = %d", concat.Size())
	}

	// Every offset resolves against the member that holds it.
	var before int64
	for _, m := range members {
		for i := int64(0); i < m.Size(); i += 13 {
			wantLeaf, wantOff, err := m.Resolve(i)
			if err != nil {
				t.Fatalf("member Resolve failed: %v", err)
			}
			checkResolve(t, concat, before+i, wantLeaf, wantOff)
		}
		before += m.Size()
	}

	for _, limit := range []int64{1, 100, 1 << 30} {
		var pos int64
		var pieces int
		for pos < concat.Size() {
			m, err := concat.Extent(pos, limit)
			if err != nil {
				t.Fatalf("Extent(%d, %d) failed: %v", pos, limit, err)
			}
			if m.Length <= 0 || m.Length > limit {
				t.Fatalf("Extent(%d, %d).Length = %d", pos, limit, m.Length)
			}
			leaf, off, _ := concat.Resolve(pos)
			if m.Leaf != leaf || m.Offset != off {
				t.Fatalf("Extent(%d) starts at (%s, %d), Resolve says (%s, %d)", pos, m.Leaf, m.Offset, leaf, off)
			}
			pos += m.Length
			pieces++
		}
		if pos != concat.Size() {
			t.Errorf("limit %d: walk ended at %d, want %d", limit, pos, concat.Size())
		}
		if limit == 1<<30 && pieces != 3 {
			t.Errorf("unbounded walk took %d pieces, want 3", pieces)
		}
	}
}

func TestExtentRejectsBadInput(t *testing.T) {
	b := NewBuilder(nil)
	s := mustSimple(t, b, 100)
	if _, err := s.Extent(0, 0); !errors.Is(err, ErrBadLimit) {
		t.Errorf("Extent(0, 0) error = %v, want ErrBadLimit", err)
	}
	if _, err := s.Extent(100, 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Extent(100, 1) error = %v, want ErrOutOfRange", err)
	}
}

func TestBuilderRejectsBadConfig(t *testing.T) {
	b := NewBuilder(nil)
	s := mustSimple(t, b, 1024)
	small := mustSimple(t, b, 512)

	tests := []struct {
		name  string
		build func() error
		want  error
	}{
		{"no size or backing", func() error { _, err := b.Simple(SimpleConfig{}); return err }, ErrNoSizeOrBacking},
		{"negative size", func() error { _, err := b.Simple(SimpleConfig{Size: -1}); return err }, ErrNegativeSize},
		{"signature past end", func() error {
			_, err := b.Simple(SimpleConfig{Size: 16, Signature: []blockaddr.SigComponent{{Offset: 10, Contents: []byte("too long")}}})
			return err
		}, ErrSignatureBounds},
		{"signature before start", func() error {
			_, err := b.Simple(SimpleConfig{Size: 16, Signature: []blockaddr.SigComponent{{Offset: -20, Contents: []byte("x")}}})
			return err
		}, ErrSignatureBounds},
		{"slice past end", func() error { _, err := b.Slice(s, 1000, 25); return err }, ErrSliceBounds},
		{"negative slice", func() error { _, err := b.Slice(s, -1, 10); return err }, ErrSliceBounds},
		{"empty concat", func() error { _, err := b.Concat(nil); return err }, ErrNoMembers},
		{"empty stripe", func() error { _, err := b.Stripe(512, nil); return err }, ErrNoMembers},
		{"zero unit", func() error { _, err := b.Stripe(0, []Volume{s}); return err }, ErrStripeUnit},
		{"unaligned members", func() error { _, err := b.Stripe(300, []Volume{s}); return err }, ErrStripeUnit},
		{"unequal members", func() error { _, err := b.Stripe(512, []Volume{s, small}); return err }, ErrUnequalStripe},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build()
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error %v is not a ConfigError", err)
			}
		})
	}
}

func TestSimpleZeroSize(t *testing.T) {
	b := NewBuilder(nil)
	if _, err := b.Simple(SimpleConfig{Size: 0}); !errors.Is(err, ErrNoSizeOrBacking) {
		t.Errorf("zero size without backing error = %v, want ErrNoSizeOrBacking", err)
	}

	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := b.Simple(SimpleConfig{BackingPath: path})
	if err != nil {
		t.Fatalf("Simple over empty backing failed: %v", err)
	}
	if s.Size() != 0 {
		t.Errorf("size = %d, want 0", s.Size())
	}
}

func TestSimpleBackingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk")
	if err := os.WriteFile(path, make([]byte, 8192), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	b := NewBuilder(nil)

	s, err := b.Simple(SimpleConfig{
		BackingPath: path,
		Size:        4096,
		Signature: []blockaddr.SigComponent{
			{Offset: 16, Contents: []byte("head")},
			{Offset: -512, Contents: []byte("tail")},
		},
	})
	if err != nil {
		t.Fatalf("Simple failed: %v", err)
	}
	if s.Size() != 4096 || s.BackingPath() != path {
		t.Errorf("got size %d path %q", s.Size(), s.BackingPath())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(data[16:20], []byte("head")) {
		t.Errorf("head signature = %q", data[16:20])
	}
	if !bytes.Equal(data[3584:3588], []byte("tail")) {
		t.Errorf("tail signature = %q", data[3584:3588])
	}

	whole, err := b.Simple(SimpleConfig{BackingPath: path})
	if err != nil {
		t.Fatalf("Simple without size failed: %v", err)
	}
	if whole.Size() != 8192 {
		t.Errorf("adopted size = %d, want 8192", whole.Size())
	}

	if _, err := b.Simple(SimpleConfig{BackingPath: path, Size: 16384}); !errors.Is(err, ErrBackingTooSmall) {
		t.Errorf("oversized error = %v, want ErrBackingTooSmall", err)
	}
	if _, err := b.Simple(SimpleConfig{BackingPath: filepath.Join(t.TempDir(), "missing")}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing backing error = %v, want ErrNotExist", err)
	}
}

func TestCounterConcurrent(t *testing.T) {
	const workers, each = 8, 200
	b := NewBuilder(&Counter{})

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				s, err := b.Simple(SimpleConfig{Size: 512})
				if err != nil {
					t.Errorf("Simple failed: %v", err)
					return
				}
				mu.Lock()
				if seen[s.ID()] {
					t.Errorf("duplicate id %d", s.ID())
				}
				seen[s.ID()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*each {
		t.Errorf("got %d ids, want %d", len(seen), workers*each)
	}
}

func TestSnowflakeAllocator(t *testing.T) {
	ids, err := NewSnowflakeAllocator(3)
	if err != nil {
		t.Fatalf("NewSnowflakeAllocator failed: %v", err)
	}
	prev := ids.NextID()
	for i := 0; i < 100; i++ {
		next := ids.NextID()
		if next <= prev {
			t.Fatalf("ids not increasing: %d after %d", next, prev)
		}
		prev = next
	}

	if _, err := NewSnowflakeAllocator(1 << 20); err == nil {
		t.Error("expected error for out of range node")
	}
}
