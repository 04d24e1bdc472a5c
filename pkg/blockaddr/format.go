package blockaddr

import (
	"fmt"
	"io"
	"strings"
)

// WriteTree prints the topology of a as an indented tree rooted at its
// last volume. A volume referenced more than once is printed in full
// each time. Dangling and cyclic references are printed rather than
// rejected.
func WriteTree(w io.Writer, a DeviceAddr) error {
	if len(a.Volumes) == 0 {
		_, err := fmt.Fprintln(w, "(empty)")
		return err
	}
	tw := &treeWriter{w: w, addr: a, onPath: make(map[uint32]bool)}
	tw.volume(uint32(len(a.Volumes)-1), 0)
	return tw.err
}

type treeWriter struct {
	w      io.Writer
	addr   DeviceAddr
	onPath map[uint32]bool
	err    error
}

func (tw *treeWriter) line(depth int, format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, "%s%s\n", strings.Repeat("  ", depth), fmt.Sprintf(format, args...))
}

func (tw *treeWriter) volume(i uint32, depth int) {
	if int(i) >= len(tw.addr.Volumes) {
		tw.line(depth, "[%d] missing", i)
		return
	}
	if tw.onPath[i] {
		tw.line(depth, "[%d] cycle", i)
		return
	}
	tw.onPath[i] = true
	defer delete(tw.onPath, i)

	v := tw.addr.Volumes[i]
	switch v.Type {
	case VolumeSimple:
		tw.line(depth, "[%d] %v", i, v.Type)
		for _, c := range v.Simple.Signature {
			tw.line(depth+1, "sig @%d %q", c.Offset, c.Contents)
		}
	case VolumeSlice:
		tw.line(depth, "[%d] %v start=%d length=%d", i, v.Type, v.Slice.Start, v.Slice.Length)
		tw.volume(v.Slice.Volume, depth+1)
	case VolumeConcat:
		tw.line(depth, "[%d] %v", i, v.Type)
		for _, c := range v.Concat.Volumes {
			tw.volume(c, depth+1)
		}
	case VolumeStripe:
		tw.line(depth, "[%d] %v unit=%d", i, v.Type, v.Stripe.StripeUnit)
		for _, c := range v.Stripe.Volumes {
			tw.volume(c, depth+1)
		}
	default:
		tw.line(depth, "[%d] %v", i, v.Type)
	}
}
