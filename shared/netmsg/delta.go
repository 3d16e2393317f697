package netmsg

import (
	"encoding/binary"
	"fmt"
)

// Byte-level delta encoding used when a client holds an acknowledged
// baseline for a component. The diff is a sequence of replacement runs
// against the baseline:
//
//	uvarint  new total length
//	repeat:  uvarint gap from previous run end, uvarint run length, bytes
//
// Runs separated by fewer equal bytes than the run header costs are merged
// so the encoding never fragments pathologically.

const diffMergeGap = 3

// Diff computes a run-based byte diff that transforms old into new.
func Diff(old, new []byte) []byte {
	var runs [][2]int // start, length in new
	i := 0
	for i < len(new) {
		if i < len(old) && old[i] == new[i] {
			i++
			continue
		}
		start := i
		for i < len(new) && (i >= len(old) || old[i] != new[i]) {
			i++
		}
		// Swallow short equal gaps into the previous run.
		if n := len(runs); n > 0 && start-(runs[n-1][0]+runs[n-1][1]) <= diffMergeGap {
			runs[n-1][1] = i - runs[n-1][0]
			continue
		}
		runs = append(runs, [2]int{start, i - start})
	}

	out := binary.AppendUvarint(nil, uint64(len(new)))
	prevEnd := 0
	for _, r := range runs {
		out = binary.AppendUvarint(out, uint64(r[0]-prevEnd))
		out = binary.AppendUvarint(out, uint64(r[1]))
		out = append(out, new[r[0]:r[0]+r[1]]...)
		prevEnd = r[0] + r[1]
	}
	return out
}

// ApplyDiff reconstructs the new bytes from a baseline and a diff produced
// by Diff.
func ApplyDiff(old, diff []byte) ([]byte, error) {
	newLen, n := binary.Uvarint(diff)
	if n <= 0 {
		return nil, &SerializationError{What: "delta length", Err: errTruncated}
	}
	diff = diff[n:]

	out := make([]byte, newLen)
	limit := int(newLen)
	if len(old) < limit {
		limit = len(old)
	}
	copy(out, old[:limit])

	pos := 0
	for len(diff) > 0 {
		gap, n := binary.Uvarint(diff)
		if n <= 0 {
			return nil, &SerializationError{What: "delta run gap", Err: errTruncated}
		}
		diff = diff[n:]
		runLen, n := binary.Uvarint(diff)
		if n <= 0 {
			return nil, &SerializationError{What: "delta run length", Err: errTruncated}
		}
		diff = diff[n:]

		pos += int(gap)
		if pos+int(runLen) > len(out) || int(runLen) > len(diff) {
			return nil, &SerializationError{What: "delta run bounds", Err: errTruncated}
		}
		copy(out[pos:], diff[:runLen])
		diff = diff[runLen:]
		pos += int(runLen)
	}
	return out, nil
}

var errTruncated = fmt.Errorf("truncated")
