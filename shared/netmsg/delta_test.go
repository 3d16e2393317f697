package netmsg

import (
	"bytes"
	"testing"
)

func TestDiffApply(t *testing.T) {
	cases := []struct {
		name string
		old  []byte
		new  []byte
	}{
		{"identical", []byte("abcdefgh"), []byte("abcdefgh")},
		{"single change", []byte("abcdefgh"), []byte("abcXefgh")},
		{"two runs", append(bytes.Repeat([]byte{0}, 32), 1, 2, 3), append(append([]byte{9}, bytes.Repeat([]byte{0}, 31)...), 7, 2, 3)},
		{"grew", []byte("abc"), []byte("abcdef")},
		{"shrank", []byte("abcdef"), []byte("abq")},
		{"empty old", nil, []byte("xyz")},
		{"empty new", []byte("xyz"), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diff := Diff(tc.old, tc.new)
			got, err := ApplyDiff(tc.old, diff)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !bytes.Equal(got, tc.new) {
				t.Fatalf("got %v want %v", got, tc.new)
			}
		})
	}
}

func TestDiffSmallerForLocalChange(t *testing.T) {
	old := bytes.Repeat([]byte{0xAA}, 256)
	new := append([]byte(nil), old...)
	new[100] = 0xBB

	diff := Diff(old, new)
	if len(diff) >= len(new) {
		t.Fatalf("diff (%d bytes) not smaller than full (%d bytes)", len(diff), len(new))
	}
}

func TestApplyDiffTruncated(t *testing.T) {
	diff := Diff([]byte("abcdef"), []byte("abQdef"))
	if _, err := ApplyDiff([]byte("abcdef"), diff[:len(diff)-1]); err == nil {
		t.Fatal("want error for truncated run payload")
	}
	if _, err := ApplyDiff(nil, nil); err == nil {
		t.Fatal("want error for empty diff")
	}
}
