package kernelver

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestFromRelease(t *testing.T) {
	cases := []struct {
		release string
		want    uint32
		wantErr bool
	}{
		{"4.14.0", 4<<16 | 14<<8 | 0, false},
		{"5.4.86-g1234abcd", 5<<16 | 4<<8 | 86, false},
		{"6.1.0-rc1", 6<<16 | 1<<8 | 0, false},
		{"not-a-version", 0, true},
	}

	for _, c := range cases {
		got, err := FromRelease(c.release)
		if c.wantErr {
			qt.Assert(t, qt.IsNotNil(err))
			continue
		}
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(got, c.want))
	}
}
