package dfs

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testGeom() Geometry {
	return Geometry{PageSize: 4096, BlockSize: 3 * 4096, Blocks: 8}
}

func testOptions(ramScratch bool) Options {
	return Options{
		PageSize:      4096,
		BlockSize:     3 * 4096,
		MinFileSize:   2 * 4096,
		UseRAMScratch: ramScratch,
		DFSInodesMax:  4,
	}
}

// tmpFileDevicePath allocates a scratch image path under /dev/shm
// (falling back to the OS temp dir), a placement chosen so the test
// image lives on tmpfs rather than a real disk.
func tmpFileDevicePath(t *testing.T) string {
	dir := "/dev/shm"
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("dfs-test-%d.img", rand.Uint64()))
}

// withBothDevices runs fn once against a memory device and once against
// a file-backed device, mirroring the dual-backend pattern used
// throughout the retrieved pack's test suites.
func withBothDevices(t *testing.T, fn func(t *testing.T, newDevice func() Device)) {
	t.Run("mem", func(t *testing.T) {
		geom := testGeom()
		fn(t, func() Device {
			dev, err := NewMemDevice(geom)
			require.NoError(t, err)
			return dev
		})
	})
	t.Run("file", func(t *testing.T) {
		geom := testGeom()
		path := tmpFileDevicePath(t)
		defer os.Remove(path)
		fn(t, func() Device {
			dev, err := NewFileDevice(path, geom)
			require.NoError(t, err)
			return dev
		})
	})
}

func TestFormatThenMountHasValidRoot(t *testing.T) {
	withBothDevices(t, func(t *testing.T, newDevice func() Device) {
		dev := newDevice()
		m, err := Format(dev, testOptions(true))
		require.NoError(t, err)

		root, err := m.Root()
		require.NoError(t, err)
		require.EqualValues(t, 0, root.Ino)

		it, err := m.Iterate(0)
		require.NoError(t, err)
		_, _, ok, err := it.Next()
		require.NoError(t, err)
		require.False(t, ok, "freshly formatted volume has no entries besides root")
	})
}

func TestMountFSReformatsBlankDevice(t *testing.T) {
	withBothDevices(t, func(t *testing.T, newDevice func() Device) {
		dev := newDevice()
		m, err := MountFS(dev, testOptions(true))
		require.NoError(t, err)
		require.NotNil(t, m.sb)
		require.True(t, m.sb.hasValidMagic())
	})
}

func TestCreateThenLookup(t *testing.T) {
	withBothDevices(t, func(t *testing.T, newDevice func() Device) {
		dev := newDevice()
		m, err := Format(dev, testOptions(true))
		require.NoError(t, err)

		ip, err := m.Create("hello.txt", FlagRegular)
		require.NoError(t, err)
		require.EqualValues(t, 1, ip.Ino)

		found, err := m.Open("hello.txt")
		require.NoError(t, err)
		require.Equal(t, ip.Ino, found.Ino)
		require.Equal(t, ip.PosStart, found.PosStart)

		_, err = m.Open("nope.txt")
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		require.Equal(t, KindNOENT, kind)
	})
}

func TestWriteWithinSingleBlockRoundTrips(t *testing.T) {
	withBothDevices(t, func(t *testing.T, newDevice func() Device) {
		dev := newDevice()
		m, err := Format(dev, testOptions(true))
		require.NoError(t, err)

		ip, err := m.Create("a", FlagRegular)
		require.NoError(t, err)

		payload := []byte("hello, flash")
		n, err := m.Write(ip, 0, payload)
		require.NoError(t, err)
		require.Equal(t, len(payload), n)
		require.NoError(t, m.Truncate(ip.Ino, uint64(n)))

		ip, err = m.Open("a")
		require.NoError(t, err)
		got, err := m.Read(ip, 0, uint64(len(payload)))
		require.NoError(t, err)
		require.Equal(t, payload, got)
	})
}

func TestWriteSpanningMultipleBlocksRoundTrips(t *testing.T) {
	withBothDevices(t, func(t *testing.T, newDevice func() Device) {
		dev := newDevice()
		opts := testOptions(false) // exercise flash-scratch staging too
		opts.MinFileSize = dev.Geometry().BlockSize * 2
		m, err := Format(dev, opts)
		require.NoError(t, err)

		ip, err := m.Create("big", FlagRegular)
		require.NoError(t, err)

		B := dev.Geometry().BlockSize
		payload := make([]byte, B+B/2)
		for i := range payload {
			payload[i] = byte(i)
		}
		n, err := m.Write(ip, B/4, payload)
		require.NoError(t, err)
		require.Equal(t, len(payload), n)
		require.NoError(t, m.Truncate(ip.Ino, B/4+uint64(n)))

		ip, err = m.Open("big")
		require.NoError(t, err)
		got, err := m.Read(ip, B/4, uint64(len(payload)))
		require.NoError(t, err)
		require.Equal(t, payload, got)
	})
}

func TestWritePreservesBytesOutsideRange(t *testing.T) {
	withBothDevices(t, func(t *testing.T, newDevice func() Device) {
		dev := newDevice()
		m, err := Format(dev, testOptions(true))
		require.NoError(t, err)

		ip, err := m.Create("f", FlagRegular)
		require.NoError(t, err)

		first := make([]byte, 64)
		for i := range first {
			first[i] = 0xAB
		}
		_, err = m.Write(ip, 0, first)
		require.NoError(t, err)

		second := []byte("PATCH")
		_, err = m.Write(ip, 100, second)
		require.NoError(t, err)
		require.NoError(t, m.Truncate(ip.Ino, 105))

		ip, err = m.Open("f")
		require.NoError(t, err)
		got, err := m.Read(ip, 0, 105)
		require.NoError(t, err)
		require.Equal(t, first, got[:64])
		require.Equal(t, second, got[100:105])
	})
}

func TestCreateFailsOnceInodeTableIsFull(t *testing.T) {
	withBothDevices(t, func(t *testing.T, newDevice func() Device) {
		dev := newDevice()
		opts := testOptions(true)
		opts.DFSInodesMax = 2
		m, err := Format(dev, opts)
		require.NoError(t, err)

		_, err = m.Create("one", FlagRegular)
		require.NoError(t, err)
		_, err = m.Create("two", FlagRegular)
		require.NoError(t, err)

		_, err = m.Create("three", FlagRegular)
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		require.Equal(t, KindNOMEM, kind)
	})
}

func TestTruncateIsGrowOnly(t *testing.T) {
	withBothDevices(t, func(t *testing.T, newDevice func() Device) {
		dev := newDevice()
		m, err := Format(dev, testOptions(true))
		require.NoError(t, err)

		ip, err := m.Create("g", FlagRegular)
		require.NoError(t, err)
		require.NoError(t, m.Truncate(ip.Ino, 10))

		err = m.Truncate(ip.Ino, 5)
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		require.Equal(t, KindINVAL, kind)

		err = m.Truncate(ip.Ino, uint64(m.sb.maxLen)+1)
		require.Error(t, err)
		kind, ok = KindOf(err)
		require.True(t, ok)
		require.Equal(t, KindINVAL, kind)

		require.NoError(t, m.Truncate(ip.Ino, 10))
	})
}

func TestIteratorSkipsRootAndSeesCreatedFiles(t *testing.T) {
	withBothDevices(t, func(t *testing.T, newDevice func() Device) {
		dev := newDevice()
		m, err := Format(dev, testOptions(true))
		require.NoError(t, err)

		_, err = m.Create("alpha", FlagRegular)
		require.NoError(t, err)
		_, err = m.Create("beta", FlagRegular)
		require.NoError(t, err)

		it, err := m.Iterate(0)
		require.NoError(t, err)

		var names []string
		for {
			_, entry, ok, err := it.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			names = append(names, entry.Name())
		}
		require.ElementsMatch(t, []string{"alpha", "beta"}, names)
	})
}

func TestRemountOverFileDevicePreservesData(t *testing.T) {
	geom := testGeom()
	path := tmpFileDevicePath(t)
	defer os.Remove(path)

	dev1, err := NewFileDevice(path, geom)
	require.NoError(t, err)
	m1, err := Format(dev1, testOptions(true))
	require.NoError(t, err)

	ip, err := m1.Create("persisted", FlagRegular)
	require.NoError(t, err)
	payload := []byte("still here")
	_, err = m1.Write(ip, 0, payload)
	require.NoError(t, err)
	require.NoError(t, m1.Truncate(ip.Ino, uint64(len(payload))))

	dev2, err := NewFileDevice(path, geom)
	require.NoError(t, err)
	m2, err := MountFS(dev2, testOptions(true))
	require.NoError(t, err)

	found, err := m2.Open("persisted")
	require.NoError(t, err)
	got, err := m2.Read(found, 0, uint64(len(payload)))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestStatsRecordOperations(t *testing.T) {
	dev, err := NewMemDevice(testGeom())
	require.NoError(t, err)
	m, err := Format(dev, testOptions(true))
	require.NoError(t, err)

	_, err = m.Create("x", FlagRegular)
	require.NoError(t, err)

	out := m.Stats().FormatStats()
	require.Contains(t, out, "create")
}
