package dfs

import (
	"sync"
	"time"
)

// DefaultInodesMax is DFSInodesMax when Options leaves it at zero.
const DefaultInodesMax = 16

// Options configures Format and MountFS. The zero value is not
// generally usable: PageSize, BlockSize and MinFileSize must be set by
// the caller to match the target Device's geometry.
type Options struct {
	PageSize  uint64
	BlockSize uint64

	// MinFileSize is max_len: the fixed per-file capacity reserved for
	// every inode at Create time, regardless of how much is written.
	MinFileSize uint64

	// UseRAMScratch selects scratch mode 1 (a RAM buffer) over mode 2
	// (a reserved flash block). The two modes are interchangeable at
	// the bufferedWrite level; this only picks which scratchStaging
	// Format and MountFS wire up.
	UseRAMScratch bool

	// RAMScratchSectionHint names a placement section for the RAM
	// scratch buffer. It is a hint only: it is kept with the Mount's
	// options and has no effect on behaviour.
	RAMScratchSectionHint string

	// DFSInodesMax is the number of non-root dirent slots. Zero means
	// DefaultInodesMax.
	DFSInodesMax uint32

	// DebugLevel sets the package-level Debug threshold for DPrintf
	// calls made during this Mount's lifetime.
	DebugLevel int
}

func (o Options) inodesMax() uint32 {
	if o.DFSInodesMax == 0 {
		return DefaultInodesMax
	}
	return o.DFSInodesMax
}

// Mount is a live handle to a formatted DFS volume: the flash facade,
// its geometry, the buffered-rewrite engine's scratch staging, and the
// cached superblock. Mount is not safe for concurrent use from more
// than one goroutine at a time beyond the mutual exclusion
// bufferedWrite already provides around the scratch resource; callers
// needing concurrent access must serialize at a higher layer.
type Mount struct {
	dev  Device
	geom Geometry

	scratch   scratchStaging
	scratchMu sync.Mutex

	sb    *sbInfo
	stats *opStats
	opts  Options
}

// Stats returns the running operation-latency table for this Mount.
func (m *Mount) Stats() *opStats { return m.stats }

func newScratch(dev Device, geom Geometry, opts Options) (scratchStaging, uint64) {
	if opts.UseRAMScratch {
		return newRAMScratch(dev, geom), 0
	}
	scratchBlock := geom.Blocks - 1
	return newFlashScratch(dev, geom, scratchBlock), scratchBlock
}

// Format erases every block dev reports and lays down a fresh
// superblock and root directory: inode 0, name "/", spanning
// DFSInodesMax dirent slots, flagged as a directory. Any data dev
// previously held is gone once Format returns.
func Format(dev Device, opts Options) (*Mount, error) {
	geom := dev.Geometry()
	Debug = opts.DebugLevel
	DPrintf(1, "Format: geometry %+v, opts %+v\n", geom, opts)

	for bk := uint64(0); bk < geom.Blocks; bk++ {
		if err := dev.Erase(bk); err != nil {
			return nil, wrapIOErr("Format", err)
		}
	}

	stats := &opStats{}
	defer stats.format.Record(time.Now())

	instrumented := newInstrumentedDevice(dev, stats)
	scratch, scratchBlock := newScratch(instrumented, geom, opts)
	if err := scratch.erase(); err != nil {
		return nil, wrapIOErr("Format", err)
	}

	inodesMax := opts.inodesMax()
	sb := &sbInfo{
		magic:         dfsMagic,
		inodeCount:    1,
		maxInodeCount: inodesMax + 1,
		maxLen:        uint32(opts.MinFileSize),
		buffBk:        scratchBlock,
		freeSpace:     uint64(SbInfoSize) + uint64(inodesMax+1)*DirentSize,
	}

	m := &Mount{
		dev:     instrumented,
		geom:    geom,
		scratch: scratch,
		sb:      sb,
		stats:   stats,
		opts:    opts,
	}

	root := &dirEntry{
		name:     "/",
		posStart: sb.freeSpace,
		length:   uint64(inodesMax),
		flags:    FlagDirectory,
	}
	if err := m.writeDirent(0, root); err != nil {
		return nil, err
	}
	if err := m.writeSbInfo(sb); err != nil {
		return nil, err
	}
	return m, nil
}

// MountFS opens an existing DFS volume on dev. If the superblock's
// magic does not match (a blank or foreign device), MountFS formats
// dev fresh instead of failing — there is no separate "not formatted"
// error, matching the always-succeeds mount behavior DFS's simplicity
// goal calls for.
func MountFS(dev Device, opts Options) (*Mount, error) {
	geom := dev.Geometry()
	Debug = opts.DebugLevel

	stats := &opStats{}
	defer stats.mount.Record(time.Now())

	instrumented := newInstrumentedDevice(dev, stats)
	sbBuf := make([]byte, SbInfoSize)
	if err := instrumented.ReadAligned(0, sbBuf); err != nil {
		return nil, wrapIOErr("MountFS", err)
	}
	sb := decodeSbInfo(sbBuf)
	if !sb.hasValidMagic() {
		DPrintf(1, "MountFS: no valid superblock, formatting\n")
		return Format(dev, opts)
	}

	scratchBlock := sb.buffBk
	var scratch scratchStaging
	if opts.UseRAMScratch {
		scratch = newRAMScratch(instrumented, geom)
	} else {
		scratch = newFlashScratch(instrumented, geom, scratchBlock)
	}

	m := &Mount{
		dev:     instrumented,
		geom:    geom,
		scratch: scratch,
		sb:      sb,
		stats:   stats,
		opts:    opts,
	}

	if _, err := m.readDirent(0); err != nil {
		return nil, err
	}
	return m, nil
}

// Root returns the in-memory handle for inode 0, the flat volume's one
// directory.
func (m *Mount) Root() (*Inode, error) {
	d, err := m.readDirent(0)
	if err != nil {
		return nil, err
	}
	return &Inode{Ino: 0, PosStart: d.posStart, Length: d.length}, nil
}

// Open resolves name against the root directory and returns its
// in-memory inode handle.
func (m *Mount) Open(name string) (*Inode, error) {
	inum, err := m.inoFromPath(name)
	if err != nil {
		return nil, err
	}
	d, err := m.readDirent(inum)
	if err != nil {
		return nil, err
	}
	return &Inode{Ino: inum, PosStart: d.posStart, Length: d.length}, nil
}
