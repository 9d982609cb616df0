package dfs

import (
	"encoding/binary"
	"time"

	"github.com/tchajed/marshal"
)

// DirentNameLen is the fixed width of a dirent's name field.
const DirentNameLen = 48

// DirentSize is the fixed stride of one dir_entry record.
const DirentSize = DirentNameLen + 8 + 8 + 4 + 4 // name, posStart, len, flags, padding

// File-type bits for dirEntry.flags.
const (
	FlagRegular   uint32 = 0
	FlagDirectory uint32 = 1 << 0
)

// dirEntry is the in-memory form of a dir_entry.
type dirEntry struct {
	name      string
	posStart  uint64
	length    uint64
	flags     uint32
}

func direntOffset(inum uint32) uint64 {
	return uint64(SbInfoSize) + uint64(inum)*DirentSize
}

func encodeDirEntry(d *dirEntry) []byte {
	buf := make([]byte, DirentSize)
	nameBytes := []byte(d.name)
	if len(nameBytes) >= DirentNameLen {
		nameBytes = nameBytes[:DirentNameLen-1]
	}
	copy(buf[:DirentNameLen], nameBytes) // remainder stays NUL

	enc := marshal.NewEnc(8 + 8 + 4)
	enc.PutInt(d.posStart)
	enc.PutInt(d.length)
	enc.PutInt32(d.flags)
	copy(buf[DirentNameLen:], enc.Finish())
	return buf
}

func decodeDirEntry(buf []byte) *dirEntry {
	nul := DirentNameLen
	for i, b := range buf[:DirentNameLen] {
		if b == 0 {
			nul = i
			break
		}
	}
	d := &dirEntry{name: string(buf[:nul])}
	dec := marshal.NewDec(buf[DirentNameLen : DirentNameLen+8+8+4])
	d.posStart = dec.GetInt()
	d.length = dec.GetInt()
	d.flags = dec.GetInt32()
	return d
}

// isErasedSlot implements the post-erase sentinel: a slot is empty
// if its first 4 bytes read back as 0xFFFFFFFF. This is the check
// Iterate uses; read_dirent uses the complementary name[0]=='\0'
// check instead (isEmptyName below). Both must be honored to
// round-trip correctly.
func isErasedSlot(raw []byte) bool {
	return binary.LittleEndian.Uint32(raw[:4]) == 0xFFFFFFFF
}

func isEmptyName(d *dirEntry) bool {
	return len(d.name) == 0
}

// Name returns the dirent's recorded name. Exported so callers outside
// this package (e.g. cmd/dfsutil's ls) can read entries yielded by
// DirIter without reaching into an unexported field.
func (d *dirEntry) Name() string { return d.name }

// Length returns the dirent's recorded file length.
func (d *dirEntry) Length() uint64 { return d.length }

// readDirentRaw reads the raw bytes of dirent N directly — metadata
// reads bypass the buffered-rewrite engine; only writes
// go through it.
func (m *Mount) readDirentRaw(inum uint32) ([]byte, error) {
	buf := make([]byte, DirentSize)
	if err := m.dev.ReadAligned(direntOffset(inum), buf); err != nil {
		return nil, wrapIOErr("readDirent", err)
	}
	return buf, nil
}

// readDirent returns the "not found" sentinel (KindNOENT) when the
// slot's name is empty.
func (m *Mount) readDirent(inum uint32) (*dirEntry, error) {
	defer m.stats.read.Record(time.Now())
	raw, err := m.readDirentRaw(inum)
	if err != nil {
		return nil, err
	}
	if isErasedSlot(raw) {
		return nil, newErr("readDirent", KindNOENT)
	}
	d := decodeDirEntry(raw)
	if isEmptyName(d) {
		return nil, newErr("readDirent", KindNOENT)
	}
	return d, nil
}

func (m *Mount) writeDirent(inum uint32, d *dirEntry) error {
	return m.bufferedWrite(direntOffset(inum), encodeDirEntry(d))
}

// inoFromPath is ino_from_path: a linear scan of slots
// [0, DFSInodesMax+1) (root plus every slot Create can fill),
// returning the first slot whose name matches.
// No caching; cost is O(DFSInodesMax) per lookup,
// accepted because the table is small.
func (m *Mount) inoFromPath(name string) (uint32, error) {
	for n := uint32(0); n < m.sb.maxInodeCount; n++ {
		raw, err := m.readDirentRaw(n)
		if err != nil {
			return 0, err
		}
		if isErasedSlot(raw) {
			continue
		}
		d := decodeDirEntry(raw)
		if isEmptyName(d) {
			continue
		}
		if d.name == name {
			return n, nil
		}
	}
	return 0, newErr("inoFromPath", KindNOENT)
}

// DirIter walks dirents from an opaque cursor, skipping inode 0 (the
// root itself) and terminating when the scan reaches the parent's
// length. A slot is "present" iff its first 4 bytes
// are not 0xFFFFFFFF.
type DirIter struct {
	m     *Mount
	idx   uint32
	limit uint32
}

// Iterate builds a cursor over parentInum's directory (root only, inode
// 0, since DFS is flat).
func (m *Mount) Iterate(parentInum uint32) (*DirIter, error) {
	parent, err := m.readDirent(parentInum)
	if err != nil {
		return nil, err
	}
	return &DirIter{m: m, idx: 1, limit: uint32(parent.length)}, nil
}

// Next yields the next present entry, or ok=false once the cursor has
// reached the parent's recorded length.
func (it *DirIter) Next() (inum uint32, entry *dirEntry, ok bool, err error) {
	defer it.m.stats.iterate.Record(time.Now())
	for it.idx < it.limit {
		n := it.idx
		it.idx++
		raw, rerr := it.m.readDirentRaw(n)
		if rerr != nil {
			return 0, nil, false, rerr
		}
		if isErasedSlot(raw) {
			continue
		}
		d := decodeDirEntry(raw)
		if isEmptyName(d) {
			continue
		}
		return n, d, true, nil
	}
	return 0, nil, false, nil
}
