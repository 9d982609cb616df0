package dfs

import "time"

// Inode is the in-memory handle to an open DFS file. PosStart is an
// opaque byte offset into the flash extent, not a pointer.
type Inode struct {
	Ino      uint32
	PosStart uint64
	Length   uint64
}

// Create allocates a fresh inode for name. It reloads the superblock,
// fails with KindNOMEM once InodeCount reaches MaxInodeCount, and
// reserves exactly MaxLen bytes for the new file's extent regardless
// of how much of it is ever written.
func (m *Mount) Create(name string, flags uint32) (*Inode, error) {
	defer m.stats.create.Record(time.Now())

	sb, err := m.readSbInfo()
	if err != nil {
		return nil, err
	}
	if sb.inodeCount >= sb.maxInodeCount {
		return nil, newErr("Create", KindNOMEM)
	}

	inum := sb.inodeCount
	d := &dirEntry{
		name:     name,
		posStart: sb.freeSpace,
		length:   0,
		flags:    flags,
	}
	if err := m.writeDirent(inum, d); err != nil {
		return nil, err
	}

	sb.inodeCount++
	sb.freeSpace += uint64(sb.maxLen)
	if err := m.writeSbInfo(sb); err != nil {
		return nil, err
	}

	return &Inode{Ino: inum, PosStart: d.posStart, Length: 0}, nil
}

// Truncate is grow-only: it rejects new_len > max_len, no-ops when
// new_len == current length, and otherwise patches the dirent's len
// field.
func (m *Mount) Truncate(inum uint32, newLen uint64) error {
	defer m.stats.truncate.Record(time.Now())

	if newLen > uint64(m.sb.maxLen) {
		return newErr("Truncate", KindINVAL)
	}
	d, err := m.readDirent(inum)
	if err != nil {
		return err
	}
	if newLen < d.length {
		return newErr("Truncate", KindINVAL)
	}
	if newLen == d.length {
		return nil
	}
	d.length = newLen
	return m.writeDirent(inum, d)
}

// Read clips size to min(size, fileLength-filePos) and reads directly
// from the flash extent — reads bypass the buffered-rewrite engine
// entirely.
func (m *Mount) Read(ip *Inode, filePos uint64, size uint64) ([]byte, error) {
	defer m.stats.read.Record(time.Now())

	if filePos > ip.Length {
		return nil, newErr("Read", KindINVAL)
	}
	clipped := ip.Length - filePos
	if size < clipped {
		clipped = size
	}

	buf := make([]byte, clipped)
	if err := m.dev.ReadAligned(ip.PosStart+filePos, buf); err != nil {
		return nil, wrapIOErr("Read", err)
	}
	return buf, nil
}

// Write clips size to min(size, max_len-filePos) and routes the
// payload through the buffered-rewrite engine at pos_start+filePos.
// The file's len field is not automatically extended — a caller that
// needs length tracking must issue a subsequent Truncate.
func (m *Mount) Write(ip *Inode, filePos uint64, data []byte) (int, error) {
	defer m.stats.write.Record(time.Now())

	if filePos > uint64(m.sb.maxLen) {
		return 0, newErr("Write", KindINVAL)
	}
	room := uint64(m.sb.maxLen) - filePos
	clipped := uint64(len(data))
	if clipped > room {
		clipped = room
	}
	if clipped == 0 {
		return 0, newErr("Write", KindINVAL)
	}

	if err := m.bufferedWrite(ip.PosStart+filePos, data[:clipped]); err != nil {
		return 0, err
	}
	return int(clipped), nil
}
