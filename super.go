package dfs

import (
	"github.com/tchajed/marshal"
)

// dfsMagic is the two-byte on-disk format signature.
var dfsMagic = [2]byte{0x0D, 0xF5}

// SbInfoSize is the on-disk size of the superblock record, sized
// generously above its encoded field total to leave headroom for
// future fields without shifting every other offset.
const SbInfoSize = 32

// sbInfo is the on-disk superblock, stored at flash
// offset 0.
type sbInfo struct {
	magic         [2]byte
	inodeCount    uint32 // next free inode index; root occupies 0
	maxInodeCount uint32 // DFSInodesMax + 1
	maxLen        uint32 // per-file capacity in bytes
	buffBk        uint64 // scratch-block identity (flash-scratch mode only)
	freeSpace     uint64 // byte offset of next unused data extent
}

func (sb *sbInfo) hasValidMagic() bool {
	return sb.magic == dfsMagic
}

func encodeSbInfo(sb *sbInfo) []byte {
	enc := marshal.NewEnc(SbInfoSize - 2)
	enc.PutInt32(sb.inodeCount)
	enc.PutInt32(sb.maxInodeCount)
	enc.PutInt32(sb.maxLen)
	enc.PutInt(sb.buffBk)
	enc.PutInt(sb.freeSpace)
	rest := enc.Finish()

	buf := make([]byte, SbInfoSize)
	buf[0], buf[1] = sb.magic[0], sb.magic[1]
	copy(buf[2:], rest)
	return buf
}

func decodeSbInfo(buf []byte) *sbInfo {
	sb := &sbInfo{}
	sb.magic[0], sb.magic[1] = buf[0], buf[1]
	dec := marshal.NewDec(buf[2:SbInfoSize])
	sb.inodeCount = dec.GetInt32()
	sb.maxInodeCount = dec.GetInt32()
	sb.maxLen = dec.GetInt32()
	sb.buffBk = dec.GetInt()
	sb.freeSpace = dec.GetInt()
	return sb
}

// readSbInfo reads the superblock directly (no staging needed — reads
// never go through the buffered-rewrite engine).
func (m *Mount) readSbInfo() (*sbInfo, error) {
	buf := make([]byte, SbInfoSize)
	if err := m.dev.ReadAligned(0, buf); err != nil {
		return nil, wrapIOErr("readSbInfo", err)
	}
	return decodeSbInfo(buf), nil
}

// writeSbInfo writes the superblock through the buffered-rewrite
// engine at pos=0.
func (m *Mount) writeSbInfo(sb *sbInfo) error {
	if err := m.bufferedWrite(0, encodeSbInfo(sb)); err != nil {
		return err
	}
	m.sb = sb
	return nil
}
