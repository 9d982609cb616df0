package dfs

import (
	"fmt"
	"time"

	"github.com/tchajed/goose/machine/disk"
)

// Geometry describes a flash device's page/block sizing. The real
// flash driver's geometry is "an array of {block_size_count, blocks}
// pairs"; the reference implementations here model a single uniform
// region, the common case worked examples exercise.
type Geometry struct {
	PageSize  uint64
	BlockSize uint64 // must be a multiple of PageSize
	Blocks    uint64 // total erase blocks
}

func (g Geometry) TotalBytes() uint64 { return g.BlockSize * g.Blocks }

func (g Geometry) validate() error {
	if g.PageSize == 0 || g.BlockSize == 0 || g.Blocks == 0 {
		return fmt.Errorf("geometry: page/block/count must be nonzero")
	}
	if g.BlockSize%g.PageSize != 0 {
		return fmt.Errorf("geometry: block_size %d not a multiple of page_size %d", g.BlockSize, g.PageSize)
	}
	return nil
}

// Device is the flash facade DFS treats as an external collaborator
// : erase/read/write/copy at block and byte granularity.
// DFS never assumes a particular backing medium beyond this contract.
type Device interface {
	Geometry() Geometry

	// Erase resets block to its post-erase default (all 0xFF bytes).
	Erase(block uint64) error

	// ReadAligned reads len(dst) bytes starting at byteOff.
	ReadAligned(byteOff uint64, dst []byte) error

	// WriteAligned writes src at byteOff. byteOff must be page-aligned
	// and len(src) a multiple of the page size.
	WriteAligned(byteOff uint64, src []byte) error

	// CopyAligned copies len bytes from srcOff to dstOff within the
	// device (both already-written regions; used to preserve bytes
	// while staging a rewrite).
	CopyAligned(dstOff, srcOff uint64, length uint64) error

	// CopyBlock copies the entire contents of srcBlock onto dstBlock,
	// erasing dstBlock first. Used to publish a staged flash-scratch
	// block.
	CopyBlock(dstBlock, srcBlock uint64) error
}

// diskDevice implements Device on top of a disk.Disk, a
// block-addressed storage abstraction. One flash page corresponds to
// one or more disk.Disk blocks; for the reference implementation we
// keep page size == disk.BlockSize so a page write is exactly one
// disk.Disk block write.
type diskDevice struct {
	d    disk.Disk
	geom Geometry
}

// NewMemDevice builds a RAM-backed Device, the substrate the
// RAM-scratch engine mode and most tests run against.
func NewMemDevice(geom Geometry) (Device, error) {
	if err := geom.validate(); err != nil {
		return nil, err
	}
	if geom.PageSize != disk.BlockSize {
		return nil, fmt.Errorf("geometry: reference device requires page_size == %d", disk.BlockSize)
	}
	pagesPerBlock := geom.BlockSize / geom.PageSize
	d := disk.NewMemDisk(geom.Blocks * pagesPerBlock)
	return &diskDevice{d: d, geom: geom}, nil
}

// NewFileDevice builds a file-backed Device so a filesystem image
// survives across process restarts (remount persistence).
func NewFileDevice(path string, geom Geometry) (Device, error) {
	if err := geom.validate(); err != nil {
		return nil, err
	}
	if geom.PageSize != disk.BlockSize {
		return nil, fmt.Errorf("geometry: reference device requires page_size == %d", disk.BlockSize)
	}
	pagesPerBlock := geom.BlockSize / geom.PageSize
	d, err := disk.NewFileDisk(path, geom.Blocks*pagesPerBlock)
	if err != nil {
		return nil, fmt.Errorf("NewFileDevice: %w", err)
	}
	return &diskDevice{d: d, geom: geom}, nil
}

func (dd *diskDevice) Geometry() Geometry { return dd.geom }

func (dd *diskDevice) pagesPerBlock() uint64 { return dd.geom.BlockSize / dd.geom.PageSize }

func (dd *diskDevice) Erase(block uint64) error {
	if block >= dd.geom.Blocks {
		return fmt.Errorf("Erase: block %d out of range", block)
	}
	blank := make(disk.Block, dd.geom.PageSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	base := block * dd.pagesPerBlock()
	for p := uint64(0); p < dd.pagesPerBlock(); p++ {
		dd.d.Write(base+p, blank)
	}
	return nil
}

func (dd *diskDevice) ReadAligned(byteOff uint64, dst []byte) error {
	if byteOff+uint64(len(dst)) > dd.geom.TotalBytes() {
		return fmt.Errorf("ReadAligned: [%d,%d) out of range", byteOff, byteOff+uint64(len(dst)))
	}
	page := dd.geom.PageSize
	off := byteOff
	n := uint64(0)
	for n < uint64(len(dst)) {
		pageIdx := off / page
		pageOff := off % page
		blk := dd.d.Read(pageIdx)
		take := page - pageOff
		remain := uint64(len(dst)) - n
		if take > remain {
			take = remain
		}
		copy(dst[n:n+take], blk[pageOff:pageOff+take])
		n += take
		off += take
	}
	return nil
}

func (dd *diskDevice) WriteAligned(byteOff uint64, src []byte) error {
	page := dd.geom.PageSize
	if byteOff%page != 0 {
		return fmt.Errorf("WriteAligned: offset %d not page-aligned", byteOff)
	}
	if uint64(len(src))%page != 0 {
		return fmt.Errorf("WriteAligned: length %d not a multiple of page size", len(src))
	}
	if byteOff+uint64(len(src)) > dd.geom.TotalBytes() {
		return fmt.Errorf("WriteAligned: [%d,%d) out of range", byteOff, byteOff+uint64(len(src)))
	}
	pageIdx := byteOff / page
	for n := uint64(0); n < uint64(len(src)); n += page {
		blk := make(disk.Block, page)
		copy(blk, src[n:n+page])
		dd.d.Write(pageIdx+n/page, blk)
	}
	return nil
}

// CopyAligned routes byte-granular copies through an on-stack
// page-sized bounce buffer, since disk.Disk only reads/writes whole
// pages.
func (dd *diskDevice) CopyAligned(dstOff, srcOff uint64, length uint64) error {
	if length == 0 {
		return nil
	}
	var bounce [4096]byte
	page := dd.geom.PageSize
	buf := bounce[:page]
	remaining := length
	src, dst := srcOff, dstOff
	for remaining > 0 {
		chunk := page
		if remaining < chunk {
			chunk = remaining
		}
		if err := dd.ReadAligned(src, buf[:chunk]); err != nil {
			return err
		}
		if err := dd.writeUnaligned(dst, buf[:chunk]); err != nil {
			return err
		}
		src += chunk
		dst += chunk
		remaining -= chunk
	}
	return nil
}

// writeUnaligned supports byte-granular destinations for CopyAligned
// by read-modify-writing the containing page(s). Only used internally
// during staging, never exposed as part of the Device contract.
func (dd *diskDevice) writeUnaligned(byteOff uint64, data []byte) error {
	page := dd.geom.PageSize
	n := uint64(0)
	for n < uint64(len(data)) {
		pageIdx := (byteOff + n) / page
		pageOff := (byteOff + n) % page
		blk := dd.d.Read(pageIdx)
		take := page - pageOff
		remain := uint64(len(data)) - n
		if take > remain {
			take = remain
		}
		copy(blk[pageOff:pageOff+take], data[n:n+take])
		dd.d.Write(pageIdx, blk)
		n += take
	}
	return nil
}

func (dd *diskDevice) CopyBlock(dstBlock, srcBlock uint64) error {
	if err := dd.Erase(dstBlock); err != nil {
		return err
	}
	base := dd.pagesPerBlock()
	for p := uint64(0); p < base; p++ {
		blk := dd.d.Read(srcBlock*base + p)
		dd.d.Write(dstBlock*base+p, blk)
	}
	return nil
}

// instrumentedDevice wraps a Device with per-call latency stats, the
// same decorator shape as a logging proxy wrapping an underlying
// resource: embed the interface, override the methods that need
// instrumentation.
type instrumentedDevice struct {
	Device
	ops *opStats
}

func newInstrumentedDevice(d Device, ops *opStats) Device {
	return &instrumentedDevice{Device: d, ops: ops}
}

func (id *instrumentedDevice) Erase(block uint64) error {
	defer id.ops.erase.Record(time.Now())
	return id.Device.Erase(block)
}

func (id *instrumentedDevice) ReadAligned(byteOff uint64, dst []byte) error {
	defer id.ops.flashRead.Record(time.Now())
	return id.Device.ReadAligned(byteOff, dst)
}

func (id *instrumentedDevice) WriteAligned(byteOff uint64, src []byte) error {
	defer id.ops.flashWrite.Record(time.Now())
	return id.Device.WriteAligned(byteOff, src)
}
