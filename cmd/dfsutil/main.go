package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rodaine/table"

	"github.com/dumbfs/dfs"
)

const (
	defaultPageSize  = 4096
	defaultBlockSize = 4 * 4096
	defaultBlocks    = 64
	defaultMaxLen    = 16 * 4096
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: dfsutil [-disk path] [-ram-scratch] [-debug level] <command> [args...]\n")
	fmt.Fprintf(os.Stderr, "commands:\n")
	fmt.Fprintf(os.Stderr, "  format\n")
	fmt.Fprintf(os.Stderr, "  create <name>\n")
	fmt.Fprintf(os.Stderr, "  write <name> <offset> <data>\n")
	fmt.Fprintf(os.Stderr, "  read <name> <offset> <size>\n")
	fmt.Fprintf(os.Stderr, "  truncate <name> <newlen>\n")
	fmt.Fprintf(os.Stderr, "  ls\n")
	fmt.Fprintf(os.Stderr, "  stats\n")
	os.Exit(2)
}

func openDevice(diskfile string, geom dfs.Geometry) (dfs.Device, error) {
	if diskfile == "" {
		return dfs.NewMemDevice(geom)
	}
	return dfs.NewFileDevice(diskfile, geom)
}

func main() {
	var diskfile string
	flag.StringVar(&diskfile, "disk", "", "disk image path (empty for an in-memory device)")

	var useRAMScratch bool
	flag.BoolVar(&useRAMScratch, "ram-scratch", true, "use a RAM scratch buffer instead of a reserved flash block")

	var blocks uint64
	flag.Uint64Var(&blocks, "blocks", defaultBlocks, "number of erase blocks")

	flag.IntVar(&dfs.Debug, "debug", 0, "debug level (higher is more verbose)")

	var dumpStats bool
	flag.BoolVar(&dumpStats, "stats", false, "print operation stats before exiting")

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	geom := dfs.Geometry{PageSize: defaultPageSize, BlockSize: defaultBlockSize, Blocks: blocks}
	opts := dfs.Options{
		PageSize:      geom.PageSize,
		BlockSize:     geom.BlockSize,
		MinFileSize:   defaultMaxLen,
		UseRAMScratch: useRAMScratch,
		DebugLevel:    dfs.Debug,
	}

	dev, err := openDevice(diskfile, geom)
	if err != nil {
		fatal("open device", err)
	}

	cmd := args[0]
	rest := args[1:]

	if cmd == "format" {
		if _, err := dfs.Format(dev, opts); err != nil {
			fatal("format", err)
		}
		return
	}

	m, err := dfs.MountFS(dev, opts)
	if err != nil {
		fatal("mount", err)
	}

	switch cmd {
	case "create":
		cmdCreate(m, rest)
	case "write":
		cmdWrite(m, rest)
	case "read":
		cmdRead(m, rest)
	case "truncate":
		cmdTruncate(m, rest)
	case "ls":
		cmdLs(m, rest)
	case "stats":
		m.Stats().WriteStats(os.Stdout)
		return
	default:
		usage()
	}

	if dumpStats {
		m.Stats().WriteStats(os.Stderr)
	}
}

func cmdCreate(m *dfs.Mount, args []string) {
	if len(args) != 1 {
		usage()
	}
	ip, err := m.Create(args[0], dfs.FlagRegular)
	if err != nil {
		fatal("create", err)
	}
	fmt.Printf("created %s ino=%d\n", args[0], ip.Ino)
}

func cmdWrite(m *dfs.Mount, args []string) {
	if len(args) != 3 {
		usage()
	}
	ip := lookup(m, args[0])
	off := mustUint(args[1])
	n, err := m.Write(ip, off, []byte(args[2]))
	if err != nil {
		fatal("write", err)
	}
	if err := m.Truncate(ip.Ino, off+uint64(n)); err != nil {
		fatal("truncate", err)
	}
	fmt.Printf("wrote %d bytes\n", n)
}

func cmdRead(m *dfs.Mount, args []string) {
	if len(args) != 3 {
		usage()
	}
	ip := lookup(m, args[0])
	off := mustUint(args[1])
	size := mustUint(args[2])
	buf, err := m.Read(ip, off, size)
	if err != nil {
		fatal("read", err)
	}
	os.Stdout.Write(buf)
	fmt.Println()
}

func cmdTruncate(m *dfs.Mount, args []string) {
	if len(args) != 2 {
		usage()
	}
	ip := lookup(m, args[0])
	newLen := mustUint(args[1])
	if err := m.Truncate(ip.Ino, newLen); err != nil {
		fatal("truncate", err)
	}
}

func cmdLs(m *dfs.Mount, args []string) {
	it, err := m.Iterate(0)
	if err != nil {
		fatal("ls", err)
	}
	tbl := table.New("ino", "name", "len")
	for {
		inum, entry, ok, err := it.Next()
		if err != nil {
			fatal("ls", err)
		}
		if !ok {
			break
		}
		tbl.AddRow(inum, entry.Name(), entry.Length())
	}
	tbl.WithWriter(os.Stdout).Print()
}

func lookup(m *dfs.Mount, name string) *dfs.Inode {
	ip, err := m.Open(name)
	if err != nil {
		fatal("lookup "+name, err)
	}
	return ip
}

func mustUint(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fatal("parse "+s, err)
	}
	return v
}

func fatal(op string, err error) {
	fmt.Fprintf(os.Stderr, "dfsutil: %s: %v\n", op, err)
	os.Exit(1)
}
