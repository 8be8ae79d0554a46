// Package stdio implements the three always-open standard streams
// (spec §4.F), grounded on `original_source/os/src/fs/stdio.rs`.
package stdio

import (
	"rvkernel/src/defs"
	"rvkernel/src/fdops"
	"rvkernel/src/sbi"
)

/// Yield gives the scheduler a turn while Stdin busy-waits for a
/// character; cmd/kernel installs proc.YieldCurrent here at boot, the
/// same seam pipe.Yield uses to avoid an import cycle.
var Yield = func() {}

// Stdin is the console input stream.
type Stdin struct{}

func (Stdin) Readable() bool { return true }
func (Stdin) Writable() bool { return false }

/// Read busy-waits on sbi.ConsoleGetchar for exactly one byte, yielding
/// between polls, matching rCore's Stdin::read loop.
func (Stdin) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	for {
		ch, ok := sbi.ConsoleGetchar()
		if !ok {
			Yield()
			continue
		}
		n, err := dst.Uiowrite([]byte{ch})
		return n, err
	}
}

func (Stdin) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

func (Stdin) Close() defs.Err_t  { return 0 }
func (Stdin) Reopen() defs.Err_t { return 0 }

// Stdout is the console output stream.
type Stdout struct{}

func (Stdout) Readable() bool { return false }
func (Stdout) Writable() bool { return true }

func (Stdout) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

/// Write drains src one byte at a time to the SBI console, matching
/// rCore's Stdout::write (which writes through the same global console
/// lock print! uses).
func (Stdout) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return writeConsole(src)
}

func (Stdout) Close() defs.Err_t  { return 0 }
func (Stdout) Reopen() defs.Err_t { return 0 }

// Stderr behaves identically to Stdout; the teacher's original likewise
// routes both through the same console print path.
type Stderr struct{}

func (Stderr) Readable() bool { return false }
func (Stderr) Writable() bool { return true }

func (Stderr) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

func (Stderr) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return writeConsole(src)
}

func (Stderr) Close() defs.Err_t  { return 0 }
func (Stderr) Reopen() defs.Err_t { return 0 }

/// ReadLine busy-waits on the console a byte at a time until a newline or
/// maxLen bytes, running the accumulated raw bytes through
/// sbi.ScrubConsoleInput before returning, so a misbehaving terminal's
/// malformed bytes never reach a Go string unchecked. Nothing outside
/// this package's tests calls it.
func ReadLine(maxLen int) string {
	var raw []byte
	for len(raw) < maxLen {
		ch, ok := sbi.ConsoleGetchar()
		if !ok {
			Yield()
			continue
		}
		if ch == '\n' || ch == '\r' {
			break
		}
		raw = append(raw, ch)
	}
	return sbi.ScrubConsoleInput(raw)
}

func writeConsole(src fdops.Userio_i) (int, defs.Err_t) {
	var one [1]byte
	total := 0
	for src.Remain() > 0 {
		n, err := src.Uioread(one[:])
		if err != 0 {
			return total, err
		}
		if n == 0 {
			break
		}
		sbi.ConsolePutchar(one[0])
		total += n
	}
	return total, 0
}
