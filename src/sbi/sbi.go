// Package sbi wraps the handful of SBI (Supervisor Binary Interface)
// calls the kernel needs from OpenSBI firmware running underneath it in
// M-mode: console I/O, the timer, and shutdown (spec §6 external
// interfaces). Extension/function IDs are the legacy SBI v0.1 console
// calls plus the Timer and System Reset extensions, grounded on
// `other_examples`'s rv64 SBI emulation (`SBIExtLegacyPutchar` etc.) and
// rCore's `os/src/sbi.rs`.
package sbi

import (
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	extLegacyPutchar = 0x01
	extLegacyGetchar = 0x02
	extTimer         = 0x54494D45 // "TIME"
	extSRST          = 0x53525354 // "SRST"

	fnTimerSetTimer = 0
	fnSRSTReset     = 0
)

// sbiCall issues an ecall trapping to M-mode with the given extension and
// function id and up to three arguments, returning (error, value) per the
// SBI calling convention (a0/a1 on return). The real implementation is a
// few lines of RISC-V assembly (`ecall` with a7=ext, a6=fid, a0..a2=args);
// kept as a seam here so the rest of the package, and its tests, don't
// depend on running under an actual hart.
var sbiCall = func(ext, fid uint64, arg0, arg1, arg2 uint64) (int64, uint64) {
	panic("sbi: sbiCall has no assembly backing in this build")
}

/// SetSbiCall installs the real ecall-backed implementation at boot, or a
/// stub from another package's tests; the same seam-installation pattern
/// as trap.SetTrapReturnFn and proc.SetTrapReturn.
func SetSbiCall(fn func(ext, fid uint64, arg0, arg1, arg2 uint64) (int64, uint64)) {
	sbiCall = fn
}

/// ConsolePutchar writes one byte to the SBI debug console.
func ConsolePutchar(ch byte) {
	sbiCall(extLegacyPutchar, 0, uint64(ch), 0, 0)
}

/// ConsoleGetchar polls for one input byte; returns (0, false) if no
/// character is pending, matching the legacy SBI getchar's -1-means-empty
/// convention translated into a Go ok-bool.
func ConsoleGetchar() (byte, bool) {
	_, val := sbiCall(extLegacyGetchar, 0, 0, 0, 0)
	if int64(val) < 0 {
		return 0, false
	}
	return byte(val), true
}

/// SetTimer arms the next supervisor timer interrupt for absolute time
/// stval (in timer ticks), per the Timer extension.
func SetTimer(stval uint64) {
	sbiCall(extTimer, fnTimerSetTimer, stval, 0, 0)
}

/// Shutdown powers the machine off via the System Reset extension.
/// failure selects a shutdown reason code distinguishing a kernel panic
/// from a clean exit, useful for automated test harnesses watching QEMU's
/// exit status.
func Shutdown(failure bool) {
	reason := uint64(0)
	if failure {
		reason = 1
	}
	sbiCall(extSRST, fnSRSTReset, 0 /* shutdown type */, reason, 0)
	panic("sbi: shutdown returned")
}

// utf8Scrubber replaces invalid bytes from a console read with the
// Unicode replacement rune before the byte reaches a Go string, since the
// legacy getchar call hands back raw bytes with no encoding guarantee.
var utf8Scrubber = runes.ReplaceIllFormed()

/// ScrubConsoleInput runs raw console bytes through a UTF-8-validating
/// transform, used by stdio's line-reading helpers so malformed input
/// from a misbehaving terminal never produces an invalid Go string.
func ScrubConsoleInput(raw []byte) string {
	out, _, err := transform.Bytes(utf8Scrubber, raw)
	if err != nil {
		return string(utf8.RuneError)
	}
	return string(out)
}
