package ddc

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestChecksum(t *testing.T) {
	// 0x6e ^ 0x51 ^ 0x82 ^ 0x01 ^ 0x10 = 0xac
	req := []byte{0x51, 0x82, 0x01, 0x10}
	if got := checksum(0x6e, req); got != 0xac {
		t.Errorf("checksum = %#x, want 0xac", got)
	}
}

func TestClassifyIOError(t *testing.T) {
	if err := classifyIOError(unix.ENXIO); !errors.Is(err, ErrDisconnected) {
		t.Errorf("ENXIO classified as %v, want ErrDisconnected", err)
	}
	if err := classifyIOError(unix.ENODEV); !errors.Is(err, ErrDisconnected) {
		t.Errorf("ENODEV classified as %v, want ErrDisconnected", err)
	}
	if err := classifyIOError(unix.EREMOTEIO); !errors.Is(err, ErrCommunicationFailed) {
		t.Errorf("EREMOTEIO classified as %v, want ErrCommunicationFailed", err)
	}
}

func TestConfirmMissingDevice(t *testing.T) {
	c := &BusChecker{DevRoot: t.TempDir()}
	if err := c.Confirm(200); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Confirm on missing node = %v, want ErrDisconnected", err)
	}
}
