// Package ddc performs the minimal DDC/CI exchange used to confirm a
// monitor actually answers on a bus. Full feature get/set lives with the
// callers of this daemon; the watch engine only needs a yes/no probe.
package ddc

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrDisconnected means the device is no longer present. Terminal
	// for a probe; the display is treated as removed.
	ErrDisconnected = errors.New("ddc: display disconnected")

	// ErrCommunicationFailed means the exchange failed but the device
	// may still be there. Probes are retried.
	ErrCommunicationFailed = errors.New("ddc: communication failed")
)

const (
	// slaveAddr is the DDC/CI slave address.
	slaveAddr = 0x37

	// i2cSlaveIoctl is the I2C_SLAVE request from linux/i2c-dev.h.
	i2cSlaveIoctl = 0x0703

	// replyDelay is the mandated wait between request and reply.
	replyDelay = 40 * time.Millisecond
)

// Checker confirms DDC communication with the monitor on a bus.
type Checker interface {
	Confirm(busno int) error
}

// BusChecker probes through the kernel i2c-dev interface.
type BusChecker struct {
	// DevRoot is the device node directory, normally "/dev".
	DevRoot string
}

// NewBusChecker returns a checker over the standard device directory.
func NewBusChecker() *BusChecker {
	return &BusChecker{DevRoot: "/dev"}
}

// Confirm sends a Get VCP request for the luminance feature and waits
// for any well-formed reply. The reply content is irrelevant; a monitor
// that answers at the DDC slave address has working DDC.
func (c *BusChecker) Confirm(busno int) error {
	path := c.DevRoot + "/i2c-" + strconv.Itoa(busno)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENXIO) || errors.Is(err, unix.ENODEV) {
			return fmt.Errorf("%w: %s: %v", ErrDisconnected, path, err)
		}
		return fmt.Errorf("%w: open %s: %v", ErrCommunicationFailed, path, err)
	}
	defer unix.Close(fd)

	if err := unix.IoctlSetInt(fd, i2cSlaveIoctl, slaveAddr); err != nil {
		return fmt.Errorf("%w: set slave address: %v", ErrCommunicationFailed, err)
	}

	// Get VCP Feature request for feature 0x10 (luminance):
	// source addr, length | 0x80, opcode, feature, checksum.
	req := []byte{0x51, 0x82, 0x01, 0x10, 0x00}
	req[4] = checksum(slaveAddr<<1, req[:4])

	if _, err := unix.Write(fd, req); err != nil {
		return classifyIOError(err)
	}

	time.Sleep(replyDelay)

	reply := make([]byte, 12)
	n, err := unix.Read(fd, reply)
	if err != nil {
		return classifyIOError(err)
	}
	// A reply starts with the source address 0x6e and a length byte
	// with the protocol flag set.
	if n < 2 || reply[0] != 0x6e || reply[1]&0x80 == 0 {
		return fmt.Errorf("%w: malformed reply", ErrCommunicationFailed)
	}
	return nil
}

// classifyIOError maps kernel errnos onto the probe error taxonomy.
func classifyIOError(err error) error {
	if errors.Is(err, unix.ENXIO) || errors.Is(err, unix.ENODEV) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return fmt.Errorf("%w: %v", ErrCommunicationFailed, err)
}

// checksum is the DDC/CI xor checksum seeded with the destination
// address.
func checksum(seed byte, data []byte) byte {
	sum := seed
	for _, b := range data {
		sum ^= b
	}
	return sum
}
