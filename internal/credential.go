package internal

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// DefaultCredentialCapacity matches the classic 256 byte password buffer
const DefaultCredentialCapacity = 256

// ErrMemoryLock is returned when the password buffer cannot be kept out of swap
var ErrMemoryLock = errors.New("could not lock password memory, check RLIMIT_MEMLOCK")

// Credential holds the password being typed in a fixed-size, mlock'd region.
// One byte of capacity is reserved for the terminator handed to PAM.
type Credential struct {
	buf *memguard.LockedBuffer
	n   int
}

// NewCredential allocates a locked buffer of the given capacity
func NewCredential(capacity int) (cred *Credential, err error) {
	if capacity < 2 {
		return nil, fmt.Errorf("credential capacity %d too small", capacity)
	}

	// memguard panics when mlock is refused
	defer func() {
		if r := recover(); r != nil {
			cred = nil
			err = fmt.Errorf("%w: %v (%s)", ErrMemoryLock, r, memlockLimit())
		}
	}()

	buf := memguard.NewBuffer(capacity)
	if buf.Size() != capacity {
		buf.Destroy()
		return nil, fmt.Errorf("%w (%s)", ErrMemoryLock, memlockLimit())
	}

	c := &Credential{buf: buf}
	c.Wipe()
	return c, nil
}

// memlockLimit describes the current RLIMIT_MEMLOCK for error messages
func memlockLimit() string {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rl); err != nil {
		return "memlock limit unknown"
	}
	return fmt.Sprintf("memlock limit %d bytes", rl.Cur)
}

// Append adds one byte. It returns false and drops the byte when the buffer is full.
func (c *Credential) Append(b byte) bool {
	if !c.alive() || c.n >= c.buf.Size()-1 {
		return false
	}
	c.buf.Bytes()[c.n] = b
	c.n++
	return true
}

// Backspace removes the last byte. It returns false when the buffer is empty.
func (c *Credential) Backspace() bool {
	if c.n == 0 {
		return false
	}
	c.n--
	return true
}

// Len returns the number of bytes typed
func (c *Credential) Len() int {
	return c.n
}

// Cap returns the size of the backing storage, terminator included
func (c *Credential) Cap() int {
	if !c.alive() {
		return 0
	}
	return c.buf.Size()
}

// Snapshot terminates the contents in place and returns a view of them including
// the terminator. The view aliases locked memory and is only valid until the next
// mutation; it returns nil once the buffer is destroyed.
func (c *Credential) Snapshot() []byte {
	if !c.alive() {
		return nil
	}
	data := c.buf.Bytes()
	data[c.n] = 0
	return data[:c.n+1]
}

// Wipe overwrites the whole storage with random bytes and empties the buffer
func (c *Credential) Wipe() {
	if c.alive() {
		c.buf.Scramble()
	}
	c.n = 0
}

// Destroy wipes the buffer and releases the locked pages
func (c *Credential) Destroy() {
	c.Wipe()
	if c.buf != nil {
		c.buf.Destroy()
	}
}

func (c *Credential) alive() bool {
	return c != nil && c.buf != nil && c.buf.IsAlive()
}

// storage exposes every byte of the backing region
func (c *Credential) storage() []byte {
	if !c.alive() {
		return nil
	}
	return c.buf.Bytes()
}
