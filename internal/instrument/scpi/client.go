// Package scpi drives the instrument over a line-oriented SCPI connection,
// either a TCP socket or a serial port.
package scpi

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Config addresses the instrument.
type Config struct {
	Transport string // "tcp" or "serial"
	Address   string // host:port or serial device path
	Baud      int
	Timeout   time.Duration
}

const defaultTimeout = 5 * time.Second

func dial(ctx context.Context, cfg Config) (io.ReadWriteCloser, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	switch cfg.Transport {
	case "", "tcp":
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Address, err)
		}
		return conn, nil
	case "serial":
		baud := cfg.Baud
		if baud <= 0 {
			baud = 115200
		}
		port, err := serial.OpenPort(&serial.Config{
			Name:        cfg.Address,
			Baud:        baud,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Address, err)
		}
		return port, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// Client sends commands and reads responses. Calls are serialized.
type Client struct {
	mu      sync.Mutex
	rw      io.ReadWriteCloser
	r       *bufio.Reader
	timeout time.Duration
}

// NewClient wraps an open connection.
func NewClient(rw io.ReadWriteCloser, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{rw: rw, r: bufio.NewReader(rw), timeout: timeout}
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

func (c *Client) arm() {
	if d, ok := c.rw.(deadliner); ok {
		_ = d.SetDeadline(time.Now().Add(c.timeout))
	}
}

// Write sends one command line.
func (c *Client) Write(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write([]byte(fmt.Sprintf(format, args...) + "\n"))
}

func (c *Client) write(b []byte) error {
	c.arm()
	if _, err := c.rw.Write(b); err != nil {
		return fmt.Errorf("scpi write: %w", err)
	}
	return nil
}

// Query sends a command and returns the response line without terminator.
func (c *Client) Query(format string, args ...any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.write([]byte(fmt.Sprintf(format, args...) + "\n")); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("scpi read: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteBlock sends header followed by samples as a definite-length block.
func (c *Client) WriteBlock(header string, samples []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := append([]byte(header+" "), EncodeBlock(samples)...)
	return c.write(append(buf, '\n'))
}

// QueryBlock sends a command and decodes the block it returns.
func (c *Client) QueryBlock(format string, args ...any) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.write([]byte(fmt.Sprintf(format, args...) + "\n")); err != nil {
		return nil, err
	}
	data, err := DecodeBlock(c.r)
	if err != nil {
		return nil, err
	}
	// Drop the line terminator.
	if _, err := c.r.ReadString('\n'); err != nil {
		return nil, fmt.Errorf("scpi read: %w", err)
	}
	return data, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rw.Close()
}

// EncodeBlock renders samples as an IEEE 488.2 definite-length block of
// little-endian float32 values: #<digits><length><bytes>.
func EncodeBlock(samples []float64) []byte {
	payload := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(float32(v)))
	}
	length := strconv.Itoa(len(payload))
	out := make([]byte, 0, 2+len(length)+len(payload))
	out = append(out, '#', byte('0'+len(length)))
	out = append(out, length...)
	return append(out, payload...)
}

var errBadBlock = errors.New("scpi: malformed block")

// MaxBlockBytes bounds a block payload, 16M float32 samples.
const MaxBlockBytes = 64 << 20

// DecodeBlock reads one definite-length float32 block from r.
func DecodeBlock(r *bufio.Reader) ([]float64, error) {
	hash, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("scpi read: %w", err)
	}
	if hash != '#' {
		return nil, fmt.Errorf("%w: expected '#', got %q", errBadBlock, hash)
	}
	digit, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("scpi read: %w", err)
	}
	n := int(digit - '0')
	if n < 1 || n > 9 {
		return nil, fmt.Errorf("%w: bad length digit %q", errBadBlock, digit)
	}
	lenBuf := make([]byte, n)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("scpi read: %w", err)
	}
	length, err := strconv.Atoi(string(lenBuf))
	if err != nil || length%4 != 0 {
		return nil, fmt.Errorf("%w: bad length %q", errBadBlock, lenBuf)
	}
	if length > MaxBlockBytes {
		return nil, fmt.Errorf("%w: length %d exceeds %d bytes", errBadBlock, length, MaxBlockBytes)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("scpi read: %w", err)
	}
	out := make([]float64, length/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:])))
	}
	return out, nil
}
