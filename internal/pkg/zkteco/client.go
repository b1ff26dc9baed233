package zkteco

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
)

// Client is a low-level connection to one time-clock unit. It is not safe for
// concurrent use; the gateway serializes access to it.
type Client struct {
	addr    string
	timeout time.Duration

	conn    net.Conn
	session uint16
	replyID uint16
}

// NewClient prepares a client for the given device address. No I/O happens
// until Connect.
func NewClient(addr string, timeout time.Duration) *Client {
	return &Client{addr: addr, timeout: timeout}
}

// Connect dials the device and performs the session handshake.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.replyID = 0

	resp, err := c.roundTrip(ctx, cmdConnect, nil)
	if err != nil {
		c.close()
		return fmt.Errorf("handshake: %w", err)
	}
	if resp.command != cmdAckOK {
		c.close()
		if resp.command == cmdAckUnauth {
			return fmt.Errorf("handshake: device requires comm key")
		}
		return fmt.Errorf("handshake: unexpected reply %d", resp.command)
	}
	c.session = resp.session
	return nil
}

// Disconnect sends the exit command and closes the socket. Safe to call when
// not connected.
func (c *Client) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	_, _ = c.roundTrip(ctx, cmdExit, nil)
	return c.close()
}

// GetDeviceInfo probes the device for version and capacity counters.
func (c *Client) GetDeviceInfo(ctx context.Context) (device.Info, error) {
	if c.conn == nil {
		return device.Info{}, device.ErrNotConnected
	}

	ver, err := c.roundTrip(ctx, cmdVersion, nil)
	if err != nil {
		return device.Info{}, fmt.Errorf("version probe: %w", err)
	}

	serial, _ := c.readOption(ctx, "~SerialNumber")
	model, _ := c.readOption(ctx, "~DeviceName")

	info := device.Info{
		SerialNumber:    serial,
		Model:           model,
		FirmwareVersion: cstr(ver.data),
	}

	sizes, err := c.roundTrip(ctx, cmdGetFreeSizes, nil)
	if err != nil {
		return device.Info{}, fmt.Errorf("free sizes probe: %w", err)
	}
	// The sizes block is an array of u32 counters; users at index 4,
	// attendance records at index 8.
	if len(sizes.data) >= 36 {
		info.UserCount = int(binary.LittleEndian.Uint32(sizes.data[16:]))
		info.RecordCount = int(binary.LittleEndian.Uint32(sizes.data[32:]))
	}
	return info, nil
}

// GetUsers downloads the enrolled user table.
func (c *Client) GetUsers(ctx context.Context) ([]device.User, error) {
	if c.conn == nil {
		return nil, device.ErrNotConnected
	}

	// Request the whole user table as a bulk transfer.
	req := make([]byte, 11)
	req[0] = 0x01 // FCT_USER
	data, err := c.readBulk(ctx, cmdUserTempRRQ, req)
	if err != nil {
		return nil, fmt.Errorf("user table: %w", err)
	}

	users := make([]device.User, 0, len(data)/userRecordSize)
	for off := 0; off+userRecordSize <= len(data); off += userRecordSize {
		row := data[off : off+userRecordSize]
		u := device.User{
			Privilege:    int(row[2]),
			Name:         cstr(row[11:35]),
			CardNumber:   fmt.Sprintf("%d", binary.LittleEndian.Uint32(row[35:39])),
			DeviceUserID: cstr(row[48:57]),
		}
		if u.DeviceUserID == "" {
			u.DeviceUserID = fmt.Sprintf("%d", binary.LittleEndian.Uint16(row[0:2]))
		}
		users = append(users, u)
	}
	return users, nil
}

// GetAttendanceLogs downloads the attendance buffer and returns punches inside
// [from, to]. The device cannot filter server-side; filtering happens here.
func (c *Client) GetAttendanceLogs(ctx context.Context, from, to time.Time) ([]device.RawLogEntry, error) {
	if c.conn == nil {
		return nil, device.ErrNotConnected
	}

	data, err := c.readBulk(ctx, cmdAttLogRRQ, nil)
	if err != nil {
		return nil, fmt.Errorf("attendance buffer: %w", err)
	}

	var entries []device.RawLogEntry
	for off := 0; off+attRecordSize <= len(data); off += attRecordSize {
		row := data[off : off+attRecordSize]
		userID := cstr(row[2:26])
		rawTS := binary.LittleEndian.Uint32(row[27:31])
		ts := decodeTime(rawTS)
		if ts.Before(from) || ts.After(to) {
			continue
		}
		entries = append(entries, device.RawLogEntry{
			DeviceUserID: strings.TrimSpace(userID),
			// The device assigns no explicit transaction id; the buffer
			// position plus packed timestamp is stable until the log is
			// cleared and unique per punch.
			TransactionID: fmt.Sprintf("%s-%d", strings.TrimSpace(userID), rawTS),
			Timestamp:     ts,
			EventState:    int(row[26]),
			EventType:     int(row[31]),
		})
	}
	return entries, nil
}

// readOption fetches one named device option string.
func (c *Client) readOption(ctx context.Context, name string) (string, error) {
	resp, err := c.roundTrip(ctx, cmdOptionsRRQ, append([]byte(name), 0))
	if err != nil {
		return "", err
	}
	val := cstr(resp.data)
	if i := strings.IndexByte(val, '='); i >= 0 {
		val = val[i+1:]
	}
	return strings.TrimSpace(val), nil
}

// readBulk issues a read command and drains the prepare/data/free-data
// transfer sequence the device uses for large payloads.
func (c *Client) readBulk(ctx context.Context, cmd uint16, payload []byte) ([]byte, error) {
	resp, err := c.roundTrip(ctx, cmd, payload)
	if err != nil {
		return nil, err
	}

	switch resp.command {
	case cmdAckOK:
		// Small payloads arrive inline.
		return resp.data, nil
	case cmdPrepareData:
		// fall through to the chunked transfer below
	default:
		return nil, fmt.Errorf("unexpected reply %d", resp.command)
	}

	if len(resp.data) < 4 {
		return nil, fmt.Errorf("malformed prepare-data reply: %d bytes", len(resp.data))
	}
	total := int(binary.LittleEndian.Uint32(resp.data[0:4]))
	buf := make([]byte, 0, total)
	for len(buf) < total {
		chunk, err := c.readPacket(ctx)
		if err != nil {
			return nil, err
		}
		switch chunk.command {
		case cmdData:
			buf = append(buf, chunk.data...)
		case cmdFreeData, cmdAckOK:
			return buf, nil
		default:
			return nil, fmt.Errorf("unexpected transfer reply %d", chunk.command)
		}
	}
	// Consume the trailing free-data acknowledgement if there is one.
	_, _ = c.readPacket(ctx)
	return buf, nil
}

func (c *Client) roundTrip(ctx context.Context, cmd uint16, data []byte) (packet, error) {
	c.replyID++
	out := packet{command: cmd, session: c.session, reply: c.replyID, data: data}

	if err := c.setDeadline(ctx); err != nil {
		return packet{}, err
	}
	if _, err := c.conn.Write(out.encode()); err != nil {
		return packet{}, fmt.Errorf("write: %w", err)
	}
	return c.readPacket(ctx)
}

func (c *Client) readPacket(ctx context.Context) (packet, error) {
	if err := c.setDeadline(ctx); err != nil {
		return packet{}, err
	}

	head := make([]byte, 8)
	if _, err := io.ReadFull(c.conn, head); err != nil {
		return packet{}, fmt.Errorf("read header: %w", err)
	}
	if string(head[:4]) != string(tcpMagic) {
		return packet{}, fmt.Errorf("bad frame magic %x", head[:4])
	}
	size := binary.LittleEndian.Uint32(head[4:])
	if size > 1<<20 {
		return packet{}, fmt.Errorf("frame too large (%d bytes)", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return packet{}, fmt.Errorf("read payload: %w", err)
	}
	return decodePacket(payload)
}

// setDeadline applies the shorter of the ctx deadline and the per-operation
// timeout to the socket.
func (c *Client) setDeadline(ctx context.Context) error {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return c.conn.SetDeadline(deadline)
}

func (c *Client) close() error {
	err := c.conn.Close()
	c.conn = nil
	c.session = 0
	return err
}
