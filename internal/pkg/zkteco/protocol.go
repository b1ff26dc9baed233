package zkteco

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Command codes of the ZK push/pull binary protocol. The device speaks a
// fixed little-endian framing over TCP; this file implements just enough of
// it for info, user and attendance retrieval.
const (
	cmdConnect      uint16 = 1000
	cmdExit         uint16 = 1001
	cmdEnableDevice uint16 = 1002
	cmdAckOK        uint16 = 2000
	cmdAckError     uint16 = 2001
	cmdAckUnauth    uint16 = 2005
	cmdPrepareData  uint16 = 1500
	cmdData         uint16 = 1501
	cmdFreeData     uint16 = 1502
	cmdOptionsRRQ   uint16 = 11
	cmdAttLogRRQ    uint16 = 13
	cmdUserTempRRQ  uint16 = 9
	cmdGetFreeSizes uint16 = 50
	cmdVersion      uint16 = 1100
)

// tcpMagic prefixes every TCP frame.
var tcpMagic = []byte{0x50, 0x50, 0x82, 0x7d}

const (
	headerSize     = 8  // command, checksum, session, reply
	userRecordSize = 72 // one row of the device user table
	attRecordSize  = 40 // one row of the attendance log buffer
)

// packet is one decoded protocol frame.
type packet struct {
	command uint16
	session uint16
	reply   uint16
	data    []byte
}

// encode frames a packet for the wire: magic, payload length, then the
// payload with its checksum filled in.
func (p packet) encode() []byte {
	payload := make([]byte, headerSize+len(p.data))
	binary.LittleEndian.PutUint16(payload[0:], p.command)
	binary.LittleEndian.PutUint16(payload[4:], p.session)
	binary.LittleEndian.PutUint16(payload[6:], p.reply)
	copy(payload[headerSize:], p.data)
	binary.LittleEndian.PutUint16(payload[2:], checksum(payload))

	frame := make([]byte, len(tcpMagic)+4+len(payload))
	copy(frame, tcpMagic)
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(payload)))
	copy(frame[8:], payload)
	return frame
}

func decodePacket(payload []byte) (packet, error) {
	if len(payload) < headerSize {
		return packet{}, fmt.Errorf("zkteco: short payload (%d bytes)", len(payload))
	}
	return packet{
		command: binary.LittleEndian.Uint16(payload[0:]),
		session: binary.LittleEndian.Uint16(payload[4:]),
		reply:   binary.LittleEndian.Uint16(payload[6:]),
		data:    payload[headerSize:],
	}, nil
}

// checksum is the protocol's ones-complement 16-bit sum computed with the
// checksum field itself zeroed.
func checksum(payload []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(payload); i += 2 {
		if i == 2 {
			continue // checksum field
		}
		sum += uint32(binary.LittleEndian.Uint16(payload[i:]))
	}
	if len(payload)%2 == 1 {
		sum += uint32(payload[len(payload)-1])
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(^sum & 0xffff)
}

// decodeTime unpacks the device's packed calendar encoding.
func decodeTime(v uint32) time.Time {
	sec := int(v % 60)
	v /= 60
	min := int(v % 60)
	v /= 60
	hour := int(v % 24)
	v /= 24
	day := int(v%31) + 1
	v /= 31
	month := time.Month(v%12 + 1)
	v /= 12
	year := int(v) + 2000
	return time.Date(year, month, day, hour, min, sec, 0, time.Local)
}

// cstr trims a fixed-width NUL-padded field.
func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
