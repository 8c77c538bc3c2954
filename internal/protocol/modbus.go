package protocol

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/icsim/simcore/pkg/kerrors"
	"github.com/icsim/simcore/pkg/model"
)

// Modbus function codes (spec §6, Modbus Application Protocol v1.1b3).
const (
	fcReadCoils              = 0x01
	fcReadDiscreteInputs     = 0x02
	fcReadHoldingRegisters   = 0x03
	fcReadInputRegisters     = 0x04
	fcWriteSingleCoil        = 0x05
	fcWriteSingleRegister    = 0x06
	fcWriteMultipleCoils     = 0x0F
	fcWriteMultipleRegisters = 0x10
	fcReadDeviceID           = 0x2B
	meiReadDeviceID          = 0x0E

	exceptionBit          = 0x80
	excIllegalFunction    = 0x01
	excIllegalDataAddress = 0x02
	excIllegalDataValue   = 0x03
)

// Count limits per spec §6.
const (
	maxReadCoils      = 2000
	maxReadRegisters  = 125
	maxWriteCoils     = 1968
	maxWriteRegisters = 123
)

// ModbusIdentity is the FC43/MEI14 device-identification response block,
// stored per-listener (DESIGN.md Open Question decision 3) rather than
// process-wide, so a session never observes another device's identity.
type ModbusIdentity struct {
	VendorName    string
	ProductCode   string
	MajorMinorRev string
}

// DefaultModbusIdentity is used when a listener's configuration omits
// an identity block.
func DefaultModbusIdentity() ModbusIdentity {
	return ModbusIdentity{VendorName: "simcore", ProductCode: "icsim-plc", MajorMinorRev: "1.0"}
}

// ModbusServer is a Modbus TCP listener serving one device's mirror.
type ModbusServer struct {
	*baseServer
	unitID      byte
	identity    ModbusIdentity
	readTimeout time.Duration
}

// DefaultModbusReadTimeout is the idle session read timeout (spec §5:
// "Modbus default 30s idle").
const DefaultModbusReadTimeout = 30 * time.Second

// NewModbusServer creates a Modbus TCP listener for device on addr,
// enforcing unitID strictly (Open Question decision 1).
func NewModbusServer(device, addr string, unitID byte, identity ModbusIdentity, sessionCap int, admit AdmitFunc, log *slog.Logger) *ModbusServer {
	m := &ModbusServer{
		unitID:      unitID,
		identity:    identity,
		readTimeout: DefaultModbusReadTimeout,
	}
	m.baseServer = newBaseServer(device, "modbus", addr, NewMirror(), sessionCap, admit, log, m.handleConn)
	return m
}

func (m *ModbusServer) handleConn(conn net.Conn) {
	for {
		conn.SetReadDeadline(time.Now().Add(m.readTimeout))

		header := make([]byte, 7)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		transactionID := binary.BigEndian.Uint16(header[0:2])
		protocolID := binary.BigEndian.Uint16(header[2:4])
		length := binary.BigEndian.Uint16(header[4:6])
		unitID := header[6]

		if protocolID != 0 || length < 1 {
			m.log.Warn("malformed MBAP header, closing session",
				"device", m.device, "err", kerrors.ErrProtocolError)
			return
		}

		pdu := make([]byte, length-1)
		if len(pdu) > 0 {
			if _, err := io.ReadFull(conn, pdu); err != nil {
				return
			}
		}

		if unitID != m.unitID {
			m.log.Warn("modbus unit id mismatch, closing session",
				"device", m.device, "expected_unit", m.unitID, "got_unit", unitID,
				"err", kerrors.ErrProtocolError)
			return
		}

		resp := m.dispatch(pdu)
		frame := encodeMBAP(transactionID, unitID, resp)
		if _, err := conn.Write(frame); err != nil {
			return
		}
	}
}

func encodeMBAP(transactionID uint16, unitID byte, pdu []byte) []byte {
	out := make([]byte, 7+len(pdu))
	binary.BigEndian.PutUint16(out[0:2], transactionID)
	binary.BigEndian.PutUint16(out[2:4], 0)
	binary.BigEndian.PutUint16(out[4:6], uint16(1+len(pdu)))
	out[6] = unitID
	copy(out[7:], pdu)
	return out
}

func exceptionResponse(fc byte, code byte) []byte {
	return []byte{fc | exceptionBit, code}
}

func (m *ModbusServer) dispatch(pdu []byte) []byte {
	if len(pdu) == 0 {
		return exceptionResponse(0, excIllegalFunction)
	}
	fc := pdu[0]
	body := pdu[1:]

	switch fc {
	case fcReadCoils:
		return m.readBits(fc, body, model.Coil)
	case fcReadDiscreteInputs:
		return m.readBits(fc, body, model.DiscreteInput)
	case fcReadHoldingRegisters:
		return m.readRegs(fc, body, model.HoldingRegister)
	case fcReadInputRegisters:
		return m.readRegs(fc, body, model.InputRegister)
	case fcWriteSingleCoil:
		return m.writeSingleCoil(fc, body)
	case fcWriteSingleRegister:
		return m.writeSingleRegister(fc, body)
	case fcWriteMultipleCoils:
		return m.writeMultipleCoils(fc, body)
	case fcWriteMultipleRegisters:
		return m.writeMultipleRegisters(fc, body)
	case fcReadDeviceID:
		return m.readDeviceID(fc, body)
	default:
		return exceptionResponse(fc, excIllegalFunction)
	}
}

func (m *ModbusServer) readBits(fc byte, body []byte, space model.AddressSpace) []byte {
	if len(body) != 4 {
		return exceptionResponse(fc, excIllegalDataValue)
	}
	start := binary.BigEndian.Uint16(body[0:2])
	quantity := binary.BigEndian.Uint16(body[2:4])
	if quantity == 0 || quantity > maxReadCoils {
		return exceptionResponse(fc, excIllegalDataValue)
	}

	bits := make([]bool, quantity)
	for i := uint16(0); i < quantity; i++ {
		addr, ok := addAddr(start, i)
		if !ok {
			return exceptionResponse(fc, excIllegalDataAddress)
		}
		v, present := m.mirror.ReadBool(model.Key{Space: space, Index: addr})
		if !present {
			return exceptionResponse(fc, excIllegalDataAddress)
		}
		bits[i] = v
	}

	byteCount := (int(quantity) + 7) / 8
	resp := make([]byte, 2+byteCount)
	resp[0] = fc
	resp[1] = byte(byteCount)
	for i, v := range bits {
		if v {
			resp[2+i/8] |= 1 << uint(i%8)
		}
	}
	return resp
}

func (m *ModbusServer) readRegs(fc byte, body []byte, space model.AddressSpace) []byte {
	if len(body) != 4 {
		return exceptionResponse(fc, excIllegalDataValue)
	}
	start := binary.BigEndian.Uint16(body[0:2])
	quantity := binary.BigEndian.Uint16(body[2:4])
	if quantity == 0 || quantity > maxReadRegisters {
		return exceptionResponse(fc, excIllegalDataValue)
	}

	regs := make([]uint16, quantity)
	for i := uint16(0); i < quantity; i++ {
		addr, ok := addAddr(start, i)
		if !ok {
			return exceptionResponse(fc, excIllegalDataAddress)
		}
		v, present := m.mirror.ReadReg(model.Key{Space: space, Index: addr})
		if !present {
			return exceptionResponse(fc, excIllegalDataAddress)
		}
		regs[i] = v
	}

	resp := make([]byte, 2+2*len(regs))
	resp[0] = fc
	resp[1] = byte(2 * len(regs))
	for i, v := range regs {
		binary.BigEndian.PutUint16(resp[2+2*i:4+2*i], v)
	}
	return resp
}

func (m *ModbusServer) writeSingleCoil(fc byte, body []byte) []byte {
	if len(body) != 4 {
		return exceptionResponse(fc, excIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(body[0:2])
	raw := binary.BigEndian.Uint16(body[2:4])
	var v bool
	switch raw {
	case 0xFF00:
		v = true
	case 0x0000:
		v = false
	default:
		return exceptionResponse(fc, excIllegalDataValue)
	}
	m.mirror.WriteBool(model.Key{Space: model.Coil, Index: addr}, v)

	resp := make([]byte, 5)
	resp[0] = fc
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], raw)
	return resp
}

func (m *ModbusServer) writeSingleRegister(fc byte, body []byte) []byte {
	if len(body) != 4 {
		return exceptionResponse(fc, excIllegalDataValue)
	}
	addr := binary.BigEndian.Uint16(body[0:2])
	v := binary.BigEndian.Uint16(body[2:4])
	m.mirror.WriteReg(model.Key{Space: model.HoldingRegister, Index: addr}, v)

	resp := make([]byte, 5)
	resp[0] = fc
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], v)
	return resp
}

func (m *ModbusServer) writeMultipleCoils(fc byte, body []byte) []byte {
	if len(body) < 5 {
		return exceptionResponse(fc, excIllegalDataValue)
	}
	start := binary.BigEndian.Uint16(body[0:2])
	quantity := binary.BigEndian.Uint16(body[2:4])
	byteCount := int(body[4])
	if quantity == 0 || quantity > maxWriteCoils || len(body) != 5+byteCount || byteCount != (int(quantity)+7)/8 {
		return exceptionResponse(fc, excIllegalDataValue)
	}

	data := body[5:]
	for i := uint16(0); i < quantity; i++ {
		addr, ok := addAddr(start, i)
		if !ok {
			return exceptionResponse(fc, excIllegalDataAddress)
		}
		v := data[i/8]&(1<<uint(i%8)) != 0
		m.mirror.WriteBool(model.Key{Space: model.Coil, Index: addr}, v)
	}

	resp := make([]byte, 5)
	resp[0] = fc
	binary.BigEndian.PutUint16(resp[1:3], start)
	binary.BigEndian.PutUint16(resp[3:5], quantity)
	return resp
}

func (m *ModbusServer) writeMultipleRegisters(fc byte, body []byte) []byte {
	if len(body) < 5 {
		return exceptionResponse(fc, excIllegalDataValue)
	}
	start := binary.BigEndian.Uint16(body[0:2])
	quantity := binary.BigEndian.Uint16(body[2:4])
	byteCount := int(body[4])
	if quantity == 0 || quantity > maxWriteRegisters || len(body) != 5+byteCount || byteCount != 2*int(quantity) {
		return exceptionResponse(fc, excIllegalDataValue)
	}

	data := body[5:]
	for i := uint16(0); i < quantity; i++ {
		addr, ok := addAddr(start, i)
		if !ok {
			return exceptionResponse(fc, excIllegalDataAddress)
		}
		v := binary.BigEndian.Uint16(data[2*i : 2*i+2])
		m.mirror.WriteReg(model.Key{Space: model.HoldingRegister, Index: addr}, v)
	}

	resp := make([]byte, 5)
	resp[0] = fc
	binary.BigEndian.PutUint16(resp[1:3], start)
	binary.BigEndian.PutUint16(resp[3:5], quantity)
	return resp
}

// readDeviceID implements a minimal FC43/MEI14 "basic device
// identification" response (spec §4.5's information-disclosure
// surface): vendor name, product code and revision, each as one
// object in a single, non-continued response.
func (m *ModbusServer) readDeviceID(fc byte, body []byte) []byte {
	if len(body) != 2 || body[0] != meiReadDeviceID {
		return exceptionResponse(fc, excIllegalDataValue)
	}

	objects := [][2]string{
		{"0", m.identity.VendorName},
		{"1", m.identity.ProductCode},
		{"2", m.identity.MajorMinorRev},
	}

	resp := []byte{fc, meiReadDeviceID, body[1], 0x01 /* conformity level: basic */, 0x00, /* more follows */
		0x00 /* next object id */, byte(len(objects))}
	for i, obj := range objects {
		data := []byte(obj[1])
		resp = append(resp, byte(i), byte(len(data)))
		resp = append(resp, data...)
	}
	return resp
}

// addAddr computes start+offset, failing if it would overflow the
// 16-bit address space (spec §6: "Register/coil addresses are 16-bit").
func addAddr(start, offset uint16) (uint16, bool) {
	sum := uint32(start) + uint32(offset)
	if sum > 0xFFFF {
		return 0, false
	}
	return uint16(sum), true
}
