package scsi

import (
	"encoding/binary"
	"errors"

	"github.com/piscisaureus/istgt/internal/istgterr"
	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/reservation"
)

// Result is the outcome of executing one CDB: a status byte, sense data
// when Status != StatusGood, and a data-in payload for read-direction
// commands.
type Result struct {
	Status  Status
	Sense   SenseData
	DataIn  []byte
}

// mediaAccessOpcodes lists opcodes that must honor an active reservation
// conflict (§4.7, §8 property 7); TEST UNIT READY/INQUIRY/REPORT LUNS and PR
// commands themselves are exempt per SPC-3.
var mediaAccessOpcodes = map[byte]bool{
	OpRead6: true, OpWrite6: true, OpRead10: true, OpWrite10: true,
	OpRead12: true, OpWrite12: true, OpRead16: true, OpWrite16: true,
	OpSynchronizeCache10: true, OpSynchronizeCache16: true,
	OpModeSense6: true, OpModeSense10: true,
}

// Execute decodes and runs the CDB against spec, returning the SCSI status,
// sense, and any data-in payload. writeData carries a WRITE command's
// already-assembled Data-Out payload (post R2T); it is nil for read-direction
// commands. lastSense, if non-nil, is consulted/cleared by REQUEST SENSE.
func Execute(n reservation.Nexus, target *lu.Target, spec *lu.BackingSpec, cdb []byte, writeData []byte, lastSense *SenseData) (Result, error) {
	if len(cdb) == 0 {
		return checkCondition(InvalidField()), nil
	}
	opcode := cdb[0]

	if opcode == OpReportLUNs {
		return reportLUNs(target, cdb)
	}

	if spec == nil {
		return checkCondition(SenseData{Key: SenseIllegalRequest, ASC: 0x25, ASCQ: 0}), nil // LOGICAL UNIT NOT SUPPORTED
	}

	if mediaAccessOpcodes[opcode] && spec.Reservations != nil {
		if spec.Reservations.ConflictsLegacy(n) {
			return Result{Status: StatusReservationConflict}, nil
		}
		key, _ := spec.Reservations.KeyFor(n) // 0 (never a valid registered key) if unregistered
		if spec.Reservations.ConflictsPR(key) {
			return Result{Status: StatusReservationConflict}, nil
		}
	}

	switch opcode {
	case OpTestUnitReady:
		if !target.Online {
			return checkCondition(NotReady()), nil
		}
		return Result{Status: StatusGood}, nil

	case OpRequestSense:
		descriptor := cdb[1]&0x01 != 0
		allocLen := int(cdb[4])
		var sd SenseData
		if lastSense != nil {
			sd = *lastSense
			*lastSense = SenseData{}
		}
		if descriptor {
			return Result{Status: StatusGood, DataIn: sd.DescriptorBytes(allocLen)}, nil
		}
		return Result{Status: StatusGood, DataIn: sd.Bytes(allocLen)}, nil

	case OpInquiry:
		return inquiry(target, spec, cdb)

	case OpReadCapacity10:
		return readCapacity10(spec), nil

	case OpReadCapacity16OrSAI:
		if len(cdb) < 2 || cdb[1]&0x1F != ServiceActionReadCapacity16 {
			return checkCondition(InvalidOpcode()), nil
		}
		return readCapacity16(spec, cdb), nil

	case OpRead6, OpRead10, OpRead12, OpRead16:
		return read(spec, opcode, cdb)

	case OpWrite6, OpWrite10, OpWrite12, OpWrite16:
		return write(spec, opcode, cdb, writeData)

	case OpSynchronizeCache10, OpSynchronizeCache16:
		return synchronizeCache(spec)

	case OpModeSense6:
		return modeSense(spec, cdb, false)

	case OpModeSense10:
		return modeSense(spec, cdb, true)

	case OpReserve6:
		if spec.Reservations.Reserve6(n) {
			return Result{Status: StatusGood}, nil
		}
		return Result{Status: StatusReservationConflict}, nil

	case OpRelease6:
		spec.Reservations.Release6(n)
		return Result{Status: StatusGood}, nil

	case OpPersistentReserveIn:
		return persistentReserveIn(spec, cdb)

	case OpPersistentReserveOut:
		return persistentReserveOut(n, spec, cdb, writeData)

	default:
		return checkCondition(InvalidOpcode()), nil
	}
}

func checkCondition(sd SenseData) Result {
	return Result{Status: StatusCheckCondition, Sense: sd}
}

func blockCount(size int64, blockLen uint32) uint64 {
	if blockLen == 0 {
		return 0
	}
	return uint64(size) / uint64(blockLen)
}

func read(spec *lu.BackingSpec, opcode byte, cdb []byte) (Result, error) {
	params, err := decodeRW(opcode, cdb)
	if err != nil {
		return checkCondition(InvalidField()), nil
	}
	if params.Blocks == 0 {
		return Result{Status: StatusGood}, nil
	}
	total := blockCount(spec.Size, spec.BlockLen)
	if params.LBA+uint64(params.Blocks) > total {
		return checkCondition(LBAOutOfRange(params.LBA)), nil
	}

	buf := make([]byte, uint64(params.Blocks)*uint64(spec.BlockLen))
	off := int64(params.LBA) * int64(spec.BlockLen)
	if _, err := spec.Driver.Pread(buf, off); err != nil {
		if errors.Is(err, istgterr.ErrBackingStore) {
			return checkCondition(MediumError()), nil
		}
		return Result{}, err
	}
	return Result{Status: StatusGood, DataIn: buf}, nil
}

func write(spec *lu.BackingSpec, opcode byte, cdb []byte, data []byte) (Result, error) {
	if spec.ReadOnly {
		return checkCondition(WriteProtected()), nil
	}
	params, err := decodeRW(opcode, cdb)
	if err != nil {
		return checkCondition(InvalidField()), nil
	}
	if params.Blocks == 0 {
		return Result{Status: StatusGood}, nil
	}
	total := blockCount(spec.Size, spec.BlockLen)
	if params.LBA+uint64(params.Blocks) > total {
		return checkCondition(LBAOutOfRange(params.LBA)), nil
	}
	want := uint64(params.Blocks) * uint64(spec.BlockLen)
	if uint64(len(data)) != want {
		return checkCondition(InvalidField()), nil
	}

	off := int64(params.LBA) * int64(spec.BlockLen)
	if _, err := spec.Driver.Pwrite(data, off); err != nil {
		if errors.Is(err, istgterr.ErrBackingStore) {
			return checkCondition(HardwareError()), nil
		}
		return Result{}, err
	}
	if params.FUA {
		_ = spec.Driver.Sync(off, int64(want))
	}
	return Result{Status: StatusGood}, nil
}

func decodeRW(opcode byte, cdb []byte) (ReadWriteParams, error) {
	switch opcode {
	case OpRead6, OpWrite6:
		if len(cdb) < 6 {
			return ReadWriteParams{}, errShortCDB
		}
		return DecodeReadWrite6(cdb), nil
	case OpRead10, OpWrite10:
		if len(cdb) < 10 {
			return ReadWriteParams{}, errShortCDB
		}
		return DecodeReadWrite10(cdb), nil
	case OpRead12, OpWrite12:
		if len(cdb) < 12 {
			return ReadWriteParams{}, errShortCDB
		}
		return DecodeReadWrite12(cdb), nil
	case OpRead16, OpWrite16:
		if len(cdb) < 16 {
			return ReadWriteParams{}, errShortCDB
		}
		return DecodeReadWrite16(cdb), nil
	}
	return ReadWriteParams{}, errShortCDB
}

var errShortCDB = errors.New("cdb shorter than its command form requires")

func synchronizeCache(spec *lu.BackingSpec) (Result, error) {
	if err := spec.Driver.Sync(0, spec.Size); err != nil {
		return checkCondition(HardwareError()), nil
	}
	return Result{Status: StatusGood}, nil
}

func readCapacity10(spec *lu.BackingSpec) Result {
	total := blockCount(spec.Size, spec.BlockLen)
	lastLBA := uint32(0xFFFFFFFF)
	if total > 0 && total-1 < 0xFFFFFFFF {
		lastLBA = uint32(total - 1)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], lastLBA)
	binary.BigEndian.PutUint32(buf[4:8], spec.BlockLen)
	return Result{Status: StatusGood, DataIn: buf}
}

func readCapacity16(spec *lu.BackingSpec, cdb []byte) Result {
	total := blockCount(spec.Size, spec.BlockLen)
	var lastLBA uint64
	if total > 0 {
		lastLBA = total - 1
	}
	buf := make([]byte, 32)
	binary.BigEndian.PutUint64(buf[0:8], lastLBA)
	binary.BigEndian.PutUint32(buf[8:12], spec.BlockLen)
	// byte 13: logical blocks per physical block exponent = 0 (1:1).
	// LBPME/LBPRZ (thin provisioning) left at 0: disabled per §4.7.
	allocLen := AllocationLength32(cdb, 10)
	if allocLen > 0 && allocLen < len(buf) {
		buf = buf[:allocLen]
	}
	return Result{Status: StatusGood, DataIn: buf}
}

func reportLUNs(target *lu.Target, cdb []byte) (Result, error) {
	if len(cdb) < 10 {
		return checkCondition(InvalidField()), nil
	}
	luns := target.LUNs()
	buf := make([]byte, 8+8*len(luns))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8*len(luns)))
	for i, l := range luns {
		encodeLUN(buf[8+i*8:8+i*8+8], l)
	}
	allocLen := AllocationLength32(cdb, 6)
	if allocLen > 0 && allocLen < len(buf) {
		buf = buf[:allocLen]
	}
	return Result{Status: StatusGood, DataIn: buf}, nil
}

// encodeLUN writes an 8-byte LUN per the SAM-3 "peripheral device addressing"
// method used by REPORT LUNS.
func encodeLUN(dst []byte, lun uint64) {
	if lun <= 0xFF {
		dst[1] = byte(lun)
		return
	}
	binary.BigEndian.PutUint16(dst[0:2], uint16(0x4000|(lun&0x3FFF)))
}
