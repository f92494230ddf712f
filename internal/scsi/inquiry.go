package scsi

import (
	"github.com/piscisaureus/istgt/internal/lu"
)

// VPD page codes this target answers (§4.7).
const (
	vpdSupportedPages    byte = 0x00
	vpdUnitSerialNumber   byte = 0x80
	vpdDeviceIdentification byte = 0x83
	vpdExtendedInquiry    byte = 0x86
	vpdBlockLimits        byte = 0xB0
	vpdBlockDeviceChars   byte = 0xB1
	vpdLogicalBlockProv   byte = 0xB2
)

func inquiry(target *lu.Target, spec *lu.BackingSpec, cdb []byte) (Result, error) {
	if len(cdb) < 6 {
		return checkCondition(InvalidField()), nil
	}
	evpd := cdb[1]&0x01 != 0
	pageCode := cdb[2]
	allocLen := AllocationLength10(cdb, 3)

	var data []byte
	if !evpd {
		data = standardInquiry(target, spec)
	} else {
		switch pageCode {
		case vpdSupportedPages:
			data = vpdSupportedPagesPage()
		case vpdUnitSerialNumber:
			data = vpdSerialPage(spec)
		case vpdDeviceIdentification:
			data = vpdDeviceIDPage(target, spec)
		case vpdExtendedInquiry:
			data = vpdExtendedInquiryPage()
		case vpdBlockLimits:
			data = vpdBlockLimitsPage(spec)
		case vpdBlockDeviceChars:
			data = vpdBlockDeviceCharsPage()
		case vpdLogicalBlockProv:
			data = vpdLogicalBlockProvPage()
		default:
			return checkCondition(InvalidField()), nil
		}
	}

	if allocLen > 0 && allocLen < len(data) {
		data = data[:allocLen]
	}
	return Result{Status: StatusGood, DataIn: data}, nil
}

// standardInquiry builds the mandatory standard INQUIRY data (§4.7): a
// direct-access block device (peripheral type 0x00), SPC-3 version, vendor
// and product identification padded/truncated to their fixed fields.
func standardInquiry(target *lu.Target, spec *lu.BackingSpec) []byte {
	buf := make([]byte, 96)
	buf[0] = 0x00 // peripheral qualifier 0, device type 0 (direct access block)
	buf[2] = 0x05 // version: SPC-3
	buf[3] = 0x02 // response data format 2, HiSup=0
	buf[4] = byte(len(buf) - 5) // additional length
	buf[7] = 0x02               // CMDQUE

	copy(buf[8:16], padString("ISTGT", 8))
	copy(buf[16:32], padString("VIRTUAL-DISK", 16))
	copy(buf[32:36], padString("0001", 4))
	return buf
}

func padString(s string, length int) []byte {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf, s)
	return buf
}

func vpdHeader(pageCode byte, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	buf[1] = pageCode
	buf[2] = byte(len(payload) >> 8)
	buf[3] = byte(len(payload))
	copy(buf[4:], payload)
	return buf
}

func vpdSupportedPagesPage() []byte {
	return vpdHeader(vpdSupportedPages, []byte{
		vpdSupportedPages, vpdUnitSerialNumber, vpdDeviceIdentification,
		vpdExtendedInquiry, vpdBlockLimits, vpdBlockDeviceChars, vpdLogicalBlockProv,
	})
}

func vpdSerialPage(spec *lu.BackingSpec) []byte {
	serial := lunSerial(spec)
	return vpdHeader(vpdUnitSerialNumber, []byte(serial))
}

// lunSerial derives a stable serial from the LUN's configured LU number,
// since the backing path itself is not guaranteed unique across targets.
func lunSerial(spec *lu.BackingSpec) string {
	const hex = "0123456789abcdef"
	lun := spec.LUN
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hex[lun&0xF]
		lun >>= 4
	}
	return string(out)
}

// vpdDeviceIDPage builds a Type 3 (NAA) designator plus a Type 1 (T10 vendor
// ID) designator, the pairing SPC-3 compliant initiators expect.
func vpdDeviceIDPage(target *lu.Target, spec *lu.BackingSpec) []byte {
	serial := lunSerial(spec)
	naa := naaDesignator(serial)
	t10 := t10Designator(target, spec)
	payload := append(append([]byte{}, naa...), t10...)
	return vpdHeader(vpdDeviceIdentification, payload)
}

func naaDesignator(serial string) []byte {
	// association=LUN, code set=binary, designator type=NAA(3), NAA format 5.
	id := make([]byte, 8)
	id[0] = 0x50 // NAA=5, top nibble of a locally-assigned-looking identifier
	for i := 0; i < 7 && i*2+1 < len(serial); i++ {
		id[1+i] = serial[i*2]
	}
	desc := make([]byte, 4+len(id))
	desc[0] = 0x01 // code set: binary
	desc[1] = 0x03 // designator type: NAA
	desc[3] = byte(len(id))
	copy(desc[4:], id)
	return desc
}

func t10Designator(target *lu.Target, spec *lu.BackingSpec) []byte {
	vendorID := padString(target.Name, 8)
	if len(target.Name) > 8 {
		vendorID = []byte(target.Name)[:8]
	}
	desc := make([]byte, 4+len(vendorID))
	desc[0] = 0x02 // code set: ASCII
	desc[1] = 0x01 // designator type: T10 vendor ID
	desc[3] = byte(len(vendorID))
	copy(desc[4:], vendorID)
	return desc
}

func vpdExtendedInquiryPage() []byte {
	return vpdHeader(vpdExtendedInquiry, make([]byte, 60))
}

func vpdBlockLimitsPage(spec *lu.BackingSpec) []byte {
	payload := make([]byte, 16)
	// OPTIMAL TRANSFER LENGTH GRANULARITY left at 0 (no preference).
	return vpdHeader(vpdBlockLimits, payload)
}

func vpdBlockDeviceCharsPage() []byte {
	payload := make([]byte, 60)
	payload[0] = 0x00 // MEDIUM ROTATION RATE: non-rotating (SSD-like)
	payload[1] = 0x01 // MEDIUM ROTATION RATE low byte = non-rotating
	return vpdHeader(vpdBlockDeviceChars, payload)
}

func vpdLogicalBlockProvPage() []byte {
	payload := make([]byte, 4)
	// LBPME/LBPRZ left clear: thin provisioning unsupported (§9 non-goal).
	return vpdHeader(vpdLogicalBlockProv, payload)
}
