package scsi

import "github.com/piscisaureus/istgt/internal/lu"

// Mode page codes this target answers (§4.7).
const (
	modePageReadWriteErrorRecovery byte = 0x01
	modePageCaching                byte = 0x08
	modePageControl                byte = 0x0A
	modePageAllPages               byte = 0x3F
)

func modeSense(spec *lu.BackingSpec, cdb []byte, isTen bool) (Result, error) {
	minLen := 6
	if isTen {
		minLen = 10
	}
	if len(cdb) < minLen {
		return checkCondition(InvalidField()), nil
	}

	pageCode := cdb[2] & 0x3F
	var pages []byte
	switch pageCode {
	case modePageReadWriteErrorRecovery:
		pages = rwErrorRecoveryPage()
	case modePageCaching:
		pages = cachingPage(spec)
	case modePageControl:
		pages = controlPage()
	case modePageAllPages:
		pages = append(append(append([]byte{}, rwErrorRecoveryPage()...), cachingPage(spec)...), controlPage()...)
	default:
		return checkCondition(InvalidField()), nil
	}

	var data []byte
	blockDescLen := 0
	var blockDesc []byte
	if cdb[1]&0x08 == 0 { // DBD=0: include a block descriptor
		blockDesc = shortLBABlockDescriptor(spec)
		blockDescLen = len(blockDesc)
	}

	if isTen {
		header := make([]byte, 8)
		bodyLen := len(header) - 2 + blockDescLen + len(pages)
		header[0] = byte(bodyLen >> 8)
		header[1] = byte(bodyLen)
		header[6] = byte(blockDescLen >> 8)
		header[7] = byte(blockDescLen)
		data = append(header, blockDesc...)
		data = append(data, pages...)
	} else {
		header := make([]byte, 4)
		bodyLen := len(header) - 1 + blockDescLen + len(pages)
		header[0] = byte(bodyLen)
		header[3] = byte(blockDescLen)
		data = append(header, blockDesc...)
		data = append(data, pages...)
	}

	allocLen := AllocationLength10(cdb, minLen-2)
	if allocLen > 0 && allocLen < len(data) {
		data = data[:allocLen]
	}
	return Result{Status: StatusGood, DataIn: data}, nil
}

func shortLBABlockDescriptor(spec *lu.BackingSpec) []byte {
	total := blockCount(spec.Size, spec.BlockLen)
	buf := make([]byte, 8)
	if total > 0xFFFFFFFF {
		total = 0xFFFFFFFF
	}
	buf[0] = byte(total >> 24)
	buf[1] = byte(total >> 16)
	buf[2] = byte(total >> 8)
	buf[3] = byte(total)
	buf[5] = byte(spec.BlockLen >> 16)
	buf[6] = byte(spec.BlockLen >> 8)
	buf[7] = byte(spec.BlockLen)
	return buf
}

func rwErrorRecoveryPage() []byte {
	buf := make([]byte, 12)
	buf[0] = modePageReadWriteErrorRecovery
	buf[1] = byte(len(buf) - 2)
	return buf
}

// cachingPage reports WCE per the LU's configured write-cache flag (§4.8);
// RCD (read cache disable) is left clear.
func cachingPage(spec *lu.BackingSpec) []byte {
	buf := make([]byte, 20)
	buf[0] = modePageCaching
	buf[1] = byte(len(buf) - 2)
	if spec.WriteCache {
		buf[2] = 0x04 // WCE
	}
	return buf
}

func controlPage() []byte {
	buf := make([]byte, 12)
	buf[0] = modePageControl
	buf[1] = byte(len(buf) - 2)
	buf[2] = 0x02 // GLTSD set: no implicit log save, matches a stateless target
	return buf
}
