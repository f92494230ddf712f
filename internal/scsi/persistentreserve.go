package scsi

import (
	"encoding/binary"

	"github.com/piscisaureus/istgt/internal/lu"
	"github.com/piscisaureus/istgt/internal/reservation"
)

// PR IN/OUT service action codes (§4.7, SPC-3).
const (
	prInReadKeys         byte = 0x00
	prInReadReservation  byte = 0x01
	prInReportCapabilities byte = 0x02

	prOutRegister               byte = 0x00
	prOutReserve                byte = 0x01
	prOutRelease                byte = 0x02
	prOutClear                  byte = 0x03
	prOutPreempt                byte = 0x04
	prOutPreemptAndAbort        byte = 0x05
	prOutRegisterAndIgnoreExisting byte = 0x06
)

func persistentReserveIn(spec *lu.BackingSpec, cdb []byte) (Result, error) {
	if len(cdb) < 10 {
		return checkCondition(InvalidField()), nil
	}
	serviceAction := cdb[1] & 0x1F
	allocLen := AllocationLength10(cdb, 7)

	var data []byte
	switch serviceAction {
	case prInReadKeys:
		data = spec.Reservations.ReadKeys()
	case prInReadReservation:
		data = spec.Reservations.ReadReservation()
	case prInReportCapabilities:
		data = []byte{0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	default:
		return checkCondition(InvalidField()), nil
	}

	if allocLen > 0 && allocLen < len(data) {
		data = data[:allocLen]
	}
	return Result{Status: StatusGood, DataIn: data}, nil
}

func persistentReserveOut(n reservation.Nexus, spec *lu.BackingSpec, cdb []byte, data []byte) (Result, error) {
	if len(cdb) < 10 {
		return checkCondition(InvalidField()), nil
	}
	serviceAction := cdb[1] & 0x1F
	prTypeField := reservation.PRType(cdb[2] & 0x0F)
	paramLen := int(binary.BigEndian.Uint32(cdb[5:9]))
	if len(data) < paramLen || paramLen < 24 {
		return checkCondition(InvalidField()), nil
	}

	reservationKey := binary.BigEndian.Uint64(data[0:8])
	serviceActionKey := binary.BigEndian.Uint64(data[8:16])

	switch serviceAction {
	case prOutRegister, prOutRegisterAndIgnoreExisting:
		ignoreExisting := serviceAction == prOutRegisterAndIgnoreExisting
		if !ignoreExisting && reservationKey != 0 && !spec.Reservations.IsRegistered(reservationKey) {
			return Result{Status: StatusReservationConflict}, nil
		}
		if !spec.Reservations.Register(n, reservationKey, serviceActionKey, ignoreExisting) {
			return Result{Status: StatusReservationConflict}, nil
		}
		return Result{Status: StatusGood}, nil

	case prOutReserve:
		if !spec.Reservations.IsRegistered(reservationKey) {
			return Result{Status: StatusReservationConflict}, nil
		}
		if !spec.Reservations.ReserveOut(reservationKey, prTypeField) {
			return Result{Status: StatusReservationConflict}, nil
		}
		return Result{Status: StatusGood}, nil

	case prOutRelease:
		if !spec.Reservations.IsRegistered(reservationKey) {
			return Result{Status: StatusReservationConflict}, nil
		}
		spec.Reservations.ReleaseOut(reservationKey)
		return Result{Status: StatusGood}, nil

	case prOutClear:
		if !spec.Reservations.IsRegistered(reservationKey) {
			return Result{Status: StatusReservationConflict}, nil
		}
		spec.Reservations.Clear()
		return Result{Status: StatusGood}, nil

	case prOutPreempt, prOutPreemptAndAbort:
		if !spec.Reservations.IsRegistered(reservationKey) {
			return Result{Status: StatusReservationConflict}, nil
		}
		spec.Reservations.Preempt(reservationKey, serviceActionKey, prTypeField)
		// Preempt's list of removed nexuses is discarded here, so
		// PREEMPT_AND_ABORT behaves exactly like PREEMPT: the preempted
		// registrants' outstanding tasks are not aborted.
		return Result{Status: StatusGood}, nil

	default:
		return checkCondition(InvalidField()), nil
	}
}
