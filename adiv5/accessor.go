package adiv5

import "github.com/cesanta/errors"

// V5Access is the classic ADIv5 AP addressing scheme: SELECT carries APSEL
// in bits [31:24] and the register bank nibble from the access address in
// bits [7:4]. The relocated high nibble of an APRegAddr-form address plays
// no part here, so the MEM-AP register constants defined at their ADIv6
// offsets land on the same registers of a v5 AP.
//
// The select sequence is re-issued on every call. Another bus user may have
// moved SELECT between two of our accesses, and a stale cached value would
// silently redirect the transfer.
type V5Access struct{}

func (V5Access) ReadAPReg(ap *AccessPort, addr uint16) (uint32, error) {
	if err := v5Select(ap, addr); err != nil {
		return 0, errors.Trace(err)
	}
	return ap.DP.ReadReg(addr)
}

func (V5Access) WriteAPReg(ap *AccessPort, addr uint16, value uint32) error {
	if err := v5Select(ap, addr); err != nil {
		return errors.Trace(err)
	}
	return ap.DP.WriteReg(addr, value)
}

func v5Select(ap *AccessPort, addr uint16) error {
	sv := uint32(ap.Address)&SelectAPSELMask | uint32(addr)&SelectAPBankMask
	return errors.Trace(ap.DP.WriteReg(DPSelect, sv))
}
