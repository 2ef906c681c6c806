package decoder

import "fmt"

const (
	// gudVersion is the only Generic container User Data version defined by
	// 3GPP TS 24.234 Annex H.
	gudVersion = 0

	// ieiPLMNList is the PLMN List information element identifier.
	ieiPLMNList = 0

	plmnLength = 3

	// mncFiller marks a 2-digit MNC in the third MNC nibble.
	mncFiller = 0xF
)

// ParseThreeGPPNetwork decodes the 3GPP Cellular Network element into a list
// of PLMN identifiers (MCC followed by MNC). Information elements other than
// the PLMN List are skipped.
func ParseThreeGPPNetwork(payload []byte) ([]string, error) {
	r := newReader(payload)

	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if version != gudVersion {
		return nil, fmt.Errorf("%w: unsupported GUD version %d", ErrMalformed, version)
	}

	udhl, err := r.u8()
	if err != nil {
		return nil, err
	}
	if int(udhl) != r.remaining() {
		return nil, fmt.Errorf("%w: UDHL %d does not match remaining %d",
			ErrMalformed, udhl, r.remaining())
	}

	var plmns []string
	for !r.empty() {
		iei, err := r.u8()
		if err != nil {
			return nil, err
		}
		size, err := r.u8()
		if err != nil {
			return nil, err
		}
		body, err := r.sub(int(size & 0x7F))
		if err != nil {
			return nil, err
		}
		if iei != ieiPLMNList {
			continue
		}

		count, err := body.u8()
		if err != nil {
			return nil, err
		}
		if int(count)*plmnLength+1 != int(size&0x7F) {
			return nil, fmt.Errorf("%w: %d PLMN(s) do not fill IEI size %d",
				ErrMalformed, count, size&0x7F)
		}
		for i := 0; i < int(count); i++ {
			b, _ := body.bytes(plmnLength)
			plmn, _ := ParsePLMN(b)
			plmns = append(plmns, plmn)
		}
	}
	return plmns, nil
}

// ParsePLMN formats one 3-octet PLMN identifier.
//
//	octet 0: MCC digit 2 (high nibble) | MCC digit 1 (low nibble)
//	octet 1: MNC digit 3 (high nibble) | MCC digit 3 (low nibble)
//	octet 2: MNC digit 2 (high nibble) | MNC digit 1 (low nibble)
//
// Each nibble is printed as a single hex digit, so {0x21, 0xF3, 0x54}
// yields "12345" (MCC 123, 2-digit MNC 45).
func ParsePLMN(b []byte) (string, error) {
	if len(b) != plmnLength {
		return "", fmt.Errorf("%w: PLMN length %d, want %d", ErrMalformed, len(b), plmnLength)
	}
	mcc := fmt.Sprintf("%x%x%x", b[0]&0xF, b[0]>>4, b[1]&0xF)
	mnc := fmt.Sprintf("%x%x", b[2]&0xF, b[2]>>4)
	if d3 := b[1] >> 4; d3 != mncFiller {
		mnc += fmt.Sprintf("%x", d3)
	}
	return mcc + mnc, nil
}
