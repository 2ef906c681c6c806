package decoder

import (
	"fmt"
	"strings"

	"github.com/vpbank/passpointd/models"
)

const (
	// maxVenueNameLength is the longest venue name text allowed (IEEE
	// 802.11u 8.4.4.4).
	maxVenueNameLength = 252

	// languageCodeLength is the fixed width of the Duple language field.
	languageCodeLength = 3

	// wanMetricsLength is the exact size of the HS2.0 WAN Metrics element.
	wanMetricsLength = 13

	// maxOIOctets bounds one Roaming Consortium OI to a uint32.
	maxOIOctets = 4
)

// ─────────────────────────────────────────────────────────────────────────────
// Duples
// ─────────────────────────────────────────────────────────────────────────────

// readDuple reads one [length][language][text] record. length covers the
// language code and the text.
func readDuple(r *reader) (models.I18Name, error) {
	n, err := r.u8()
	if err != nil {
		return models.I18Name{}, err
	}
	if n < languageCodeLength {
		return models.I18Name{}, fmt.Errorf("%w: duple length %d shorter than language code", ErrMalformed, n)
	}
	lang, err := r.bytes(languageCodeLength)
	if err != nil {
		return models.I18Name{}, err
	}
	text, err := r.str(int(n) - languageCodeLength)
	if err != nil {
		return models.I18Name{}, err
	}
	return models.I18Name{
		Language: strings.TrimRight(string(lang), "\x00"),
		Text:     text,
	}, nil
}

// readDuples reads Duples until r is exhausted.
func readDuples(r *reader) ([]models.I18Name, error) {
	var out []models.I18Name
	for !r.empty() {
		d, err := readDuple(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Release-1 elements
// ─────────────────────────────────────────────────────────────────────────────

// ParseVenueName decodes the Venue Name element: a 2-byte Venue Info field
// followed by Venue Name Duples.
func ParseVenueName(payload []byte) ([]models.I18Name, error) {
	r := newReader(payload)
	if err := r.skip(2); err != nil {
		return nil, err
	}
	names, err := readDuples(r)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if len(n.Text) > maxVenueNameLength {
			return nil, fmt.Errorf("%w: venue name of %d bytes exceeds %d",
				ErrMalformed, len(n.Text), maxVenueNameLength)
		}
	}
	return names, nil
}

// ParseRoamingConsortium decodes the Roaming Consortium element: a sequence
// of [length][OI] pairs, each OI big-endian and 1–4 octets long.
func ParseRoamingConsortium(payload []byte) ([]uint32, error) {
	r := newReader(payload)
	var ois []uint32
	for !r.empty() {
		n, err := r.u8()
		if err != nil {
			return nil, err
		}
		if n < 1 || n > maxOIOctets {
			return nil, fmt.Errorf("%w: OI length %d outside [1,%d]", ErrMalformed, n, maxOIOctets)
		}
		oi, err := r.beUint(int(n))
		if err != nil {
			return nil, err
		}
		ois = append(ois, oi)
	}
	return ois, nil
}

// ParseIPAvailability decodes the single-octet IP Address Type Availability
// element. IPv6 occupies bits 0–1 and IPv4 bits 2–7; reserved values map to
// the Unknown member of each enumeration independently.
func ParseIPAvailability(payload []byte) (models.IPAvailability, error) {
	if len(payload) != 1 {
		return models.IPAvailability{}, fmt.Errorf("%w: IP availability length %d, want 1",
			ErrMalformed, len(payload))
	}
	b := payload[0]

	v6 := models.IPv6Availability(b & 0x3)
	if v6 > models.IPv6Unknown {
		v6 = models.IPv6Unknown
	}

	v4 := models.IPv4Availability((b >> 2) & 0x3F)
	if v4 > models.IPv4Unknown {
		v4 = models.IPv4Unknown
	}

	return models.IPAvailability{IPv4: v4, IPv6: v6}, nil
}

// ParseDomainName decodes the Domain Name element: [length][name] repeated.
func ParseDomainName(payload []byte) ([]string, error) {
	r := newReader(payload)
	var names []string
	for !r.empty() {
		n, err := r.u8()
		if err != nil {
			return nil, err
		}
		name, err := r.str(int(n))
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Hotspot 2.0 elements
// ─────────────────────────────────────────────────────────────────────────────

// ParseFriendlyName decodes the HS2.0 Operator Friendly Name element, which
// is a bare list of Duples.
func ParseFriendlyName(payload []byte) ([]models.I18Name, error) {
	return readDuples(newReader(payload))
}

// ParseWANMetrics decodes the fixed 13-byte HS2.0 WAN Metrics element.
func ParseWANMetrics(payload []byte) (models.WANMetrics, error) {
	if len(payload) != wanMetricsLength {
		return models.WANMetrics{}, fmt.Errorf("%w: WAN metrics length %d, want %d",
			ErrMalformed, len(payload), wanMetricsLength)
	}
	r := newReader(payload)

	// Lengths were checked above, so none of these reads can fail.
	info, _ := r.u8()
	down, _ := r.u32()
	up, _ := r.u32()
	downLoad, _ := r.u8()
	upLoad, _ := r.u8()
	lmd, _ := r.u16()

	return models.WANMetrics{
		LinkStatus:    models.WANLinkStatus(info & 0x3),
		Symmetric:     info&0x4 != 0,
		AtCapacity:    info&0x8 != 0,
		DownlinkSpeed: down,
		UplinkSpeed:   up,
		DownlinkLoad:  downLoad,
		UplinkLoad:    upLoad,
		LMD:           lmd,
	}, nil
}

// ParseConnectionCapability decodes the HS2.0 Connection Capability element:
// 4-byte [protocol][port LE][status] tuples.
func ParseConnectionCapability(payload []byte) ([]models.ProtocolPortTuple, error) {
	r := newReader(payload)
	var out []models.ProtocolPortTuple
	for !r.empty() {
		proto, err := r.u8()
		if err != nil {
			return nil, err
		}
		port, err := r.u16()
		if err != nil {
			return nil, err
		}
		status, err := r.u8()
		if err != nil {
			return nil, err
		}
		out = append(out, models.ProtocolPortTuple{Protocol: proto, Port: port, Status: status})
	}
	return out, nil
}
