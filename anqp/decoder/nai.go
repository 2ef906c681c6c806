package decoder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/vpbank/passpointd/models"
)

const (
	// expandedEAPLength is the size of an Expanded EAP Method parameter:
	// 3-byte vendor id followed by a 4-byte vendor type, both big-endian.
	expandedEAPLength = 7

	realmSeparator = ";"
)

var nonEAPInnerAuthTypes = map[uint8]models.NonEAPInnerAuth{
	1: models.InnerAuthPAP,
	2: models.InnerAuthCHAP,
	3: models.InnerAuthMSCHAP,
	4: models.InnerAuthMSCHAPV2,
}

// ParseNAIRealm decodes the NAI Realm element.
//
// Layout: [2-byte realm count] then per realm [2-byte data length][encoding]
// [realm length][realms, ';'-separated][EAP method count] and per EAP method
// [method id][param count] followed by [type][length][value] params. Each
// realm is parsed within its own declared length; EAP methods carry no
// length of their own.
func ParseNAIRealm(payload []byte) ([]models.NAIRealm, error) {
	return parseNAIRealm(payload, discardLogger())
}

func parseNAIRealm(payload []byte, logger *slog.Logger) ([]models.NAIRealm, error) {
	r := newReader(payload)
	count, err := r.u16()
	if err != nil {
		return nil, err
	}

	realms := make([]models.NAIRealm, 0, count)
	for i := 0; i < int(count); i++ {
		n, err := r.u16()
		if err != nil {
			return nil, err
		}
		rr, err := r.sub(int(n))
		if err != nil {
			return nil, fmt.Errorf("realm %d: %w", i, err)
		}
		realm, err := readNAIRealmData(rr, logger.With("realm", i))
		if err != nil {
			return nil, fmt.Errorf("realm %d: %w", i, err)
		}
		realms = append(realms, realm)
	}
	return realms, nil
}

// readNAIRealmData reads one realm body. An unrecognised authentication
// parameter type leaves the rest of the body unreadable, since EAP methods
// are not length-prefixed: the method is kept with the parameters read so
// far and the remaining methods of the realm are skipped.
func readNAIRealmData(r *reader, logger *slog.Logger) (models.NAIRealm, error) {
	var realm models.NAIRealm
	enc, err := r.u8()
	if err != nil {
		return realm, err
	}
	realm.Encoding = enc

	n, err := r.u8()
	if err != nil {
		return realm, err
	}
	s, err := r.str(int(n))
	if err != nil {
		return realm, err
	}
	realm.Realms = strings.Split(s, realmSeparator)

	methods, err := r.u8()
	if err != nil {
		return realm, err
	}
	for j := 0; j < int(methods); j++ {
		m, unknown, err := readEAPMethod(r)
		if err != nil {
			return realm, fmt.Errorf("eap method %d: %w", j, err)
		}
		realm.EAPMethods = append(realm.EAPMethods, m)
		if unknown != nil {
			logger.Debug("decoder: unknown auth param, abandoning remaining eap methods",
				"eap_method", j,
				"method_id", m.MethodID,
				"auth_param", uint8(*unknown),
				"skipped_methods", int(methods)-j-1,
			)
			break
		}
	}
	return realm, nil
}

// readEAPMethod reads one EAP Method. unknown is set to the offending type
// when an unrecognised authentication parameter stopped the parse.
func readEAPMethod(r *reader) (m models.EAPMethod, unknown *models.AuthParamType, err error) {
	id, err := r.u8()
	if err != nil {
		return m, nil, err
	}
	m.MethodID = id

	count, err := r.u8()
	if err != nil {
		return m, nil, err
	}

	for k := 0; k < int(count); k++ {
		typ, err := r.u8()
		if err != nil {
			return m, nil, err
		}
		l, err := r.u8()
		if err != nil {
			return m, nil, err
		}
		val, err := r.bytes(int(l))
		if err != nil {
			return m, nil, err
		}

		param, known, err := parseAuthParam(models.AuthParamType(typ), val)
		if err != nil {
			return m, nil, err
		}
		if !known {
			t := models.AuthParamType(typ)
			return m, &t, nil
		}
		if m.AuthParams == nil {
			m.AuthParams = make(map[models.AuthParamType][]models.AuthParam)
		}
		m.AuthParams[param.Type] = append(m.AuthParams[param.Type], param)
	}
	return m, nil, nil
}

// parseAuthParam decodes one authentication parameter value. known is false
// for parameter types this decoder does not understand.
func parseAuthParam(typ models.AuthParamType, val []byte) (models.AuthParam, bool, error) {
	p := models.AuthParam{Type: typ}

	switch typ {
	case models.AuthParamExpandedEAPMethod, models.AuthParamExpandedInnerEAPMethod:
		if len(val) != expandedEAPLength {
			return p, true, fmt.Errorf("%w: expanded EAP method length %d, want %d",
				ErrMalformed, len(val), expandedEAPLength)
		}
		vr := newReader(val)
		p.VendorID, _ = vr.beUint(3)
		p.VendorType, _ = vr.beUint(4)

	case models.AuthParamNonEAPInnerAuth:
		if len(val) != 1 {
			return p, true, fmt.Errorf("%w: non-EAP inner auth length %d, want 1", ErrMalformed, len(val))
		}
		auth, ok := nonEAPInnerAuthTypes[val[0]]
		if !ok {
			auth = models.InnerAuthUnknown
		}
		p.InnerAuth = auth

	case models.AuthParamInnerAuthEAPMethod:
		if len(val) != 1 {
			return p, true, fmt.Errorf("%w: inner EAP method length %d, want 1", ErrMalformed, len(val))
		}
		p.EAPMethodID = val[0]

	case models.AuthParamCredentialType, models.AuthParamTunneledEAPCredentialType:
		if len(val) != 1 {
			return p, true, fmt.Errorf("%w: credential type length %d, want 1", ErrMalformed, len(val))
		}
		c := models.CredentialType(val[0])
		if c < models.CredentialSIM || c > models.CredentialVendorSpecific {
			return p, true, fmt.Errorf("%w: credential type %d outside [1,10]", ErrMalformed, c)
		}
		p.Credential = c

	case models.AuthParamVendorSpecific:
		p.VendorData = string(val)

	default:
		return p, false, nil
	}
	return p, true, nil
}
