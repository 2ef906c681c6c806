package decoder

import (
	"fmt"
	"strings"

	"github.com/vpbank/passpointd/models"
)

const (
	maxSSIDLength = 32

	// minOSUProviderLength is the smallest legal provider record: every
	// length field present and every variable part empty.
	minOSUProviderLength = 9
)

// ParseOSUProviders decodes the HS2.0 OSU Providers List element.
func ParseOSUProviders(payload []byte) (models.OSUProviderList, error) {
	var list models.OSUProviderList
	r := newReader(payload)

	n, err := r.u8()
	if err != nil {
		return list, err
	}
	if n > maxSSIDLength {
		return list, fmt.Errorf("%w: OSU SSID length %d exceeds %d", ErrMalformed, n, maxSSIDLength)
	}
	if list.SSID, err = r.str(int(n)); err != nil {
		return list, err
	}

	count, err := r.u8()
	if err != nil {
		return list, err
	}
	for i := 0; i < int(count); i++ {
		p, err := readOSUProvider(r)
		if err != nil {
			return models.OSUProviderList{}, fmt.Errorf("provider %d: %w", i, err)
		}
		list.Providers = append(list.Providers, p)
	}
	return list, nil
}

func readOSUProvider(r *reader) (models.OSUProvider, error) {
	var p models.OSUProvider

	n, err := r.u16()
	if err != nil {
		return p, err
	}
	if n < minOSUProviderLength {
		return p, fmt.Errorf("%w: provider length %d below minimum %d", ErrMalformed, n, minOSUProviderLength)
	}
	pr, err := r.sub(int(n))
	if err != nil {
		return p, err
	}

	// Friendly names.
	fl, err := pr.u16()
	if err != nil {
		return p, err
	}
	fr, err := pr.sub(int(fl))
	if err != nil {
		return p, err
	}
	if p.FriendlyNames, err = readDuples(fr); err != nil {
		return p, fmt.Errorf("friendly names: %w", err)
	}

	// Server URI.
	ul, err := pr.u8()
	if err != nil {
		return p, err
	}
	if p.ServerURI, err = pr.str(int(ul)); err != nil {
		return p, err
	}

	// Method list.
	ml, err := pr.u8()
	if err != nil {
		return p, err
	}
	methods, err := pr.bytes(int(ml))
	if err != nil {
		return p, err
	}
	if len(methods) > 0 {
		p.Methods = append([]uint8(nil), methods...)
	}

	// Icons.
	il, err := pr.u16()
	if err != nil {
		return p, err
	}
	ir, err := pr.sub(int(il))
	if err != nil {
		return p, err
	}
	for !ir.empty() {
		icon, err := readIconInfo(ir)
		if err != nil {
			return p, fmt.Errorf("icon: %w", err)
		}
		p.Icons = append(p.Icons, icon)
	}

	// NAI.
	nl, err := pr.u8()
	if err != nil {
		return p, err
	}
	if p.NAI, err = pr.str(int(nl)); err != nil {
		return p, err
	}

	// Service descriptions.
	sl, err := pr.u16()
	if err != nil {
		return p, err
	}
	sr, err := pr.sub(int(sl))
	if err != nil {
		return p, err
	}
	if p.ServiceDescriptions, err = readDuples(sr); err != nil {
		return p, fmt.Errorf("service descriptions: %w", err)
	}

	return p, nil
}

func readIconInfo(r *reader) (models.IconInfo, error) {
	var icon models.IconInfo
	var err error

	if icon.Width, err = r.u16(); err != nil {
		return icon, err
	}
	if icon.Height, err = r.u16(); err != nil {
		return icon, err
	}
	lang, err := r.bytes(languageCodeLength)
	if err != nil {
		return icon, err
	}
	icon.Language = strings.TrimRight(string(lang), "\x00")

	tl, err := r.u8()
	if err != nil {
		return icon, err
	}
	if icon.Type, err = r.str(int(tl)); err != nil {
		return icon, err
	}

	fl, err := r.u8()
	if err != nil {
		return icon, err
	}
	if icon.FileName, err = r.str(int(fl)); err != nil {
		return icon, err
	}
	return icon, nil
}
