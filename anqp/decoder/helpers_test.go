package decoder_test

import (
	"encoding/binary"
)

// ─────────────────────────────────────────────────────────────────────────────
// Wire builders. These assemble length-prefixed fixtures so tests never hand-count
// nested lengths.
// ─────────────────────────────────────────────────────────────────────────────

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func le16(v int) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

// duple encodes one [length][language][text] record; lang is padded with NULs
// to three bytes.
func duple(lang, text string) []byte {
	l := make([]byte, 3)
	copy(l, lang)
	return cat([]byte{byte(3 + len(text))}, l, []byte(text))
}

func authParam(typ byte, val ...byte) []byte {
	return cat([]byte{typ, byte(len(val))}, val)
}

func eapMethod(id byte, params ...[]byte) []byte {
	return cat([]byte{id, byte(len(params))}, cat(params...))
}

func naiRealmData(encoding byte, realms string, methods ...[]byte) []byte {
	body := cat(
		[]byte{encoding, byte(len(realms))},
		[]byte(realms),
		[]byte{byte(len(methods))},
		cat(methods...),
	)
	return cat(le16(len(body)), body)
}

func naiRealmElement(realms ...[]byte) []byte {
	return cat(le16(len(realms)), cat(realms...))
}

func iconInfo(w, h int, lang, typ, file string) []byte {
	l := make([]byte, 3)
	copy(l, lang)
	return cat(le16(w), le16(h), l,
		[]byte{byte(len(typ))}, []byte(typ),
		[]byte{byte(len(file))}, []byte(file))
}

type osuFixture struct {
	friendly []byte
	uri      string
	methods  []byte
	icons    []byte
	nai      string
	services []byte
}

func (f osuFixture) bytes() []byte {
	body := cat(
		le16(len(f.friendly)), f.friendly,
		[]byte{byte(len(f.uri))}, []byte(f.uri),
		[]byte{byte(len(f.methods))}, f.methods,
		le16(len(f.icons)), f.icons,
		[]byte{byte(len(f.nai))}, []byte(f.nai),
		le16(len(f.services)), f.services,
	)
	return cat(le16(len(body)), body)
}

func osuElement(ssid string, providers ...[]byte) []byte {
	return cat([]byte{byte(len(ssid))}, []byte(ssid), []byte{byte(len(providers))}, cat(providers...))
}
