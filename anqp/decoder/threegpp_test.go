package decoder_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/vpbank/passpointd/anqp/decoder"
)

func TestParsePLMN(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		// MNC digit 3 nibble 0xF selects a 2-digit MNC.
		{[]byte{0x21, 0xF3, 0x54}, "12345"},
		{[]byte{0x21, 0x63, 0x54}, "123456"},
		{[]byte{0x13, 0xF0, 0x01}, "31010"},
		{[]byte{0x14, 0xF2, 0x10}, "41201"},
		// Nibbles are printed as hex digits, not converted.
		{[]byte{0xBA, 0xFC, 0xED}, "abcde"},
	}
	for _, tc := range tests {
		got, err := decoder.ParsePLMN(tc.in)
		if err != nil {
			t.Fatalf("% X: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("% X: got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParsePLMN_MNCWidthFollowsFillerNibbleOnly(t *testing.T) {
	for hi := 0; hi < 16; hi++ {
		b := []byte{0x21, byte(hi<<4) | 0x03, 0x54}
		got, _ := decoder.ParsePLMN(b)
		wantLen := 6
		if hi == 0xF {
			wantLen = 5
		}
		if len(got) != wantLen {
			t.Errorf("digit3 nibble %X: %q has length %d, want %d", hi, got, len(got), wantLen)
		}
	}
}

func TestParseThreeGPPNetwork(t *testing.T) {
	payload := []byte{
		0x00,       // GUD version
		0x09,       // UDHL
		0x00, 0x07, // PLMN list IEI, size 7
		0x02,
		0x21, 0xF3, 0x54,
		0x21, 0x63, 0x54,
	}
	got, err := decoder.ParseThreeGPPNetwork(payload)
	if err != nil {
		t.Fatalf("ParseThreeGPPNetwork: %v", err)
	}
	want := []string{"12345", "123456"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseThreeGPPNetwork_SkipsOtherIEIs(t *testing.T) {
	payload := []byte{
		0x00, 0x0A,
		0x01, 0x02, 0xAA, 0xBB, // unknown IEI
		0x00, 0x04, 0x01, 0x13, 0xF0, 0x01,
	}
	got, err := decoder.ParseThreeGPPNetwork(payload)
	if err != nil {
		t.Fatalf("ParseThreeGPPNetwork: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"31010"}) {
		t.Errorf("got %q", got)
	}
}

func TestParseThreeGPPNetwork_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"empty", nil, decoder.ErrTruncated},
		{"unsupported version", []byte{0x01, 0x06, 0x00, 0x04, 0x01, 0x21, 0xF3, 0x54}, decoder.ErrMalformed},
		{"UDHL mismatch", []byte{0x00, 0x07, 0x00, 0x04, 0x01, 0x21, 0xF3, 0x54}, decoder.ErrMalformed},
		{"count does not fill size", []byte{0x00, 0x07, 0x00, 0x05, 0x01, 0x21, 0xF3, 0x54, 0x00}, decoder.ErrMalformed},
		{"IEI size past buffer", []byte{0x00, 0x03, 0x00, 0x09, 0x01}, decoder.ErrTruncated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decoder.ParseThreeGPPNetwork(tc.payload)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
			if got != nil {
				t.Errorf("expected nil on error, got %q", got)
			}
		})
	}
}
