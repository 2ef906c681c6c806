// Package models defines the core data structures shared across all layers of
// passpointd. These types represent the canonical in-memory form of decoded
// ANQP data; every other package depends on this package and nothing here
// depends on any other internal package.
package models

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Element identifiers
// ─────────────────────────────────────────────────────────────────────────────

// ElementType identifies one ANQP element. Release-1 elements use their IEEE
// 802.11u ANQP Info ID; Hotspot 2.0 elements use their HS2.0 subtype. HS2.0
// subtypes are all below 256 so the two ranges never collide.
type ElementType uint32

const (
	ElementVenueName          ElementType = 258
	ElementRoamingConsortium  ElementType = 261
	ElementIPAddrAvailability ElementType = 262
	ElementNAIRealm           ElementType = 263
	ElementThreeGPPNetwork    ElementType = 264
	ElementDomainName         ElementType = 268

	ElementHSFriendlyName   ElementType = 3
	ElementHSWANMetrics     ElementType = 4
	ElementHSConnCapability ElementType = 5
	ElementHSOSUProviders   ElementType = 8
)

var elementNames = map[ElementType]string{
	ElementVenueName:          "VenueName",
	ElementRoamingConsortium:  "RoamingConsortium",
	ElementIPAddrAvailability: "IPAddrAvailability",
	ElementNAIRealm:           "NAIRealm",
	ElementThreeGPPNetwork:    "3GPPNetwork",
	ElementDomainName:         "DomainName",
	ElementHSFriendlyName:     "HSFriendlyName",
	ElementHSWANMetrics:       "HSWANMetrics",
	ElementHSConnCapability:   "HSConnCapability",
	ElementHSOSUProviders:     "HSOSUProviders",
}

// String returns the element name, or "Unknown(<id>)".
func (t ElementType) String() string {
	if n, ok := elementNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(%d)", uint32(t))
}

// IsHS20 reports whether t is a Hotspot 2.0 vendor subtype rather than an
// IEEE ANQP Info ID.
func (t ElementType) IsHS20() bool {
	return t < 256
}

// ParseElementType resolves an element name as returned by String.
func ParseElementType(name string) (ElementType, bool) {
	for t, n := range elementNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// RawAnqpPayload maps an element id to the raw element body as delivered by
// the supplicant. It is consumed once per query and never retained.
type RawAnqpPayload map[ElementType][]byte

// ─────────────────────────────────────────────────────────────────────────────
// Decoded response
// ─────────────────────────────────────────────────────────────────────────────

// AnqpResponse is the decoded aggregate for one BSSID. A nil or empty field
// means the element was not returned or could not be parsed.
type AnqpResponse struct {
	BSSID                  string              `json:"bssid"`
	VenueNames             []I18Name           `json:"venue_names,omitempty"`
	RoamingConsortiumOIs   []uint32            `json:"roaming_consortium_ois,omitempty"`
	IPAvailability         *IPAvailability     `json:"ip_availability,omitempty"`
	NAIRealms              []NAIRealm          `json:"nai_realms,omitempty"`
	CellularNetwork        []string            `json:"cellular_network,omitempty"`
	DomainNames            []string            `json:"domain_names,omitempty"`
	OperatorFriendlyNames  []I18Name           `json:"operator_friendly_names,omitempty"`
	WANMetrics             *WANMetrics         `json:"wan_metrics,omitempty"`
	ConnectionCapabilities []ProtocolPortTuple `json:"connection_capabilities,omitempty"`
	OSUProviders           *OSUProviderList    `json:"osu_providers,omitempty"`
}

// I18Name is one Duple: a 3-character language code and a UTF-8 text.
type I18Name struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

// IPv4Availability values from IEEE 802.11u Table 8-189.
type IPv4Availability int

const (
	IPv4NotAvailable IPv4Availability = iota
	IPv4Public
	IPv4PortRestricted
	IPv4SingleNAT
	IPv4DoubleNAT
	IPv4PortRestrictedSingleNAT
	IPv4PortRestrictedDoubleNAT
	IPv4Unknown
)

// IPv6Availability values from IEEE 802.11u Table 8-188.
type IPv6Availability int

const (
	IPv6NotAvailable IPv6Availability = iota
	IPv6Available
	IPv6Unknown
)

// IPAvailability is the decoded IP Address Type Availability element.
type IPAvailability struct {
	IPv4 IPv4Availability `json:"ipv4"`
	IPv6 IPv6Availability `json:"ipv6"`
}

// NAIRealm is one NAI Realm Data field.
type NAIRealm struct {
	// Encoding is the raw encoding byte; bit 0 set means UTF-8.
	Encoding   uint8       `json:"encoding"`
	Realms     []string    `json:"realms"`
	EAPMethods []EAPMethod `json:"eap_methods,omitempty"`
}

// EAPMethod is one EAP Method field inside a NAI Realm.
type EAPMethod struct {
	MethodID   uint8                         `json:"method_id"`
	AuthParams map[AuthParamType][]AuthParam `json:"auth_params,omitempty"`
}

// AuthParamType identifies an authentication parameter (IEEE 802.11u
// Table 8-189).
type AuthParamType uint8

const (
	AuthParamExpandedEAPMethod         AuthParamType = 1
	AuthParamNonEAPInnerAuth           AuthParamType = 2
	AuthParamInnerAuthEAPMethod        AuthParamType = 3
	AuthParamExpandedInnerEAPMethod    AuthParamType = 4
	AuthParamCredentialType            AuthParamType = 5
	AuthParamTunneledEAPCredentialType AuthParamType = 6
	AuthParamVendorSpecific            AuthParamType = 221
)

// MarshalText lets AuthParamType key JSON objects by name.
func (t AuthParamType) MarshalText() ([]byte, error) {
	switch t {
	case AuthParamExpandedEAPMethod:
		return []byte("expanded_eap_method"), nil
	case AuthParamNonEAPInnerAuth:
		return []byte("non_eap_inner_auth"), nil
	case AuthParamInnerAuthEAPMethod:
		return []byte("inner_auth_eap_method"), nil
	case AuthParamExpandedInnerEAPMethod:
		return []byte("expanded_inner_eap_method"), nil
	case AuthParamCredentialType:
		return []byte("credential_type"), nil
	case AuthParamTunneledEAPCredentialType:
		return []byte("tunneled_eap_credential_type"), nil
	case AuthParamVendorSpecific:
		return []byte("vendor_specific"), nil
	default:
		return []byte(fmt.Sprintf("unknown_%d", uint8(t))), nil
	}
}

// NonEAPInnerAuth is the decoded Non-EAP Inner Authentication Type.
type NonEAPInnerAuth int

const (
	InnerAuthUnknown NonEAPInnerAuth = iota
	InnerAuthPAP
	InnerAuthCHAP
	InnerAuthMSCHAP
	InnerAuthMSCHAPV2
)

// CredentialType is the decoded (tunneled) credential type, 1–10 on the wire.
type CredentialType uint8

const (
	CredentialSIM              CredentialType = 1
	CredentialUSIM             CredentialType = 2
	CredentialNFC              CredentialType = 3
	CredentialHardwareToken    CredentialType = 4
	CredentialSoftToken        CredentialType = 5
	CredentialCertificate      CredentialType = 6
	CredentialUsernamePassword CredentialType = 7
	CredentialNone             CredentialType = 8
	CredentialReserved         CredentialType = 9
	CredentialVendorSpecific   CredentialType = 10
)

// AuthParam is one decoded authentication parameter. Exactly one of the
// value fields is meaningful, selected by Type.
type AuthParam struct {
	Type AuthParamType `json:"type"`

	// ExpandedEAPMethod / ExpandedInnerEAPMethod.
	VendorID   uint32 `json:"vendor_id,omitempty"`
	VendorType uint32 `json:"vendor_type,omitempty"`

	// NonEAPInnerAuth.
	InnerAuth NonEAPInnerAuth `json:"inner_auth,omitempty"`

	// InnerAuthEAPMethod.
	EAPMethodID uint8 `json:"eap_method_id,omitempty"`

	// CredentialType / TunneledEAPCredentialType.
	Credential CredentialType `json:"credential,omitempty"`

	// VendorSpecific.
	VendorData string `json:"vendor_data,omitempty"`
}

// WANLinkStatus is the 2-bit link status from the WAN Info field.
type WANLinkStatus uint8

const (
	WANLinkReserved WANLinkStatus = 0
	WANLinkUp       WANLinkStatus = 1
	WANLinkDown     WANLinkStatus = 2
	WANLinkTest     WANLinkStatus = 3
)

// WANMetrics is the decoded HS2.0 WAN Metrics element.
type WANMetrics struct {
	LinkStatus    WANLinkStatus `json:"link_status"`
	Symmetric     bool          `json:"symmetric"`
	AtCapacity    bool          `json:"at_capacity"`
	DownlinkSpeed uint32        `json:"downlink_speed_kbps"`
	UplinkSpeed   uint32        `json:"uplink_speed_kbps"`
	DownlinkLoad  uint8         `json:"downlink_load"`
	UplinkLoad    uint8         `json:"uplink_load"`
	LMD           uint16        `json:"lmd"`
}

// ProtocolPortTuple is one HS2.0 Connection Capability entry.
type ProtocolPortTuple struct {
	Protocol uint8  `json:"protocol"`
	Port     uint16 `json:"port"`
	Status   uint8  `json:"status"`
}

// OSUProviderList is the decoded HS2.0 OSU Providers List element.
type OSUProviderList struct {
	SSID      string        `json:"ssid"`
	Providers []OSUProvider `json:"providers"`
}

// OSUProvider is one OSU Provider record.
type OSUProvider struct {
	FriendlyNames       []I18Name  `json:"friendly_names,omitempty"`
	ServerURI           string     `json:"server_uri"`
	Methods             []uint8    `json:"methods,omitempty"`
	Icons               []IconInfo `json:"icons,omitempty"`
	NAI                 string     `json:"nai,omitempty"`
	ServiceDescriptions []I18Name  `json:"service_descriptions,omitempty"`
}

// IconInfo is one Icon Metadata entry inside an OSU Provider.
type IconInfo struct {
	Width    uint16 `json:"width"`
	Height   uint16 `json:"height"`
	Language string `json:"language"`
	Type     string `json:"type"`
	FileName string `json:"file_name"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Outbound event
// ─────────────────────────────────────────────────────────────────────────────

// EventAnqpQueryDone is the event name delivered to listeners.
const EventAnqpQueryDone = "ANQP_QUERY_DONE"

// AnqpQueryDoneEvent is the payload handed to the registered listener once a
// query completes.
type AnqpQueryDoneEvent struct {
	Event      string       `json:"event"`
	Interface  string       `json:"interface"`
	NetworkKey string       `json:"network_key"`
	Timestamp  time.Time    `json:"timestamp"`
	Response   AnqpResponse `json:"response"`
}
