package supplicant

import (
	"fmt"
	"net"

	"github.com/godbus/dbus/v5"

	"github.com/vpbank/passpointd/models"
)

// propertyElements maps keys of the BSS "ANQP" property to element ids.
var propertyElements = map[string]models.ElementType{
	"VenueName":                models.ElementVenueName,
	"RoamingConsortium":        models.ElementRoamingConsortium,
	"IPAddrTypeAvailability":   models.ElementIPAddrAvailability,
	"NAIRealm":                 models.ElementNAIRealm,
	"ANQP3GPP":                 models.ElementThreeGPPNetwork,
	"DomainName":               models.ElementDomainName,
	"HS20OperatorFriendlyName": models.ElementHSFriendlyName,
	"HS20WanMetrics":           models.ElementHSWANMetrics,
	"HS20ConnectionCapability": models.ElementHSConnCapability,
	"HS20OSUProvidersList":     models.ElementHSOSUProviders,
}

// PayloadFromProperties converts the BSS "ANQP" property into per-element
// buffers. Keys without a known element and values that are not byte arrays
// are skipped. Buffers are copied.
func PayloadFromProperties(props map[string]dbus.Variant) models.RawAnqpPayload {
	payload := make(models.RawAnqpPayload, len(props))
	for key, v := range props {
		id, ok := propertyElements[key]
		if !ok {
			continue
		}
		b, ok := v.Value().([]byte)
		if !ok || len(b) == 0 {
			continue
		}
		payload[id] = append([]byte(nil), b...)
	}
	return payload
}

// anqpGetArgs builds the dictionary argument of Interface.ANQPGet. Info ids
// are sent as uint16 and HS2.0 subtypes as bytes, which is what the
// supplicant's parser accepts.
func anqpGetArgs(bssid net.HardwareAddr, infoElements, hs20Subtypes []uint32) (map[string]interface{}, error) {
	ids := make([]uint16, 0, len(infoElements))
	for _, id := range infoElements {
		if id > 0xFFFF {
			return nil, fmt.Errorf("supplicant: info id %d out of range", id)
		}
		ids = append(ids, uint16(id))
	}

	args := map[string]interface{}{
		"addr": bssid.String(),
		"ids":  ids,
	}

	if len(hs20Subtypes) > 0 {
		sub := make([]byte, 0, len(hs20Subtypes))
		for _, id := range hs20Subtypes {
			if id > 0xFF {
				return nil, fmt.Errorf("supplicant: hs20 subtype %d out of range", id)
			}
			sub = append(sub, byte(id))
		}
		args["hs20_ids"] = sub
	}
	return args, nil
}
