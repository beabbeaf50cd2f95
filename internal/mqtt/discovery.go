//go:build !no_mqtt

package mqtt

import "fmt"

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/osp_chain/nodes/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic,omitempty"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	PayloadPress      string   `json:"payload_press,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Device            haDevice `json:"device"`
}

// chainNodeID identifies the chain in the HA device registry; one host
// drives one chain, so the topic prefix keeps it unique.
func chainNodeID(prefix string) string {
	return "osp_" + sanitize(prefix)
}

func sanitize(s string) string {
	out := []byte(s)
	for i, c := range out {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			out[i] = '_'
		}
	}
	return string(out)
}

// buildDiscovery generates HA discovery messages for the chain: node count
// and direction sensors, a discovered binary sensor and a button that runs
// reset/init.
func buildDiscovery(prefix string) []discoveryMsg {
	nodeID := chainNodeID(prefix)
	avail := prefix + "/bridge/state"
	state := chainStateTopic(prefix)
	dev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: "ams OSRAM",
		Model:        "OSP chain",
		Name:         "OSP chain " + prefix,
	}

	sensor := func(obj, name, tmpl, unit, icon string) discoveryMsg {
		return discoveryMsg{
			Topic: fmt.Sprintf("homeassistant/sensor/%s/%s/config", nodeID, obj),
			Payload: mustJSON(haDiscovery{
				Name:              name,
				UniqueID:          nodeID + "_" + obj,
				StateTopic:        state,
				AvailabilityTopic: avail,
				ValueTemplate:     tmpl,
				UnitOfMeasurement: unit,
				Icon:              icon,
				Device:            dev,
			}),
		}
	}

	return []discoveryMsg{
		sensor("nodes", "Nodes", "{{ value_json.nodes }}", "nodes", "mdi:led-strip-variant"),
		sensor("direction", "Direction", "{{ value_json.direction }}", "", "mdi:swap-horizontal"),
		{
			Topic: fmt.Sprintf("homeassistant/binary_sensor/%s/discovered/config", nodeID),
			Payload: mustJSON(haDiscovery{
				Name:              "Discovered",
				UniqueID:          nodeID + "_discovered",
				StateTopic:        state,
				AvailabilityTopic: avail,
				ValueTemplate:     "{{ value_json.discovered }}",
				PayloadOn:         "ON",
				PayloadOff:        "OFF",
				Device:            dev,
			}),
		},
		{
			Topic: fmt.Sprintf("homeassistant/button/%s/resetinit/config", nodeID),
			Payload: mustJSON(haDiscovery{
				Name:              "Reset and init",
				UniqueID:          nodeID + "_resetinit",
				CommandTopic:      prefix + "/set",
				AvailabilityTopic: avail,
				PayloadPress:      `{"op":"resetinit"}`,
				Icon:              "mdi:restart",
				Device:            dev,
			}),
		},
	}
}
