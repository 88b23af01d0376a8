package openwb

import (
	"fmt"
	"time"
)

// Units and classes used by the tables
const (
	unitAmpere     = "A"
	unitVolt       = "V"
	unitWatt       = "W"
	unitKWh        = "kWh"
	unitHertz      = "Hz"
	unitPercent    = "%"
	unitKilometers = "km"

	classCurrent         = "current"
	classVoltage         = "voltage"
	classPower           = "power"
	classPowerFactor     = "power_factor"
	classEnergy          = "energy"
	classFrequency       = "frequency"
	classBattery         = "battery"
	classTimestamp       = "timestamp"
	classPlug            = "plug"
	classBatteryCharging = "battery_charging"
	classProblem         = "problem"

	stateMeasurement     = "measurement"
	stateTotal           = "total"
	stateTotalIncreasing = "total_increasing"
)

// phases expands a list topic into one sensor per phase
func phases(key, name string, tmpl Description) []Description {
	out := make([]Description, 0, 3)
	for i := range 3 {
		d := tmpl
		d.Key = key
		d.Name = fmt.Sprintf("%s (L%d)", name, i+1)
		d.Component = Sensor
		d.Transform = SplitListFloat(i)
		out = append(out, d)
	}
	return out
}

func kwh(key, name, icon string, precision *int, disabled bool) Description {
	return Description{
		Key:         key,
		Name:        name,
		Component:   Sensor,
		DeviceClass: classEnergy,
		StateClass:  stateTotal,
		Unit:        unitKWh,
		Icon:        icon,
		Precision:   precision,
		Disabled:    disabled,
		Transform:   ScaleRound(0.001, 3),
	}
}

func faultString(key string) Description {
	return Description{
		Key:            key,
		Name:           "Fehlerbeschreibung",
		Component:      Sensor,
		EntityCategory: CategoryDiagnostic,
		Transform:      TrimFault,
	}
}

func faultState() Description {
	return Description{
		Key:            "fault_state",
		Name:           "Fehler",
		Component:      BinarySensor,
		DeviceClass:    classProblem,
		EntityCategory: CategoryDiagnostic,
		Transform:      ParseBinary,
	}
}

// ChargeTemplatePlaceholder is replaced by the charge template linked to the
// connected vehicle
const ChargeTemplatePlaceholder = "charge_template"

// chargeModeLabels maps openWB 2.x charge modes to their labels
var chargeModeLabels = map[string]string{
	"standby":            "Standby",
	"stop":               "Stop",
	"scheduled_charging": "Scheduled Charging",
	"time_charging":      "Time Charging",
	"instant_charging":   "Instant Charging",
	"pv_charging":        "PV Charging",
}

func v2ChargePoint() []Description {
	var ds []Description //nolint:prealloc // built from several helpers
	ds = append(ds, phases("get/currents", "Strom", Description{
		DeviceClass: classCurrent, StateClass: stateMeasurement, Unit: unitAmpere, Icon: "mdi:current-ac",
	})...)
	ds = append(ds,
		kwh("get/daily_imported", "Geladene Energie (Heute)", "mdi:counter", nil, false),
		kwh("get/daily_exported", "Entladene Energie (Heute)", "mdi:counter", nil, true),
		Description{
			Key:         "get/evse_current",
			Name:        "Ladestromvorgabe",
			Component:   Sensor,
			DeviceClass: classCurrent,
			Unit:        unitAmpere,
			Icon:        "mdi:current-ac",
			Precision:   intPtr(0),
			Disabled:    true,
			Transform:   ScaleRound(0.001, 1),
		},
		kwh("get/exported", "Entladene Energie (Gesamt)", "mdi:counter", intPtr(0), true),
		faultString("get/fault_str"),
		kwh("get/imported", "Geladene Energie (Gesamt)", "mdi:counter", intPtr(0), false),
		Description{
			Key:       "get/phases_in_use",
			Name:      "Aktive Phasen",
			Component: Sensor,
			Icon:      "mdi:numeric",
			IconFn:    PhasesIcon,
		},
		Description{
			Key:         "get/power",
			Name:        "Ladeleistung",
			Component:   Sensor,
			DeviceClass: classPower,
			StateClass:  stateMeasurement,
			Unit:        unitWatt,
			Icon:        "mdi:car-electric-outline",
		},
		Description{
			Key:            "get/state_str",
			Name:           "Ladezustand",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Transform:      TrimFault,
		},
	)
	ds = append(ds, phases("get/voltages", "Spannung", Description{
		DeviceClass: classVoltage, StateClass: stateMeasurement, Unit: unitVolt, Icon: "mdi:sine-wave",
	})...)
	ds = append(ds, phases("get/power_factors", "Leistungsfaktor", Description{
		DeviceClass: classPowerFactor, StateClass: stateMeasurement, Disabled: true,
	})...)
	ds = append(ds, phases("get/powers", "Leistung", Description{
		DeviceClass: classPower, StateClass: stateMeasurement, Unit: unitWatt, Icon: "mdi:car-electric-outline",
	})...)
	ds = append(ds,
		Description{
			Key:         "get/frequency",
			Name:        "Frequenz",
			Component:   Sensor,
			DeviceClass: classFrequency,
			StateClass:  stateMeasurement,
			Unit:        unitHertz,
		},
		Description{
			Key:            "config",
			Name:           "Ladepunkt",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Transform:      JSONName,
			DeviceAttr:     DeviceAttrName,
		},
		Description{
			Key:            "get/connected_vehicle/info",
			Name:           "Fahrzeug-ID",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Transform:      JSONField("id"),
		},
		Description{
			Key:            "get/connected_vehicle/info",
			Name:           "Fahrzeug",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Transform:      JSONName,
		},
		Description{
			Key:            "get/connected_vehicle/config",
			Name:           "Lade-Profil",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Transform:      JSONField("charge_template"),
		},
		Description{
			Key:       "get/connected_vehicle/config",
			Name:      "Lademodus",
			Component: Sensor,
			Transform: JSONField("chargemode"),
			ValueMap:  StringMap(chargeModeLabels),
		},
		Description{
			Key:         "get/connected_vehicle/soc",
			Name:        "Ladung",
			Component:   Sensor,
			DeviceClass: classBattery,
			StateClass:  stateMeasurement,
			Unit:        unitPercent,
			Precision:   intPtr(0),
			Transform:   JSONField("soc"),
		},
		Description{
			Key:            "get/connected_vehicle/soc",
			Name:           "SoC-Datenaktualisierung",
			Component:      Sensor,
			DeviceClass:    classTimestamp,
			EntityCategory: CategoryDiagnostic,
			Icon:           "mdi:clock-time-eight",
			Disabled:       true,
			Transform:      LocalTimestamp("timestamp", SoCTimestampLayout, time.Local),
		},
		Description{
			Key:            "get/rfid",
			Name:           "Zuletzt gescannter RFID-Tag",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Icon:           "mdi:tag-multiple",
			Disabled:       true,
		},
		Description{
			Key:        "get/connected_vehicle/soc",
			Name:       "Geladene Entfernung",
			Component:  Sensor,
			StateClass: stateMeasurement,
			Unit:       unitKilometers,
			Icon:       "mdi:map-marker-distance",
			Precision:  intPtr(1),
			Disabled:   true,
			Transform:  JSONField("range_charged"),
		},

		Description{
			Key:         "get/plug_state",
			Name:        "Ladekabel",
			Component:   BinarySensor,
			DeviceClass: classPlug,
			Transform:   ParseBinary,
		},
		Description{
			Key:         "get/charge_state",
			Name:        "Autoladestatus",
			Component:   BinarySensor,
			DeviceClass: classBatteryCharging,
			Transform:   ParseBinary,
		},
		func() Description {
			d := faultState()
			d.Key = "get/fault_state"
			return d
		}(),

		Description{
			Key:            "get/connected_vehicle/config",
			Name:           "Lademodus",
			Component:      Select,
			EntityCategory: CategoryConfig,
			Transform:      JSONField("chargemode"),
			ValueMap: StringMap(map[string]string{
				"instant_charging":   "Instant Charging",
				"scheduled_charging": "Scheduled Charging",
				"pv_charging":        "PV Charging",
				"standby":            "Standby",
				"stop":               "Stop",
			}),
			CommandTopic: "set/vehicle/template/charge_template/{" + ChargeTemplatePlaceholder + "}/chargemode/selected",
			CommandMap: CommandMap{
				"Instant Charging":   "instant_charging",
				"Scheduled Charging": "scheduled_charging",
				"PV Charging":        "pv_charging",
				"Standby":            "standby",
				"Stop":               "stop",
			},
			Options:      []string{"Instant Charging", "Scheduled Charging", "PV Charging", "Stop", "Standby"},
			Placeholders: map[string]string{ChargeTemplatePlaceholder: "Lade-Profil"},
		},
	)
	return ds
}

func v2Counter() []Description {
	var ds []Description //nolint:prealloc // built from several helpers
	ds = append(ds, phases("voltages", "Spannung", Description{
		DeviceClass: classVoltage, StateClass: stateMeasurement, Unit: unitVolt, Icon: "mdi:sine-wave",
	})...)
	ds = append(ds, phases("power_factors", "Leistungsfaktor", Description{
		DeviceClass: classPowerFactor, StateClass: stateMeasurement, Disabled: true,
	})...)
	ds = append(ds, phases("powers", "Leistung", Description{
		DeviceClass: classPower, StateClass: stateMeasurement, Unit: unitWatt, Icon: "mdi:transmission-tower",
	})...)
	ds = append(ds, Description{
		Key:         "frequency",
		Name:        "Frequenz",
		Component:   Sensor,
		DeviceClass: classFrequency,
		StateClass:  stateMeasurement,
		Unit:        unitHertz,
	})
	ds = append(ds, phases("currents", "Strom", Description{
		DeviceClass: classCurrent, StateClass: stateMeasurement, Unit: unitAmpere, Icon: "mdi:current-ac",
	})...)
	ds = append(ds,
		Description{
			Key:         "power",
			Name:        "Leistung",
			Component:   Sensor,
			DeviceClass: classPower,
			Unit:        unitWatt,
			Icon:        "mdi:transmission-tower",
		},
		faultString("fault_str"),
		kwh("exported", "Exportierte Energie (Gesamt)", "mdi:transmission-tower-export", intPtr(0), false),
		kwh("imported", "Importierte Energie (Gesamt)", "mdi:transmission-tower-import", intPtr(0), false),
		kwh("daily_imported", "Importierte Energie (Heute)", "mdi:transmission-tower-import", intPtr(1), false),
		kwh("daily_exported", "Exportierte Energie (Heute)", "mdi:transmission-tower-export", intPtr(1), false),
		faultState(),
	)
	return ds
}

func v2Battery() []Description {
	return []Description{
		{
			Key:         "soc",
			Name:        "Ladung",
			Component:   Sensor,
			DeviceClass: classBattery,
			StateClass:  stateMeasurement,
			Unit:        unitPercent,
		},
		{
			Key:         "power",
			Name:        "Leistung",
			Component:   Sensor,
			DeviceClass: classPower,
			StateClass:  stateMeasurement,
			Unit:        unitWatt,
			Icon:        "mdi:battery-charging",
		},
		faultString("fault_str"),
		kwh("exported", "Entladene Energie (Gesamt)", "mdi:battery-arrow-up", intPtr(0), false),
		kwh("imported", "Geladene Energie (Gesamt)", "mdi:battery-arrow-down", intPtr(0), false),
		kwh("daily_imported", "Geladene Energie (Heute)", "mdi:battery-arrow-down", intPtr(1), false),
		kwh("daily_exported", "Entladene Energie (Heute)", "mdi:battery-arrow-up", intPtr(1), false),
		faultState(),
	}
}

func v2PV() []Description {
	ds := []Description{
		kwh("daily_exported", "Zählerstand (Heute)", "mdi:counter", intPtr(1), false),
		kwh("monthly_exported", "Zählerstand (Monat)", "mdi:counter", intPtr(0), false),
		kwh("yearly_exported", "Zählerstand (Jahr)", "mdi:counter", intPtr(0), false),
		kwh("exported", "Zählerstand (Gesamt)", "mdi:counter", intPtr(0), false),
		{
			Key:         "power",
			Name:        "Leistung",
			Component:   Sensor,
			DeviceClass: classPower,
			StateClass:  stateMeasurement,
			Unit:        unitWatt,
			Icon:        "mdi:solar-power",
			Precision:   intPtr(0),
			Transform:   Abs,
		},
	}
	ds = append(ds, phases("currents", "Strom", Description{
		DeviceClass: classCurrent, StateClass: stateMeasurement, Unit: unitAmpere, Icon: "mdi:current-ac",
	})...)
	return append(ds, faultString("fault_str"), faultState())
}

// liveValue projects a kW field of lastlivevaluesJson as watts
func liveValue(field, name, icon string) Description {
	return Description{
		Key:         "system/lastlivevaluesJson",
		Name:        name,
		Component:   Sensor,
		DeviceClass: classPower,
		StateClass:  stateMeasurement,
		Unit:        unitWatt,
		Icon:        icon,
		Precision:   intPtr(0),
		Transform:   Chain(JSONField(field), ScaleRound(1000, 0)),
	}
}

func v2Controller() []Description {
	return []Description{
		{
			Key:            "system/ip_address",
			Name:           "IP-Adresse",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Icon:           "mdi:earth",
			Transform:      StripQuotes,
			DeviceAttr:     DeviceAttrConfigurationURL,
		},
		{
			Key:            "system/version",
			Name:           "Version",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Icon:           "mdi:folder-clock",
			Transform:      StripQuotes,
			DeviceAttr:     DeviceAttrSWVersion,
		},
		{
			Key:            "system/lastlivevaluesJson",
			Name:           "Datenaktualisierung",
			Component:      Sensor,
			DeviceClass:    classTimestamp,
			EntityCategory: CategoryDiagnostic,
			Icon:           "mdi:clock-time-eight",
			Transform:      UnixTimestamp("timestamp"),
		},
		liveValue("grid", "Netzbezug/-einspeisung", "mdi:transmission-tower"),
		liveValue("house-power", "Hausverbrauch", "mdi:home-lightning-bolt"),
		liveValue("pv-all", "PV-Leistung (Gesamt)", "mdi:solar-power"),
		liveValue("charging-all", "Ladeleistung (Gesamt)", "mdi:car-electric-outline"),
		liveValue("bat-all-power", "Batterieleistung (Gesamt)", "mdi:battery-charging"),
		{
			Key:         "system/lastlivevaluesJson",
			Name:        "Batterieladung (Gesamt)",
			Component:   Sensor,
			DeviceClass: classBattery,
			StateClass:  stateMeasurement,
			Unit:        unitPercent,
			Precision:   intPtr(0),
			Transform:   JSONField("bat-all-soc"),
		},
	}
}
