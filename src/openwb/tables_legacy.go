package openwb

import (
	"fmt"
	"time"
)

// Legacy charge modes, shared by the global select and the change_global_charge_mode service
var legacyChargeModes = map[int]string{
	0: "Sofortladen",
	1: "Min+PV-Laden",
	2: "PV-Laden",
	3: "Stop",
	4: "Standby",
}

var legacyChargeLimitations = map[int]string{
	0: "Keine",
	1: "Energie",
	2: "SoC",
}

// reverse builds the command map for an integer keyed value map
func reverse(m map[int]string) CommandMap {
	c := make(CommandMap, len(m))
	for k, v := range m {
		c[v] = fmt.Sprint(k)
	}
	return c
}

// sortedLabels returns the labels of m ordered by key
func sortedLabels(m map[int]string) []string {
	labels := make([]string, 0, len(m))
	for i := 0; len(labels) < len(m); i++ {
		if v, ok := m[i]; ok {
			labels = append(labels, v)
		}
	}
	return labels
}

func legacyGlobal() []Description {
	return []Description{
		{
			Key:            "system/IpAddress",
			Name:           "IP-Adresse",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Icon:           "mdi:earth",
			DeviceAttr:     DeviceAttrConfigurationURL,
		},
		{
			Key:            "system/Version",
			Name:           "Version",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Icon:           "mdi:folder-clock",
			DeviceAttr:     DeviceAttrSWVersion,
		},
		{
			Key:         "global/WHouseConsumption",
			Name:        "Hausverbrauch",
			Component:   Sensor,
			DeviceClass: classPower,
			StateClass:  stateMeasurement,
			Unit:        unitWatt,
			Disabled:    true,
		},
		{
			Key:         "pv/W",
			Name:        "PV-Leistung",
			Component:   Sensor,
			DeviceClass: classPower,
			StateClass:  stateMeasurement,
			Unit:        unitWatt,
			Disabled:    true,
			Transform:   Negate,
		},
		{
			Key:         "evu/WhImported",
			Name:        "Netzbezug",
			Component:   Sensor,
			DeviceClass: classEnergy,
			StateClass:  stateTotalIncreasing,
			Unit:        unitKWh,
			Disabled:    true,
			Transform:   ScaleRound(0.001, 1),
		},
		{
			Key:         "evu/WhExported",
			Name:        "Netzeinspeisung",
			Component:   Sensor,
			DeviceClass: classEnergy,
			StateClass:  stateTotalIncreasing,
			Unit:        unitKWh,
			Disabled:    true,
			Transform:   ScaleRound(0.001, 1),
		},
		{
			Key:         "pv/WhCounter",
			Name:        "PV-Gesamtertrag",
			Component:   Sensor,
			DeviceClass: classEnergy,
			StateClass:  stateTotalIncreasing,
			Unit:        unitKWh,
			Disabled:    true,
			Transform:   ScaleRound(0.001, 1),
		},

		{
			Key:            "global/ChargeMode",
			Name:           "Lademodus",
			Component:      Select,
			EntityCategory: CategoryConfig,
			ValueMap:       IntMap(legacyChargeModes),
			CommandTopic:   "set/ChargeMode",
			CommandMap:     reverse(legacyChargeModes),
			Options:        sortedLabels(legacyChargeModes),
		},
		{
			Key:            "minCurrentMinPv",
			Name:           "Mindestladestrom (Modus Min+PV-Laden)",
			Component:      Number,
			DeviceClass:    classCurrent,
			Unit:           unitAmpere,
			EntityCategory: CategoryConfig,
			Icon:           "mdi:current-ac",
			Transform:      ParseNumber,
			StateTopic:     "config/get/pv/minCurrentMinPv",
			CommandTopic:   "config/set/pv/minCurrentMinPv",
			Min:            6,
			Max:            16,
			Step:           1,
		},
	}
}

// sofortNumber is a per charge point setting of the instant charging mode
func sofortNumber(key, name, unit, class, icon string, lo, hi, step float64) Description {
	return Description{
		Key:            key,
		Name:           name,
		Component:      Number,
		DeviceClass:    class,
		Unit:           unit,
		EntityCategory: CategoryConfig,
		Icon:           icon,
		Transform:      ParseNumber,
		StateTopic:     "config/get/sofort/lp/{id}/" + key,
		CommandTopic:   "config/set/sofort/lp/{id}/" + key,
		Min:            lo,
		Max:            hi,
		Step:           step,
	}
}

func legacyChargePoint() []Description {
	ds := []Description{
		{
			Key:         "W",
			Name:        "Ladeleistung",
			Component:   Sensor,
			DeviceClass: classPower,
			StateClass:  stateMeasurement,
			Unit:        unitWatt,
		},
		{
			Key:            "energyConsumptionPer100km",
			Name:           "Durchschnittsverbrauch (pro 100 km)",
			Component:      Sensor,
			DeviceClass:    classEnergy,
			StateClass:     stateMeasurement,
			Unit:           unitKWh,
			EntityCategory: CategoryDiagnostic,
			Disabled:       true,
		},
		{
			Key:         "AConfigured",
			Name:        "Ladestromvorgabe",
			Component:   Sensor,
			DeviceClass: classCurrent,
			StateClass:  stateMeasurement,
			Unit:        unitAmpere,
		},
		{
			Key:        "kmCharged",
			Name:       "Geladene Entfernung",
			Component:  Sensor,
			StateClass: stateMeasurement,
			Unit:       unitKilometers,
			Icon:       "mdi:map-marker-distance",
		},
		{
			Key:         "%Soc",
			Name:        "SoC",
			Component:   Sensor,
			DeviceClass: classBattery,
			StateClass:  stateMeasurement,
			Unit:        unitPercent,
		},
		legacyEnergy("kWhActualCharged", "Geladene Energie (akt. Ladevorgang)", stateMeasurement, 2),
		legacyEnergy("kWhChargedSincePlugged", "Geladene Energie (seit Anstecken)", stateMeasurement, 2),
		legacyEnergy("kWhDailyCharged", "Geladene Energie (heute)", stateMeasurement, 2),
		legacyEnergy("kWhCounter", "Geladene Energie (gesamt)", stateTotalIncreasing, 1),
		{
			Key:        "countPhasesInUse",
			Name:       "Aktive Phasen",
			Component:  Sensor,
			StateClass: stateMeasurement,
			Icon:       "mdi:numeric",
			IconFn:     PhasesIcon,
		},
		{
			Key:         "TimeRemaining",
			Name:        "Voraus. Ladeende",
			Component:   Sensor,
			DeviceClass: classTimestamp,
			Icon:        "mdi:alarm",
			Transform:   TimeRemaining(time.Now),
		},
		{
			Key:            "strChargePointName",
			Name:           "Ladepunktsbezeichnung",
			Component:      Sensor,
			EntityCategory: CategoryDiagnostic,
			Icon:           "mdi:form-textbox",
			Disabled:       true,
		},
	}
	for i := 1; i <= 3; i++ {
		ds = append(ds, Description{
			Key:            fmt.Sprintf("PfPhase%d", i),
			Name:           fmt.Sprintf("Leistungsfaktor (Phase %d)", i),
			Component:      Sensor,
			DeviceClass:    classPowerFactor,
			StateClass:     stateMeasurement,
			EntityCategory: CategoryDiagnostic,
			Disabled:       true,
		})
	}
	for i := 1; i <= 3; i++ {
		ds = append(ds, Description{
			Key:         fmt.Sprintf("VPhase%d", i),
			Name:        fmt.Sprintf("Spannung (Phase %d)", i),
			Component:   Sensor,
			DeviceClass: classVoltage,
			StateClass:  stateMeasurement,
			Unit:        unitVolt,
			Disabled:    true,
		})
	}
	for i := 1; i <= 3; i++ {
		ds = append(ds, Description{
			Key:         fmt.Sprintf("APhase%d", i),
			Name:        fmt.Sprintf("Stromstärke (Phase %d)", i),
			Component:   Sensor,
			DeviceClass: classCurrent,
			StateClass:  stateMeasurement,
			Unit:        unitAmpere,
		})
	}

	ds = append(ds,
		legacyBinary("ChargeStatus", "Ladepunkt freigegeben", classPower, "", "", false),
		legacyBinary("ChargePointEnabled", "Ladepunkt aktiv", classPower, "", "", false),
		legacyBinary("boolDirectModeChargekWh", "Begrenzung Energie (Modus Sofortladen)", "", "mdi:battery-charging", CategoryDiagnostic, false),
		legacyBinary("boolDirectChargeModeSoc", "Begrenzung SoC (Modus Sofortladen)", "", "mdi:battery-unknown", CategoryDiagnostic, false),
		legacyBinary("boolChargeAtNight", "Nachtladen aktiv", "", "mdi:weather-night", CategoryDiagnostic, true),
		legacyBinary("boolPlugStat", "Ladekabel", classPlug, "", "", false),
		legacyBinary("boolChargeStat", "Autoladestatus", classBatteryCharging, "", "", false),
	)

	ds = append(ds,
		Description{
			Key:            "chargeLimitation",
			Name:           "Ladebegrenzung (Modus Sofortladen)",
			Component:      Select,
			EntityCategory: CategoryConfig,
			ValueMap:       IntMap(legacyChargeLimitations),
			StateTopic:     "config/get/sofort/lp/{id}/chargeLimitation",
			CommandTopic:   "config/set/sofort/lp/{id}/chargeLimitation",
			CommandMap:     reverse(legacyChargeLimitations),
			Options:        sortedLabels(legacyChargeLimitations),
		},
		sofortNumber("current", "Ladestromvorgabe (Modus Sofortladen)", unitAmpere, classCurrent, "mdi:current-ac", 6, 16, 1),
		sofortNumber("energyToCharge", "Energiebegrenzung (Modus Sofortladen)", unitKWh, classEnergy, "mdi:battery-charging", 2, 100, 2),
		sofortNumber("socToChargeTo", "SoC-Begrenzung (Modus Sofortladen)", unitPercent, classBattery, "mdi:battery-unknown", 5, 100, 5),
		Description{
			Key:            "ChargePointEnabled",
			Name:           "Ladepunkt aktiv",
			Component:      Switch,
			EntityCategory: CategoryConfig,
			Transform:      ParseSwitch,
			CommandTopic:   "set/lp/{id}/ChargePointEnabled",
			CommandMap:     CommandMap{StateOn: "1", StateOff: "0"},
		},
	)
	return ds
}

func legacyEnergy(key, name, stateClass string, digits int) Description {
	return Description{
		Key:         key,
		Name:        name,
		Component:   Sensor,
		DeviceClass: classEnergy,
		StateClass:  stateClass,
		Unit:        unitKWh,
		Icon:        "mdi:counter",
		Transform:   Round(digits),
	}
}

func legacyBinary(key, name, class, icon, category string, disabled bool) Description {
	return Description{
		Key:            key,
		Name:           name,
		Component:      BinarySensor,
		DeviceClass:    class,
		Icon:           icon,
		EntityCategory: category,
		Disabled:       disabled,
		Transform:      ParseBinary,
	}
}
