package openwb

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Legacy installation services
const (
	ServiceEnableDisableCP        = "enable_disable_cp"
	ServiceChangeGlobalChargeMode = "change_global_charge_mode"
	ServiceChangeChargeLimitation = "change_charge_limitation_per_cp"
	ServiceChangeChargeCurrent    = "change_charge_current_per_cp"
)

// Services lists the service names in a stable order
var Services = []string{
	ServiceEnableDisableCP,
	ServiceChangeGlobalChargeMode,
	ServiceChangeChargeLimitation,
	ServiceChangeChargeCurrent,
}

// ServiceCall carries the arguments of a legacy service. Only the fields the
// service reads need to be set.
type ServiceCall struct {
	Service          string `json:"-"`
	MQTTPrefix       string `json:"mqtt_prefix,omitempty"`
	ChargePointID    int    `json:"charge_point_id,omitempty"`
	SelectedStatus   string `json:"selected_status,omitempty"`
	GlobalChargeMode string `json:"global_charge_mode,omitempty"`
	ChargeLimitation string `json:"charge_limitation,omitempty"`
	EnergyToCharge   int    `json:"energy_to_charge,omitempty"`
	RequiredSoC      int    `json:"required_soc,omitempty"`
	TargetCurrent    int    `json:"target_current,omitempty"`
}

// globalChargeModePayload maps the service labels; "PV-Laden" is accepted
// as well since that is the label the select shows
func globalChargeModePayload(mode string) string {
	switch mode {
	case "Sofortladen":
		return "0"
	case "Min+PV-Laden":
		return "1"
	case "Nur PV-Laden", "PV-Laden":
		return "2"
	case "Stop":
		return "3"
	default:
		return "4"
	}
}

// ResolveService returns the messages a service call publishes, in order.
// root is used when the call carries no mqtt_prefix.
func ResolveService(call ServiceCall, root string) ([]Message, error) {
	prefix := call.MQTTPrefix
	if prefix == "" {
		prefix = root
	}
	if prefix == "" {
		return nil, fmt.Errorf("%w: %s needs mqtt_prefix", ErrInvalidConfig, call.Service)
	}
	sofort := func(key string) string {
		return fmt.Sprintf("%s/config/set/sofort/lp/%d/%s", prefix, call.ChargePointID, key)
	}
	needsChargePoint := func() error {
		if call.ChargePointID <= 0 {
			return fmt.Errorf("%w: %s needs a positive charge_point_id", ErrOutOfRange, call.Service)
		}
		return nil
	}

	switch call.Service {
	case ServiceEnableDisableCP:
		if err := needsChargePoint(); err != nil {
			return nil, err
		}
		payload := "0"
		if call.SelectedStatus == "On" {
			payload = "1"
		}
		return []Message{{
			Topic:   fmt.Sprintf("%s/set/lp/%d/ChargePointEnabled", prefix, call.ChargePointID),
			Payload: payload,
		}}, nil

	case ServiceChangeGlobalChargeMode:
		return []Message{{
			Topic:   prefix + "/set/ChargeMode",
			Payload: globalChargeModePayload(call.GlobalChargeMode),
		}}, nil

	case ServiceChangeChargeLimitation:
		if err := needsChargePoint(); err != nil {
			return nil, err
		}
		limit := sofort("chargeLimitation")
		switch call.ChargeLimitation {
		case "Not limited":
			return []Message{{Topic: limit, Payload: "0"}}, nil
		case "kWh":
			return []Message{
				{Topic: limit, Payload: "1"},
				{Topic: sofort("energyToCharge"), Payload: strconv.Itoa(call.EnergyToCharge)},
			}, nil
		case "SOC":
			return []Message{
				{Topic: limit, Payload: "2"},
				{Topic: sofort("socToChargeTo"), Payload: strconv.Itoa(call.RequiredSoC)},
			}, nil
		}
		return nil, fmt.Errorf("%w: charge_limitation %q", ErrUnknownOption, call.ChargeLimitation)

	case ServiceChangeChargeCurrent:
		if err := needsChargePoint(); err != nil {
			return nil, err
		}
		return []Message{{Topic: sofort("current"), Payload: strconv.Itoa(call.TargetCurrent)}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownService, call.Service)
}

// legacyRoot returns the root of the first legacy installation
func (b *Bridge) legacyRoot() string {
	for _, inst := range b.instances {
		if inst.config.Version == VersionLegacy {
			return inst.Root()
		}
	}
	return ""
}

// Service runs a legacy service call
func (b *Bridge) Service(call ServiceCall) error {
	msgs, err := ResolveService(call, b.legacyRoot())
	if err != nil {
		return err
	}
	for _, m := range msgs {
		b.logger.Info("Publishing service message",
			zap.String("service", call.Service),
			zap.String("topic", m.Topic),
			zap.String("payload", m.Payload))
		b.publisher.Publish(m.Topic, 0, false, []byte(m.Payload))
	}
	return nil
}
