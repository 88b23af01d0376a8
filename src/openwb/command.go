package openwb

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Command asks a writable entity to change its value
type Command struct {
	EntityID string
	Payload  string
}

// Message is an outgoing MQTT publication
type Message struct {
	Topic   string
	Payload string
}

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// ResolveCommand maps a command onto the topic and payload the wallbox expects.
// The entity state is not touched: it changes once the wallbox echoes the new
// value on the read topic.
func (b *Bridge) ResolveCommand(cmd Command) (Message, error) {
	e, ok := b.entities[cmd.EntityID]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownEntity, cmd.EntityID)
	}
	d := e.Description
	if !d.Writable() {
		return Message{}, fmt.Errorf("%w: %s", ErrNotCommandable, e.ID)
	}

	var payload string
	switch d.Component {
	case Select, Switch:
		p, ok := d.CommandMap.Payload(cmd.Payload)
		if !ok {
			return Message{}, fmt.Errorf("%w: %q for %s", ErrUnknownOption, cmd.Payload, e.ID)
		}
		payload = p
	case Number:
		p, err := numberPayload(d, cmd.Payload)
		if err != nil {
			return Message{}, fmt.Errorf("%s: %w", e.ID, err)
		}
		payload = p
	default:
		return Message{}, fmt.Errorf("%w: %s", ErrNotCommandable, e.ID)
	}

	topic, err := b.expandPlaceholders(e)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Payload: payload}, nil
}

// numberPayload validates v against the range and step and renders it as an
// integer, the only form the wallbox accepts
func numberPayload(d *Description, raw string) (string, error) {
	v, err := parseFloat(raw)
	if err != nil {
		return "", err
	}
	if v < d.Min || v > d.Max {
		return "", fmt.Errorf("%w: %s not in [%s, %s]", ErrOutOfRange, formatFloat(v), formatFloat(d.Min), formatFloat(d.Max))
	}
	if d.Step > 0 {
		steps := (v - d.Min) / d.Step
		if math.Abs(steps-math.Round(steps)) > 1e-9 {
			return "", fmt.Errorf("%w: %s is not a multiple of %s", ErrOutOfRange, formatFloat(v), formatFloat(d.Step))
		}
	}
	return strconv.Itoa(int(v)), nil
}

func (b *Bridge) expandPlaceholders(e *Entity) (string, error) {
	topic := e.CommandTopic
	for ph, ref := range e.Placeholders {
		v, ok := b.states[ref]
		if !ok || v == "" {
			return "", fmt.Errorf("%w: {%s} for %s", ErrMissingPlaceholder, ph, e.ID)
		}
		topic = strings.ReplaceAll(topic, "{"+ph+"}", v)
	}
	if m := placeholderRe.FindString(topic); m != "" {
		return "", fmt.Errorf("%w: %s for %s", ErrMissingPlaceholder, m, e.ID)
	}
	return topic, nil
}

// Execute resolves and publishes a command. A command whose topic placeholder
// is not known yet is dropped without error.
func (b *Bridge) Execute(cmd Command) error {
	msg, err := b.ResolveCommand(cmd)
	if errors.Is(err, ErrMissingPlaceholder) {
		b.logger.Info("Dropping command", zap.String("entity", cmd.EntityID), zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	b.logger.Info("Publishing command",
		zap.String("entity", cmd.EntityID),
		zap.String("topic", msg.Topic),
		zap.String("payload", msg.Payload))
	b.publisher.Publish(msg.Topic, 0, false, []byte(msg.Payload))
	return nil
}
