package command

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/liminal-dev/liminal-core/internal/peripheral"
)

//go:embed schema.json
var schemaDoc []byte

const schemaURL = "https://liminal.dev/schemas/actuator-command.json"

// Logger defines the logging interface used by the Router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dispatcher delivers a parsed command to a named peripheral.
// *peripheral.Registry satisfies it.
type Dispatcher interface {
	HandleCommand(name string, cmd peripheral.Command, now time.Time) error
}

// Outcome describes one routed message, successful or not.
type Outcome struct {
	ID         uuid.UUID
	Topic      string
	Peripheral string
	// Command is the deciding field name, empty when parsing failed.
	Command string
	Payload []byte
	At      time.Time
	Err     error
}

// Router resolves inbound (topic, payload) pairs to actuator commands.
// It never retries; redelivery is the transport's concern.
type Router struct {
	root   string
	target Dispatcher
	schema *jsonschema.Schema
	logger Logger
}

// NewRouter creates a router for topics under root, for example
// "liminal/commands/esp32-001".
func NewRouter(root string, target Dispatcher) (*Router, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &Router{
		root:   strings.TrimSuffix(root, "/"),
		target: target,
		schema: schema,
		logger: noopLogger{},
	}, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDoc))
	if err != nil {
		return nil, fmt.Errorf("parsing command schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("adding command schema: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling command schema: %w", err)
	}
	return schema, nil
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// Root returns the command-root prefix.
func (r *Router) Root() string { return r.root }

// Subscription returns the wildcard filter covering every command topic.
func (r *Router) Subscription() string { return r.root + "/#" }

// ExtractName returns the final segment of a topic under the command root.
//
// Example: root "liminal/commands/esp32-001" and topic
// "liminal/commands/esp32-001/status_led" yield "status_led".
func (r *Router) ExtractName(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, r.root+"/")
	if !ok {
		if topic == r.root {
			return "", ErrEmptyName
		}
		return "", fmt.Errorf("%w: %q", ErrTopicMismatch, topic)
	}
	name := rest[strings.LastIndex(rest, "/")+1:]
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// commandFields lists the recognised command fields in precedence order.
var commandFields = []string{"state", "toggle", "brightness", "blink", "stop_blink"}

// Parse decodes payload into a command. The first recognised field present
// decides the command; only that field is validated against the command
// schema, and any later fields are ignored.
func (r *Router) Parse(payload []byte) (peripheral.Command, error) {
	var cmd peripheral.Command

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	obj, ok := inst.(map[string]any)
	if !ok {
		return cmd, fmt.Errorf("%w: payload is not an object", ErrInvalidPayload)
	}

	field := ""
	for _, f := range commandFields {
		if _, ok := obj[f]; ok {
			field = f
			break
		}
	}
	if field == "" {
		return cmd, peripheral.ErrUnknownCommand
	}

	value := obj[field]
	if err := r.schema.Validate(map[string]any{field: value}); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := decodeField(&cmd, field, value); err != nil {
		return cmd, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, field, err)
	}
	return cmd, nil
}

// decodeField sets the command field from a schema-validated value.
func decodeField(cmd *peripheral.Command, field string, value any) error {
	switch field {
	case "state":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("want boolean, got %T", value)
		}
		cmd.State = &v
	case "toggle":
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		cmd.Toggle = raw
	case "brightness":
		n, err := integer(value)
		if err != nil {
			return err
		}
		b := int(n)
		cmd.Brightness = &b
	case "blink":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("want object, got %T", value)
		}
		var blink peripheral.BlinkCommand
		if v, ok := obj["on_time"]; ok {
			n, err := integer(v)
			if err != nil {
				return fmt.Errorf("on_time: %w", err)
			}
			blink.OnTime = &n
		}
		if v, ok := obj["off_time"]; ok {
			n, err := integer(v)
			if err != nil {
				return fmt.Errorf("off_time: %w", err)
			}
			blink.OffTime = &n
		}
		if v, ok := obj["cycles"]; ok {
			n, err := integer(v)
			if err != nil {
				return fmt.Errorf("cycles: %w", err)
			}
			c := int(n)
			blink.Cycles = &c
		}
		cmd.Blink = &blink
	case "stop_blink":
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		cmd.StopBlink = raw
	}
	return nil
}

// integer converts a JSON number with no fractional part, such as 3 or
// 3.0, to an int64.
func integer(value any) (int64, error) {
	var f float64
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		parsed, err := v.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case float64:
		f = v
	default:
		return 0, fmt.Errorf("want number, got %T", value)
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is not an integer", value)
	}
	return int64(f), nil
}

// Route extracts the peripheral name, parses the payload and dispatches.
// Extraction or parse failures never reach the dispatcher. The returned
// Outcome carries the same error as the error result.
func (r *Router) Route(topic string, payload []byte, now time.Time) (Outcome, error) {
	out := Outcome{
		ID:      newID(),
		Topic:   topic,
		Payload: payload,
		At:      now,
	}

	out.Err = r.route(&out, topic, payload, now)
	if out.Err != nil {
		r.logger.Warn("command rejected",
			"id", out.ID.String(),
			"topic", topic,
			"peripheral", out.Peripheral,
			"error", out.Err,
		)
		return out, out.Err
	}

	r.logger.Debug("command applied",
		"id", out.ID.String(),
		"peripheral", out.Peripheral,
		"command", out.Command,
	)
	return out, nil
}

func (r *Router) route(out *Outcome, topic string, payload []byte, now time.Time) error {
	name, err := r.ExtractName(topic)
	if err != nil {
		return err
	}
	out.Peripheral = name

	cmd, err := r.Parse(payload)
	if err != nil {
		return err
	}
	out.Command = cmd.Name()

	return r.target.HandleCommand(name, cmd, now)
}

// newID returns a time-ordered correlation ID, falling back to a random one.
func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
