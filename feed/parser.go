// Package feed implements the line protocol on both sides of the engine:
// decoding submit/cancel events from the input stream and encoding trade
// and snapshot records onto the output stream.
package feed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/icebook/icebook/models"
)

// EventKind discriminates the two input events.
type EventKind int

const (
	EventSubmit EventKind = iota
	EventCancel
)

// Event is one decoded input line: either a submission carrying an order
// or a cancellation carrying the target id.
type Event struct {
	Kind     EventKind
	Order    *models.Order
	CancelID models.OrderID
}

// ParseLine decodes one input line. A trailing "#" comment is stripped and
// blank lines yield (nil, nil). Recognized forms:
//
//	L <B|S> <id> <price> <qty>
//	I <B|S> <id> <price> <qty> <peak>
//	C<id>
//
// Input is trusted; decoding failures are returned so the caller can skip
// the line, but no further validation happens here.
func ParseLine(line string) (*Event, error) {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	if line[0] == 'C' {
		id, err := strconv.ParseUint(strings.TrimSpace(line[1:]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse cancel %q: %w", line, err)
		}
		return &Event{Kind: EventCancel, CancelID: models.OrderID(id)}, nil
	}

	fields := strings.Fields(line)
	if len(fields) < 5 {
		return nil, fmt.Errorf("parse order %q: expected at least 5 fields, got %d", line, len(fields))
	}

	kind := fields[0]
	if kind != "L" && kind != "I" {
		return nil, fmt.Errorf("parse order %q: unknown event type %q", line, kind)
	}
	if kind == "I" && len(fields) < 6 {
		return nil, fmt.Errorf("parse order %q: iceberg order missing peak size", line)
	}

	var side models.OrderSide
	switch fields[1] {
	case "B":
		side = models.OrderSideBuy
	case "S":
		side = models.OrderSideSell
	default:
		return nil, fmt.Errorf("parse order %q: unknown side %q", line, fields[1])
	}

	id, err := parseUint(fields[2], "id")
	if err != nil {
		return nil, fmt.Errorf("parse order %q: %w", line, err)
	}
	price, err := parseUint(fields[3], "price")
	if err != nil {
		return nil, fmt.Errorf("parse order %q: %w", line, err)
	}
	quantity, err := parseUint(fields[4], "quantity")
	if err != nil {
		return nil, fmt.Errorf("parse order %q: %w", line, err)
	}

	peak := uint64(0)
	if kind == "I" {
		peak, err = parseUint(fields[5], "peak")
		if err != nil {
			return nil, fmt.Errorf("parse order %q: %w", line, err)
		}
	}

	order := models.NewOrder(
		models.OrderID(id),
		side,
		decimal.NewFromInt(int64(price)),
		decimal.NewFromInt(int64(quantity)),
		decimal.NewFromInt(int64(peak)),
	)
	return &Event{Kind: EventSubmit, Order: order}, nil
}

func parseUint(s, field string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", field, s, err)
	}
	return v, nil
}
