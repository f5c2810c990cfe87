package entries

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Kind is the storage type of a writable field.
type Kind int

// Field kinds.
const (
	KindText Kind = iota
	KindInt
	KindDecimal
	KindBool
	KindDate
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Field is one allow-listed column of an entry table together with the
// column constraints a value must satisfy before it is written.
type Field struct {
	Column string
	Kind   Kind
	// NotNull rejects null for NOT NULL columns.
	NotNull bool
	// Precision and Scale bound KindDecimal values as NUMERIC(p,s) does.
	Precision int32
	Scale     int32
}

// Schema maps an entry type to its table and writable fields.
type Schema struct {
	Type   EntryType
	Table  string
	Fields []Field
	index  map[string]Field
}

func newSchema(t EntryType, table string, fields ...Field) *Schema {
	index := make(map[string]Field, len(fields))
	for _, f := range fields {
		index[f.Column] = f
	}
	return &Schema{Type: t, Table: table, Fields: fields, index: index}
}

func text(col string) Field { return Field{Column: col, Kind: KindText} }
func requiredText(col string) Field { return Field{Column: col, Kind: KindText, NotNull: true} }
func integer(col string) Field { return Field{Column: col, Kind: KindInt} }
func dec(col string, precision, scale int32) Field {
	return Field{Column: col, Kind: KindDecimal, Precision: precision, Scale: scale}
}
func boolean(col string) Field { return Field{Column: col, Kind: KindBool} }
func date(col string) Field { return Field{Column: col, Kind: KindDate} }
func clock(col string) Field { return Field{Column: col, Kind: KindTime} }

// registry is the closed set of entry types; a type is submittable only if it
// has a schema here, which is also what the Apply Engine writes through.
var registry = map[EntryType]*Schema{
	TypeHotel: newSchema(TypeHotel, "hotels",
		requiredText("name"), text("brand"), text("address"), text("city"), text("country"),
		text("postal_code"), text("phone"), text("email"), text("website"),
		integer("star_rating"), integer("total_rooms"),
		clock("check_in_time"), clock("check_out_time"), text("description"),
	),
	TypeRoom: newSchema(TypeRoom, "rooms",
		requiredText("name"), text("room_type"), text("bed_type"),
		integer("max_occupancy"), integer("quantity"),
		dec("size_sqm", 10, 2), dec("base_rate", 12, 2), boolean("smoking_allowed"), text("description"),
	),
	TypeEvent: newSchema(TypeEvent, "events",
		requiredText("name"), text("event_type"), date("start_date"), date("end_date"),
		integer("expected_attendees"), text("status"), text("description"),
	),
	TypeRoomOperations: newSchema(TypeRoomOperations, "room_operations",
		text("housekeeping_schedule"), boolean("turndown_service"), text("minibar_policy"),
		dec("early_checkin_fee", 12, 2), dec("late_checkout_fee", 12, 2), text("notes"),
	),
	TypeRoomSpace: newSchema(TypeRoomSpace, "room_spaces",
		requiredText("name"), integer("floor"), dec("area_sqm", 10, 2), text("view_type"),
		boolean("accessible"), text("notes"),
	),
	TypeEventSpace: newSchema(TypeEventSpace, "event_spaces",
		requiredText("name"), dec("area_sqm", 10, 2), dec("ceiling_height_m", 6, 2),
		integer("capacity_theater"), integer("capacity_banquet"), integer("capacity_classroom"),
		boolean("natural_light"), text("av_equipment"), text("notes"),
	),
	TypeFoodBeverage: newSchema(TypeFoodBeverage, "food_beverages",
		requiredText("outlet_name"), text("cuisine_type"), integer("seating_capacity"),
		text("opening_hours"), text("dress_code"), boolean("serves_alcohol"),
		dec("average_check", 12, 2), text("notes"),
	),
}

// SchemaFor returns the schema registered for t.
func SchemaFor(t EntryType) (*Schema, error) {
	s, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return s, nil
}

// Field looks up an allow-listed column.
func (s *Schema) Field(column string) (Field, bool) {
	f, ok := s.index[column]
	return f, ok
}

// Values holds typed column values ready to be bound as query arguments.
// A nil value clears the column.
type Values map[string]any

// Columns returns the column names in stable order.
func (v Values) Columns() []string {
	cols := make([]string, 0, len(v))
	for c := range v {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Coerce keeps the allow-listed keys of data and converts each value to its
// field kind. Keys outside the schema are dropped. A value the column would
// refuse (null for NOT NULL, out of range) is ErrInvalidValue.
func (s *Schema) Coerce(data map[string]any) (Values, error) {
	values := make(Values, len(data))
	for key, raw := range data {
		f, ok := s.index[key]
		if !ok {
			continue
		}
		v, err := f.coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, f.Column, err)
		}
		values[f.Column] = v
	}
	return values, nil
}

// Filter returns the allow-listed subset of keys, deduplicated and sorted.
func (s *Schema) Filter(keys []string) []string {
	kept := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := s.index[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, k)
	}
	sort.Strings(kept)
	return kept
}

func (f Field) coerce(raw any) (any, error) {
	if raw == nil {
		if f.NotNull {
			return nil, errNull
		}
		return nil, nil
	}
	v, err := f.Kind.coerce(raw)
	if err != nil {
		return nil, fmt.Errorf("expected %s", f.Kind)
	}
	switch n := v.(type) {
	case int64:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, errRange
		}
	case decimal.Decimal:
		if f.Precision > 0 && !fitsNumeric(n, f.Precision, f.Scale) {
			return nil, fmt.Errorf("%w: numeric(%d,%d)", errRange, f.Precision, f.Scale)
		}
	}
	return v, nil
}

// fitsNumeric reports whether d is stored exactly by NUMERIC(precision, scale):
// at most scale fractional digits and precision-scale integer digits.
func fitsNumeric(d decimal.Decimal, precision, scale int32) bool {
	if !d.Equal(d.Round(scale)) {
		return false
	}
	return d.Abs().LessThan(decimal.New(1, precision-scale))
}

func (k Kind) coerce(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch k {
	case KindText:
		s, ok := raw.(string)
		if !ok {
			return nil, errKind
		}
		return s, nil
	case KindInt:
		return toInt(raw)
	case KindDecimal:
		return toDecimal(raw)
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, errKind
		}
		return b, nil
	case KindDate:
		s, ok := raw.(string)
		if !ok {
			return nil, errKind
		}
		d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
		if err != nil {
			return nil, errKind
		}
		return d, nil
	case KindTime:
		s, ok := raw.(string)
		if !ok {
			return nil, errKind
		}
		return toClock(s)
	}
	return nil, errKind
}

var (
	errKind  = errors.New("kind mismatch")
	errNull  = errors.New("must not be null")
	errRange = errors.New("out of range")
)

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		return v.Int64()
	case float64:
		if v != math.Trunc(v) || v >= 1<<63 || v < -(1<<63) {
			return 0, errKind
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	}
	return 0, errKind
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	}
	return decimal.Decimal{}, errKind
}

func toClock(s string) (pgtype.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{"15:04", time.TimeOnly}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		micros := int64(t.Hour())*int64(time.Hour/time.Microsecond) +
			int64(t.Minute())*int64(time.Minute/time.Microsecond) +
			int64(t.Second())*int64(time.Second/time.Microsecond)
		return pgtype.Time{Microseconds: micros, Valid: true}, nil
	}
	return pgtype.Time{}, errKind
}
