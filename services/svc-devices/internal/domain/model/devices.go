package model

import (
	"time"

	"github.com/google/uuid"
)

type DeviceID struct {
	uuid.UUID
}

func NewDeviceID() DeviceID {
	return DeviceID{UUID: uuid.Must(uuid.NewV7())}
}

func ParseDeviceID(s string) (DeviceID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return DeviceID{}, ErrInvalidDeviceID
	}

	return DeviceID{UUID: id}, nil
}

func (d DeviceID) String() string {
	return d.UUID.String()
}

func (d DeviceID) IsZero() bool {
	return d.UUID == uuid.Nil
}

// Device is the managed inventory record. CreationTime is set once when the
// record is created and never changes afterwards.
type Device struct {
	ID           DeviceID
	Name         string
	Brand        string
	State        State
	CreationTime time.Time
	UpdatedAt    time.Time
}

// IsLocked reports whether name, brand and deletion are frozen.
func (d Device) IsLocked() bool {
	return d.State == StateInUse
}

// Timestamp normalises t to the precision the store keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

const (
	DefaultPageSize uint = 20
	MaxPageSize     uint = 100
)

type SortField string

const (
	SortByCreationTime SortField = "creationTime"
	SortByName         SortField = "name"
	SortByBrand        SortField = "brand"
	SortByState        SortField = "state"
)

type Sort struct {
	Field      SortField
	Descending bool
}

// ParseSort accepts a field name optionally prefixed with "-" for descending order.
func ParseSort(raw string) (Sort, bool) {
	if raw == "" {
		return Sort{Field: SortByCreationTime}, true
	}

	sort := Sort{Field: SortField(raw)}
	if raw[0] == '-' {
		sort = Sort{Field: SortField(raw[1:]), Descending: true}
	}

	switch sort.Field {
	case SortByCreationTime, SortByName, SortByBrand, SortByState:
		return sort, true
	default:
		return Sort{}, false
	}
}

func (s Sort) String() string {
	if s.Descending {
		return "-" + string(s.Field)
	}

	return string(s.Field)
}

type DeviceFilter struct {
	Brand *string
	State *State
	Page  uint
	Size  uint
	Sort  Sort
}

func DefaultDeviceFilter() DeviceFilter {
	return DeviceFilter{
		Page: 1,
		Size: DefaultPageSize,
		Sort: Sort{Field: SortByCreationTime},
	}
}

// Normalize clamps paging values into their accepted ranges.
func (f DeviceFilter) Normalize() DeviceFilter {
	if f.Page == 0 {
		f.Page = 1
	}

	switch {
	case f.Size == 0:
		f.Size = DefaultPageSize
	case f.Size > MaxPageSize:
		f.Size = MaxPageSize
	}

	if f.Sort.Field == "" {
		f.Sort.Field = SortByCreationTime
	}

	return f
}

func (f DeviceFilter) Offset() uint {
	return (f.Page - 1) * f.Size
}

type Pagination struct {
	Page        uint
	Size        uint
	TotalItems  uint
	TotalPages  uint
	HasNext     bool
	HasPrevious bool
}

func NewPagination(filter DeviceFilter, totalItems uint) Pagination {
	totalPages := totalItems / filter.Size
	if totalItems%filter.Size != 0 {
		totalPages++
	}

	return Pagination{
		Page:        filter.Page,
		Size:        filter.Size,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		HasNext:     filter.Page < totalPages,
		HasPrevious: filter.Page > 1,
	}
}

type DeviceList struct {
	Devices    []*Device
	Pagination Pagination
	Filters    DeviceFilter
}
