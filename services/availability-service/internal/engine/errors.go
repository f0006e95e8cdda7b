package engine

import "errors"

var (
	// ErrNotFound marks an unknown or inactive service/staff id in the
	// query parameters; the whole query fails fast.
	ErrNotFound = errors.New("not found")

	// ErrBookingConflict means a commit lost the race: the storage overlap
	// constraint rejected the insert. Callers prompt a fresh query; the
	// engine never retries.
	ErrBookingConflict = errors.New("booking conflict")

	// ErrOutsideAvailability means the commit-time re-validation found the
	// requested interval not bookable (outside working hours, occupied, or
	// disqualified by policy).
	ErrOutsideAvailability = errors.New("requested time is not bookable")

	// ErrInvalidArgument marks a malformed request parameter (unparseable
	// date, empty service list). Distinct from ErrNotFound: the input never
	// named a real resource to miss.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUpstream wraps persistence collaborator failures during a query.
	ErrUpstream = errors.New("upstream unavailable")
)

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsInvalidArgument(err error) bool     { return errors.Is(err, ErrInvalidArgument) }
func IsConflict(err error) bool            { return errors.Is(err, ErrBookingConflict) }
func IsOutsideAvailability(err error) bool { return errors.Is(err, ErrOutsideAvailability) }
