package console

import (
	"time"

	"github.com/unkn0wn-root/querycache/mutation"
)

// Mutation kinds.
const (
	MutBookingStatus  = "booking.status"
	MutBookingCancel  = "booking.cancel"
	MutTrekCreate     = "trek.create"
	MutTrekUpdate     = "trek.update"
	MutTrekDelete     = "trek.delete"
	MutVendorUpdate   = "vendor.update"
	MutUserUpdate     = "user.update"
	MutTemplateUpdate = "template.update"
)

func bookingLists() []string {
	return []string{KindBookings, KindAdminBookings, KindVendorBookings}
}

// DefaultRules is the invalidation table of the console. A fresh table is
// returned on every call so callers may merge overrides into it.
func DefaultRules() mutation.Table {
	return mutation.Table{
		MutBookingStatus: {
			Invalidate: bookingLists(),
			Overwrite:  true,
			Success:    "Booking status updated",
			Failure:    "Could not update booking status",
		},
		MutBookingCancel: {
			Invalidate: bookingLists(),
			Overwrite:  true,
			Success:    "Booking cancelled",
			Failure:    "Could not cancel booking",
		},
		MutTrekCreate: {
			Invalidate: []string{KindTreks},
			Success:    "Trek created",
			Failure:    "Could not create trek",
		},
		MutTrekUpdate: {
			Invalidate: []string{KindTreks},
			Overwrite:  true,
			Success:    "Trek updated",
			Failure:    "Could not update trek",
		},
		MutTrekDelete: {
			Invalidate: []string{KindTreks},
			Remove:     true,
			Success:    "Trek deleted",
			Failure:    "Could not delete trek",
		},
		MutVendorUpdate: {
			Invalidate: []string{KindVendors},
			Success:    "Vendor updated",
			Failure:    "Could not update vendor",
		},
		MutUserUpdate: {
			Invalidate: []string{KindUsers},
			Success:    "User updated",
			Failure:    "Could not update user",
		},
		MutTemplateUpdate: {
			Invalidate: []string{KindTemplates},
			Success:    "Template saved",
			Failure:    "Could not save template",
		},
	}
}

// DefaultStaleness is the per-kind staleness window used for Options.Staleness.
func DefaultStaleness() map[string]time.Duration {
	return map[string]time.Duration{
		KindBookings:       30 * time.Second,
		KindAdminBookings:  30 * time.Second,
		KindVendorBookings: 30 * time.Second,
		KindBooking:        15 * time.Second,
		KindTreks:          5 * time.Minute,
		KindTrek:           5 * time.Minute,
		KindVendors:        5 * time.Minute,
		KindUsers:          5 * time.Minute,
		KindTemplates:      10 * time.Minute,
	}
}
