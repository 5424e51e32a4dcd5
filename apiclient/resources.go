package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// Bookings

// ListBookings lists the caller's own bookings.
func (c *Client) ListBookings(ctx context.Context, f BookingFilter) (Page[Booking], error) {
	return getJSON[Page[Booking]](ctx, c, "bookings", f.Values())
}

// ListAdminBookings lists bookings across all vendors.
func (c *Client) ListAdminBookings(ctx context.Context, f BookingFilter) (Page[Booking], error) {
	return getJSON[Page[Booking]](ctx, c, "admin/bookings", f.Values())
}

// ListVendorBookings lists bookings of f.VendorID.
func (c *Client) ListVendorBookings(ctx context.Context, f BookingFilter) (Page[Booking], error) {
	if f.VendorID == nil {
		return Page[Booking]{}, validationError("vendorId", "required for vendor bookings")
	}
	q := f.Values()
	q.Del("vendorId") // carried by the path
	return getJSON[Page[Booking]](ctx, c, fmt.Sprintf("vendors/%d/bookings", *f.VendorID), q)
}

func (c *Client) GetBooking(ctx context.Context, id int64) (Booking, error) {
	return getJSON[Booking](ctx, c, "bookings/"+strconv.FormatInt(id, 10), nil)
}

func (c *Client) UpdateBookingStatus(ctx context.Context, id int64, status BookingStatus, idem string) (Booking, error) {
	body := map[string]BookingStatus{"status": status}
	return sendJSON[Booking](ctx, c, http.MethodPatch, fmt.Sprintf("bookings/%d/status", id), body, idem)
}

func (c *Client) CancelBooking(ctx context.Context, id int64, reason, idem string) (Booking, error) {
	body := map[string]string{"reason": reason}
	return sendJSON[Booking](ctx, c, http.MethodPost, fmt.Sprintf("bookings/%d/cancel", id), body, idem)
}

// Treks

func (c *Client) ListTreks(ctx context.Context, f TrekFilter) (Page[Trek], error) {
	return getJSON[Page[Trek]](ctx, c, "treks", f.Values())
}

func (c *Client) GetTrek(ctx context.Context, id int64) (Trek, error) {
	return getJSON[Trek](ctx, c, "treks/"+strconv.FormatInt(id, 10), nil)
}

func (c *Client) CreateTrek(ctx context.Context, in TrekInput, idem string) (Trek, error) {
	return sendJSON[Trek](ctx, c, http.MethodPost, "treks", in, idem)
}

func (c *Client) UpdateTrek(ctx context.Context, id int64, in TrekInput, idem string) (Trek, error) {
	return sendJSON[Trek](ctx, c, http.MethodPut, "treks/"+strconv.FormatInt(id, 10), in, idem)
}

func (c *Client) DeleteTrek(ctx context.Context, id int64, idem string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "treks/" + strconv.FormatInt(id, 10), idem: idem})
	return err
}

// Vendors, users, templates

func (c *Client) ListVendors(ctx context.Context, f VendorFilter) (Page[Vendor], error) {
	return getJSON[Page[Vendor]](ctx, c, "vendors", f.Values())
}

func (c *Client) UpdateVendor(ctx context.Context, id int64, u VendorUpdate, idem string) (Vendor, error) {
	return sendJSON[Vendor](ctx, c, http.MethodPatch, "vendors/"+strconv.FormatInt(id, 10), u, idem)
}

func (c *Client) ListUsers(ctx context.Context, f UserFilter) (Page[User], error) {
	return getJSON[Page[User]](ctx, c, "users", f.Values())
}

func (c *Client) UpdateUser(ctx context.Context, id int64, u UserUpdate, idem string) (User, error) {
	return sendJSON[User](ctx, c, http.MethodPatch, "users/"+strconv.FormatInt(id, 10), u, idem)
}

func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	return getJSON[[]Template](ctx, c, "templates", nil)
}

func (c *Client) UpdateTemplate(ctx context.Context, id string, u TemplateUpdate, idem string) (Template, error) {
	return sendJSON[Template](ctx, c, http.MethodPatch, "templates/"+id, u, idem)
}
