package mutation

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/unkn0wn-root/querycache"
)

// Rule declares what a successful mutation changes in the cache. It is data:
// rule tables can be loaded from config and checked without running anything.
type Rule struct {
	// Families to invalidate, in Family.String form: "bookings" or
	// `vendor-bookings{"vendorId":5}`.
	Invalidate []string `mapstructure:"invalidate" json:"invalidate,omitempty"`
	// Overwrite writes the mutation result to its target key.
	Overwrite bool `mapstructure:"overwrite" json:"overwrite,omitempty"`
	// Remove deletes the target key (e.g. after a delete).
	Remove bool `mapstructure:"remove" json:"remove,omitempty"`
	// User-facing messages for the notifier.
	Success string `mapstructure:"success" json:"success,omitempty"`
	Failure string `mapstructure:"failure" json:"failure,omitempty"`
}

var errOverwriteAndRemove = errors.New("overwrite and remove are mutually exclusive")

func (r Rule) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Invalidate, validation.Each(validation.By(isFamily))),
	)
	if err != nil {
		return err
	}
	if r.Overwrite && r.Remove {
		return errOverwriteAndRemove
	}
	return nil
}

// Families parses Invalidate.
func (r Rule) Families() ([]querycache.Family, error) {
	out := make([]querycache.Family, 0, len(r.Invalidate))
	for _, s := range r.Invalidate {
		f, err := querycache.ParseFamily(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func isFamily(v any) error {
	s, _ := v.(string)
	if _, err := querycache.ParseFamily(s); err != nil {
		return err
	}
	return nil
}

// Table maps mutation kinds (e.g. "booking.cancel") to their rules.
type Table map[string]Rule

// Validate checks every rule and reports the offending kinds in sorted order.
func (t Table) Validate() error {
	kinds := make([]string, 0, len(t))
	for k := range t {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var errs []error
	for _, kind := range kinds {
		if kind == "" {
			errs = append(errs, errors.New("empty mutation kind"))
			continue
		}
		if err := t[kind].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// Merge returns a copy of t with other's rules layered on top.
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	for k, r := range t {
		out[k] = r
	}
	for k, r := range other {
		out[k] = r
	}
	return out
}
