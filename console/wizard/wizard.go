// Package wizard is the multi-step trek creation form. Each step is validated
// before the wizard moves past it; Submit re-checks every step.
package wizard

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/unkn0wn-root/querycache/apiclient"
)

type Step int

const (
	StepBasics Step = iota
	StepItinerary
	StepPricing
	StepReview
	numSteps
)

func (s Step) String() string {
	switch s {
	case StepBasics:
		return "basics"
	case StepItinerary:
		return "itinerary"
	case StepPricing:
		return "pricing"
	case StepReview:
		return "review"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

var (
	ErrFirstStep   = errors.New("wizard: already at the first step")
	ErrLastStep    = errors.New("wizard: already at the last step")
	ErrInvalidStep = errors.New("wizard: no such step")
)

// StepError is returned when a step does not validate. Err is usually a
// validation.Errors keyed by field name.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("wizard: %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

const (
	maxDays     = 60
	maxAltitude = 8848
	maxCapacity = 500
)

var (
	difficulties = []any{"easy", "moderate", "difficult", "challenging"}
	currencyRe   = regexp.MustCompile(`^[A-Z]{3}$`)
)

type Basics struct {
	VendorID   int64  `json:"vendorId"`
	Title      string `json:"title"`
	Region     string `json:"region"`
	Difficulty string `json:"difficulty"`
}

func (b Basics) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.VendorID, validation.Required, validation.Min(int64(1))),
		validation.Field(&b.Title, validation.Required, validation.Length(3, 120)),
		validation.Field(&b.Region, validation.Required, validation.Length(2, 80)),
		validation.Field(&b.Difficulty, validation.Required, validation.In(difficulties...)),
	)
}

type Pricing struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Capacity int             `json:"capacity"`
}

func (p Pricing) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Price, validation.By(positiveAmount)),
		validation.Field(&p.Currency, validation.Required, validation.Match(currencyRe).Error("must be an ISO 4217 code")),
		validation.Field(&p.Capacity, validation.Required, validation.Min(1), validation.Max(maxCapacity)),
	)
}

func positiveAmount(v any) error {
	d, ok := v.(decimal.Decimal)
	if !ok || !d.IsPositive() {
		return errors.New("must be greater than zero")
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return errors.New("must have at most two decimal places")
	}
	return nil
}

func validDay(v any) error {
	d, _ := v.(apiclient.ItineraryDay)
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required, validation.Length(1, 120)),
		validation.Field(&d.Description, validation.Length(0, 2000)),
		validation.Field(&d.AltitudeM, validation.Min(0), validation.Max(maxAltitude)),
	)
}

// Wizard holds the draft. Field edits are free; only navigation validates.
type Wizard struct {
	Basics    Basics
	Itinerary []apiclient.ItineraryDay
	Pricing   Pricing
	Publish   bool

	step Step
}

func New(vendorID int64) *Wizard {
	return &Wizard{Basics: Basics{VendorID: vendorID}, Pricing: Pricing{Currency: "INR"}}
}

func (w *Wizard) Step() Step { return w.step }

// AddDay appends a day to the itinerary and numbers it.
func (w *Wizard) AddDay(title, description string, altitudeM int) {
	w.Itinerary = append(w.Itinerary, apiclient.ItineraryDay{
		Day:         len(w.Itinerary) + 1,
		Title:       title,
		Description: description,
		AltitudeM:   altitudeM,
	})
}

// RemoveDay drops day i (0-based) and renumbers the rest.
func (w *Wizard) RemoveDay(i int) {
	if i < 0 || i >= len(w.Itinerary) {
		return
	}
	w.Itinerary = append(w.Itinerary[:i], w.Itinerary[i+1:]...)
	for j := range w.Itinerary {
		w.Itinerary[j].Day = j + 1
	}
}

// Validate checks a single step.
func (w *Wizard) Validate(s Step) error {
	var err error
	switch s {
	case StepBasics:
		err = w.Basics.Validate()
	case StepItinerary:
		err = w.validateItinerary()
	case StepPricing:
		err = w.Pricing.Validate()
	case StepReview:
		return nil
	default:
		return ErrInvalidStep
	}
	if err != nil {
		return &StepError{Step: s, Err: err}
	}
	return nil
}

func (w *Wizard) validateItinerary() error {
	days := w.Itinerary
	err := validation.Validate(days,
		validation.Required.Error("add at least one day"),
		validation.Length(1, maxDays),
		validation.Each(validation.By(validDay)),
	)
	if err != nil {
		return validation.Errors{"itinerary": err}
	}
	for i, d := range days {
		if d.Day != i+1 {
			return validation.Errors{"itinerary": fmt.Errorf("day %d is numbered %d", i+1, d.Day)}
		}
	}
	return nil
}

// Next validates the current step and advances when it passes.
func (w *Wizard) Next() error {
	if w.step == StepReview {
		return ErrLastStep
	}
	if err := w.Validate(w.step); err != nil {
		return err
	}
	w.step++
	return nil
}

// Back never validates, so a half-filled step can be left.
func (w *Wizard) Back() error {
	if w.step == StepBasics {
		return ErrFirstStep
	}
	w.step--
	return nil
}

// Goto jumps to s. Jumping forward requires every step before s to validate.
func (w *Wizard) Goto(s Step) error {
	if s < StepBasics || s >= numSteps {
		return ErrInvalidStep
	}
	for p := StepBasics; p < s; p++ {
		if err := w.Validate(p); err != nil {
			return err
		}
	}
	w.step = s
	return nil
}

// Submit validates every step and returns the API body. On failure the
// wizard moves to the first invalid step.
func (w *Wizard) Submit() (apiclient.TrekInput, error) {
	for s := StepBasics; s < numSteps; s++ {
		if err := w.Validate(s); err != nil {
			w.step = s
			return apiclient.TrekInput{}, err
		}
	}
	days := make([]apiclient.ItineraryDay, len(w.Itinerary))
	copy(days, w.Itinerary)
	return apiclient.TrekInput{
		VendorID:   w.Basics.VendorID,
		Title:      strings.TrimSpace(w.Basics.Title),
		Region:     strings.TrimSpace(w.Basics.Region),
		Difficulty: w.Basics.Difficulty,
		Itinerary:  days,
		Price:      w.Pricing.Price,
		Currency:   w.Pricing.Currency,
		Capacity:   w.Pricing.Capacity,
		Published:  w.Publish,
	}, nil
}

// FieldErrors flattens a step error into field paths such as
// "itinerary.0.title" for display next to form inputs.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var se *StepError
	if errors.As(err, &se) {
		err = se.Err
	}
	flatten("", err, out)
	return out
}

func flatten(prefix string, err error, out map[string]string) {
	var ve validation.Errors
	if !errors.As(err, &ve) {
		if err != nil {
			out[prefix] = err.Error()
		}
		return
	}
	names := make([]string, 0, len(ve))
	for name := range ve {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := name
		if prefix != "" {
			p = prefix + "." + name
		}
		flatten(p, ve[name], out)
	}
}
