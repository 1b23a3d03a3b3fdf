package app

import "fmt"

// Validation errors. They are returned before anything is written.
var (
	ErrInvalidSubscriptionID   = fmt.Errorf("subscription id must be positive")
	ErrInvalidBillingCycle     = fmt.Errorf("billing cycle must be 1 or 3 months")
	ErrInvalidSubscriptionKind = fmt.Errorf("subscription kind must be internet or satellite")
	ErrInvalidMonthlyAmount    = fmt.Errorf("monthly amount must not be negative")
	ErrInvalidDateRange        = fmt.Errorf("end date must not be before start date")
	ErrNextPaymentOffSchedule  = fmt.Errorf("next payment date must be the start date plus whole billing cycles")
	ErrClientNameRequired      = fmt.Errorf("client name is required")
	ErrReminderMessageRequired = fmt.Errorf("reminder message is required")
	ErrInvalidReminderChannel  = fmt.Errorf("reminder channel must be system or whatsapp")
)

// State conflicts for staff actions.
var (
	ErrSubscriptionAlreadyStopped = fmt.Errorf("subscription is already stopped")
	ErrSubscriptionNotStopped     = fmt.Errorf("only stopped subscriptions can be resumed")
)
