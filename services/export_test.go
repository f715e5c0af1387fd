package services

import "time"

// SetClock replaces the time source of a service built by this package.
func SetClock(svc interface{}, now func() time.Time) {
	switch s := svc.(type) {
	case *reconcilerImpl:
		s.now = now
	case *checkoutServiceImpl:
		s.now = now
	case *pollerImpl:
		s.now = now
	case *notificationServiceImpl:
		s.now = now
	case *orderServiceImpl:
		s.now = now
	default:
		panic("SetClock: unsupported service")
	}
}
