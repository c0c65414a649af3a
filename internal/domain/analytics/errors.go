package analytics

import "errors"

var (
	// ErrAnalysisNotFound is returned when no record exists for a code.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrInvalidDateRange is returned when a caller supplies a filter whose
	// start date is after its end date.
	ErrInvalidDateRange = errors.New("start date is after end date")

	// ErrTenantNotFound is returned by directory lookups for unknown tenants.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrRoleNotFound is returned by directory lookups for unknown roles.
	ErrRoleNotFound = errors.New("role not found")

	// ErrReportNotFound is returned when a rendered report blob is missing.
	ErrReportNotFound = errors.New("report file not found")

	// ErrUnknownFormat is returned for download formats outside json/excel/pdf.
	ErrUnknownFormat = errors.New("unknown report format")
)
