package engine

import "provident-certs/internal/models"

// Validate checks a fetched bundle for structural completeness. All
// violated checks come back at once so the caller can report every
// missing field in one response. Agreement fields are deliberately not
// checked; an incomplete agreement only thins the certificate.
func Validate(bundle *models.Bundle) (bool, []string) {
	var errs []string

	site := bundle.Site
	if site["address"] == "" {
		errs = append(errs, "Site address is missing")
	}
	if site["city"] == "" {
		errs = append(errs, "Site city is missing")
	}
	if site["state"] == "" {
		errs = append(errs, "Site province is missing")
	}
	if site["zip"] == "" {
		errs = append(errs, "Site postal code is missing")
	}

	customer := bundle.Customer
	if customer["firstname"] == "" && customer["lastname"] == "" {
		errs = append(errs, "Customer name is missing")
	}

	if len(bundle.Devices) == 0 {
		errs = append(errs, "No devices found on system")
	}

	return len(errs) == 0, errs
}
