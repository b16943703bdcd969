package validation

import "datamarket/pkg/domain"

// License checks listing terms. An empty type defaults to MIT upstream and is
// accepted here.
func License(l domain.License) error {
	if l.Type != "" && !l.Type.Valid() {
		return domain.NewError(domain.CodeInvalidLicense, "unknown license type %q", l.Type)
	}
	if err := Bps(l.RoyaltyBps); err != nil {
		return err
	}
	if l.MaxOwners != nil && (*l.MaxOwners == 0 || *l.MaxOwners > domain.MaxOwnersLimit) {
		return domain.NewError(domain.CodeInvalidLicense, "max owners %d outside [1, %d]", *l.MaxOwners, domain.MaxOwnersLimit)
	}
	if l.DurationDays != nil && (*l.DurationDays == 0 || *l.DurationDays > domain.MaxLicenseDays) {
		return domain.NewError(domain.CodeInvalidLicense, "license duration %d days outside [1, %d]", *l.DurationDays, domain.MaxLicenseDays)
	}
	if l.Type == domain.LicenseExclusive && l.MaxOwners != nil && *l.MaxOwners != 1 {
		return domain.NewError(domain.CodeInvalidLicense, "exclusive license allows exactly one owner")
	}
	return nil
}

// All returns the first failing check, in order.
func All(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
