package validation

import (
	"errors"
	"testing"

	"datamarket/pkg/domain"
)

func u32(v uint32) *uint32 { return &v }

func TestLicenseTerms(t *testing.T) {
	cases := []struct {
		name    string
		license domain.License
		want    domain.Code
	}{
		{"default", domain.License{}, ""},
		{"commercial bounded", domain.License{Type: domain.LicenseCommercial, RoyaltyBps: 250, MaxOwners: u32(10), DurationDays: u32(365)}, ""},
		{"unknown type", domain.License{Type: "gpl"}, domain.CodeInvalidLicense},
		{"royalty too high", domain.License{RoyaltyBps: domain.MaxBps + 1}, domain.CodeFeeTooHigh},
		{"zero owners", domain.License{MaxOwners: u32(0)}, domain.CodeInvalidLicense},
		{"too many owners", domain.License{MaxOwners: u32(domain.MaxOwnersLimit + 1)}, domain.CodeInvalidLicense},
		{"zero days", domain.License{DurationDays: u32(0)}, domain.CodeInvalidLicense},
		{"too many days", domain.License{DurationDays: u32(domain.MaxLicenseDays + 1)}, domain.CodeInvalidLicense},
		{"exclusive with many owners", domain.License{Type: domain.LicenseExclusive, MaxOwners: u32(2)}, domain.CodeInvalidLicense},
		{"exclusive single owner", domain.License{Type: domain.LicenseExclusive, MaxOwners: u32(1)}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := License(tc.license)
			if got := domain.CodeOf(err); tc.want == "" && err != nil || tc.want != "" && got != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestAllReturnsFirstFailure(t *testing.T) {
	first := errors.New("first")
	if err := All(nil, first, errors.New("second")); err != first {
		t.Fatalf("expected first failure, got %v", err)
	}
	if err := All(nil, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
