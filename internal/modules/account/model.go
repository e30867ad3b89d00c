// README: Account aggregate: one record per email carrying client and seller capabilities.
package account

import (
	"time"

	"scrapyard/internal/access"
	"scrapyard/internal/auth"
	"scrapyard/internal/modules/otp"
	"scrapyard/internal/types"
)

// Documents holds blob-store keys of uploaded verification documents.
type Documents struct {
	IDProof         string `json:"id_proof"`
	VendorIDProof   string `json:"vendor_id_proof"`
	BusinessLicense string `json:"business_license"`
	GSTCertificate  string `json:"gst_certificate"`
	AddressProof    string `json:"address_proof"`
}

type Account struct {
	ID              types.ID  `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	FullName        string    `json:"full_name"`
	PhoneNumber     string    `json:"phone_number"`
	Address         string    `json:"address"`
	City            string    `json:"city"`
	IsClient        bool      `json:"is_client"`
	IsSeller        bool      `json:"is_seller"`
	IsVerified      bool      `json:"is_verified"`
	IsPhoneVerified bool      `json:"is_phone_verified"`
	IsEmailVerified bool      `json:"is_email_verified"`
	BusinessName    string    `json:"business_name"`
	BusinessType    string    `json:"business_type"`
	OperatingAreas  string    `json:"operating_areas"`
	ScrapeTypes     []string  `json:"scrape_types"`
	Documents       Documents `json:"documents"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Attributes are the optional profile fields a registration may carry.
// Empty values never overwrite stored ones.
type Attributes struct {
	FullName       string
	PhoneNumber    string
	Address        string
	City           string
	BusinessName   string
	BusinessType   string
	OperatingAreas string
	ScrapeTypes    []string
	Documents      Documents
}

// Profile is the contact view other modules read for autofill.
type Profile struct {
	ID              types.ID
	FullName        string
	PhoneNumber     string
	IsPhoneVerified bool
}

func (a *Account) merge(attrs Attributes) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if attrs.PhoneNumber != "" && !samePhone(attrs.PhoneNumber, a.PhoneNumber) {
		// A new number has to be verified on its own.
		a.IsPhoneVerified = false
		a.IsVerified = a.IsEmailVerified
	}
	set(&a.FullName, attrs.FullName)
	set(&a.PhoneNumber, attrs.PhoneNumber)
	set(&a.Address, attrs.Address)
	set(&a.City, attrs.City)
	set(&a.BusinessName, attrs.BusinessName)
	set(&a.BusinessType, attrs.BusinessType)
	set(&a.OperatingAreas, attrs.OperatingAreas)
	set(&a.Documents.IDProof, attrs.Documents.IDProof)
	set(&a.Documents.VendorIDProof, attrs.Documents.VendorIDProof)
	set(&a.Documents.BusinessLicense, attrs.Documents.BusinessLicense)
	set(&a.Documents.GSTCertificate, attrs.Documents.GSTCertificate)
	set(&a.Documents.AddressProof, attrs.Documents.AddressProof)
	if len(attrs.ScrapeTypes) > 0 {
		a.ScrapeTypes = dedupe(attrs.ScrapeTypes)
	}
	if a.ScrapeTypes == nil {
		a.ScrapeTypes = []string{}
	}
}

func (a *Account) grant(r access.Role) {
	switch r {
	case access.RoleClient:
		a.IsClient = true
	case access.RoleSeller:
		a.IsSeller = true
	}
}

func (a *Account) Snapshot() auth.Snapshot {
	return auth.Snapshot{
		ID:              string(a.ID),
		Email:           a.Email,
		FullName:        a.FullName,
		PhoneNumber:     a.PhoneNumber,
		IsClient:        a.IsClient,
		IsSeller:        a.IsSeller,
		IsVerified:      a.IsVerified,
		IsPhoneVerified: a.IsPhoneVerified,
		IsEmailVerified: a.IsEmailVerified,
	}
}

func (a *Account) Actor() access.Actor {
	return access.Actor{ID: a.ID, Email: a.Email, IsClient: a.IsClient, IsSeller: a.IsSeller}
}

func samePhone(a, b string) bool {
	return otp.NormalizeContact(a, otp.ChannelSMS, "") == otp.NormalizeContact(b, otp.ChannelSMS, "")
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
