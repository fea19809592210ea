package model

// SubscriptionPatch carries the fields of a partial subscription update.
// A nil field is absent and left untouched.
type SubscriptionPatch struct {
	DomainName         *string             `json:"domain_name,omitempty"`
	TenantURL          *string             `json:"tenant_url,omitempty"`
	TenantAPIURL       *string             `json:"tenant_api_url,omitempty"`
	PackageID          *string             `json:"package_id,omitempty"`
	SubscriptionTypeID *string             `json:"subscription_type_id,omitempty"`
	NumberOfStores     *int                `json:"number_of_stores,omitempty"`
	Status             *SubscriptionStatus `json:"status,omitempty"`
}

// IsEmpty reports whether no field is present
func (p SubscriptionPatch) IsEmpty() bool {
	return p.DomainName == nil && p.TenantURL == nil && p.TenantAPIURL == nil &&
		p.PackageID == nil && p.SubscriptionTypeID == nil && p.NumberOfStores == nil &&
		p.Status == nil
}

// Apply copies every present field onto s
func (p SubscriptionPatch) Apply(s *Subscription) {
	if p.DomainName != nil {
		s.DomainName = *p.DomainName
	}
	if p.TenantURL != nil {
		s.TenantURL = *p.TenantURL
	}
	if p.TenantAPIURL != nil {
		s.TenantAPIURL = *p.TenantAPIURL
	}
	if p.PackageID != nil {
		s.PackageID = *p.PackageID
	}
	if p.SubscriptionTypeID != nil {
		s.SubscriptionTypeID = *p.SubscriptionTypeID
	}
	if p.NumberOfStores != nil {
		s.NumberOfStores = *p.NumberOfStores
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
}

// Mirror copies onto l the landlord fields whose source field is present in
// the patch, taking values from the already-updated subscription s. It
// returns the landlord field names that were written.
func (p SubscriptionPatch) Mirror(l *Landlord, s *Subscription) []string {
	var fields []string
	if p.PackageID != nil {
		l.PackageID = s.PackageID
		fields = append(fields, "package_id")
	}
	if p.TenantURL != nil {
		l.Domain = s.TenantURL
		fields = append(fields, "domain")
	}
	if p.TenantAPIURL != nil {
		l.APIURL = s.TenantAPIURL
		fields = append(fields, "api_url")
	}
	if p.DomainName != nil {
		l.URL = s.DomainName
		fields = append(fields, "url")
	}
	if p.NumberOfStores != nil {
		l.Outlets = s.NumberOfStores
		fields = append(fields, "outlets")
	}
	if p.Status != nil {
		l.Status = Project(s.Status)
		fields = append(fields, "status")
	}
	return fields
}

// StatusPatch is a patch that only sets the status
func StatusPatch(status SubscriptionStatus) SubscriptionPatch {
	return SubscriptionPatch{Status: &status}
}
