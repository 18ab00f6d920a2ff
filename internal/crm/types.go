package crm

// Contact mirrors the subset of CRM contact properties the agent reads
// and writes.
type Contact struct {
	ID         string            `json:"id"`
	Properties ContactProperties `json:"properties"`
}

// ContactProperties are the flat property bag the CRM stores per contact.
type ContactProperties struct {
	FirstName          string `json:"firstname,omitempty"`
	LastName           string `json:"lastname,omitempty"`
	Email              string `json:"email,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Address            string `json:"address,omitempty"`
	Postcode           string `json:"zip,omitempty"`
	ProjectType        string `json:"project_type,omitempty"`
	ProjectDescription string `json:"project_description,omitempty"`
	Timeline           string `json:"project_timeline,omitempty"`
	BudgetRange        string `json:"budget_range,omitempty"`
	PropertyType       string `json:"property_type,omitempty"`
	LeadScore          string `json:"lead_score,omitempty"`
	LeadTier           string `json:"lead_tier,omitempty"`
	LeadSource         string `json:"lead_source,omitempty"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchResponse struct {
	Total   int       `json:"total"`
	Results []Contact `json:"results"`
}

type contactRequest struct {
	Properties ContactProperties `json:"properties"`
}

type engagementRequest struct {
	Properties   map[string]string `json:"properties"`
	Associations []association     `json:"associations,omitempty"`
}

type association struct {
	To struct {
		ID string `json:"id"`
	} `json:"to"`
	Types []associationType `json:"types"`
}

type associationType struct {
	Category string `json:"associationCategory"`
	TypeID   int    `json:"associationTypeId"`
}

type dealRequest struct {
	Properties   map[string]string `json:"properties"`
	Associations []association     `json:"associations,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}
