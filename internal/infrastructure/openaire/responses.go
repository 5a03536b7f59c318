package openaire

// tokenResponse is the OAuth2 client-credentials grant reply.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// searchHeader is shared by all graph API search endpoints.
type searchHeader struct {
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Size       int    `json:"size"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// organizationSearchResponse is the /organizations reply used for ROR
// resolution.
type organizationSearchResponse struct {
	searchHeader
	Results []organizationRecord `json:"results"`
}

type organizationRecord struct {
	ID         string `json:"id"`
	LegalName  string `json:"legalname"`
	LegalShort string `json:"legalshortname"`
}

// resultSearchResponse is the /results reply for publication queries.
type resultSearchResponse struct {
	searchHeader
	Results []resultRecord `json:"results"`
}

type resultRecord struct {
	ID               string `json:"id"`
	Title            string `json:"maintitle"`
	PublicationDate  string `json:"publicationdate"`
	DateOfCollection string `json:"dateofcollection"`
}

// datasourceSearchResponse is the /dataSources reply.
type datasourceSearchResponse struct {
	searchHeader
	Results []datasourceRecord `json:"results"`
}

type datasourceRecord struct {
	ID               string `json:"id"`
	OfficialName     string `json:"officialname"`
	Type             string `json:"datasourcetype"`
	DateOfValidation string `json:"dateofvalidation"`
	DateOfCollection string `json:"dateofcollection"`
}
