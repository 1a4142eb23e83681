package sejmapi

// Term is a numbered parliamentary term (kadencja).
type Term struct {
	Num     int    `json:"num"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Current bool   `json:"current"`
}

// Sitting is a numbered multi-day session (posiedzenie) within a term.
type Sitting struct {
	Number  int      `json:"number"`
	Title   string   `json:"title,omitempty"`
	Dates   []string `json:"dates"`
	Current bool     `json:"current"`
}

// Statement is one contiguous speech by one speaker on one sitting day.
// Num is unique per (term, sitting, date) and its ordering is canonical.
type Statement struct {
	Num           int    `json:"num"`
	Name          string `json:"name"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Function      string `json:"function,omitempty"`
	Club          string `json:"club,omitempty"`
	StartDateTime string `json:"startDateTime,omitempty"`
	EndDateTime   string `json:"endDateTime,omitempty"`
}

// StatementList is the per-day transcript index.
type StatementList struct {
	Statements []Statement `json:"statements"`
}

// Member is a canonical MP identity.
type Member struct {
	ID           int    `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Club         string `json:"club,omitempty"`
	DistrictName string `json:"districtName,omitempty"`
	Voivodeship  string `json:"voivodeship,omitempty"`
	Profession   string `json:"profession,omitempty"`
	Email        string `json:"email,omitempty"`
	Active       bool   `json:"active"`
}

// FullName joins first and last name with a single space.
func (m Member) FullName() string {
	if m.FirstName == "" {
		return m.LastName
	}
	return m.FirstName + " " + m.LastName
}

// Club is a parliamentary caucus.
type Club struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MembersCount int    `json:"membersCount,omitempty"`
	Email        string `json:"email,omitempty"`
	Fax          string `json:"fax,omitempty"`
	Phone        string `json:"phone,omitempty"`
}
