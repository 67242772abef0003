package domain

// Descriptor is a resource found on an index page. URL is its identity.
type Descriptor struct {
	Name string `json:"name"`
	URL  string `json:"url" validate:"required,url"`
	Ext  string `json:"ext" validate:"max=4"`
}

// Record is a ledger entry tracking the download state of one Descriptor.
type Record struct {
	Name      string       `json:"name"`
	URL       string       `json:"url"`
	Ext       string       `json:"ext"`
	Status    RecordStatus `json:"status"`
	FinalFile string       `json:"final_file,omitempty"`
}

// NewRecord creates a Missing record for a freshly discovered descriptor.
func NewRecord(d Descriptor) Record {
	return Record{
		Name:   d.Name,
		URL:    d.URL,
		Ext:    d.Ext,
		Status: StatusMissing,
	}
}

// Counts is a per-status tally of ledger records.
type Counts struct {
	Missing    int `json:"missing"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Total      int `json:"total"`
}

// Add tallies one record status.
func (c *Counts) Add(s RecordStatus) {
	switch s {
	case StatusMissing:
		c.Missing++
	case StatusInProgress:
		c.InProgress++
	case StatusDone:
		c.Done++
	}
	c.Total++
}
