package reputation

// UserReputation tracks the star balance backing a user's standing in the
// protocol. Stars move between Stars and StarsAtStake while vouches are
// open; they are never duplicated.
type UserReputation struct {
	Stars        uint32      `json:"stars"`
	StarsAtStake uint32      `json:"starsAtStake"`
	CreationTime uint64      `json:"creationTime"`
	Banned       bool        `json:"banned"`
	VouchHistory []VouchStat `json:"vouchHistory,omitempty"`
}

// VouchStat records the outcome of a single vouch for audit queries.
type VouchStat struct {
	Borrower   string `json:"borrower"`
	Successful bool   `json:"successful"`
}
