package domain

// CandidateSide names one of the two per-call candidate collections.
type CandidateSide string

const (
	OfferCandidates  CandidateSide = "offerCandidates"
	AnswerCandidates CandidateSide = "answerCandidates"
)

func (s CandidateSide) Valid() bool {
	return s == OfferCandidates || s == AnswerCandidates
}

// Candidate mirrors the RTCIceCandidateInit JSON shape browsers exchange.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}
