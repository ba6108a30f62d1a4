// Package payload defines the structured request artifact built for each
// inbound message and handed to the final synthesis call.
package payload

import "encoding/json"

// UserProfile carries the inferred traits of the requesting user.
type UserProfile struct {
	ExpertiseLvl       string `json:"expertise_lvl"`
	CommunicationStyle string `json:"communication_style"`
}

// RequestPayload is the enrichment artifact. Built fresh per inbound message
// and discarded after the reply. Each pipeline stage sets its own field
// directly; there is no field-name dispatch.
type RequestPayload struct {
	Request     string      `json:"request"`
	Cache       []string    `json:"cache"`
	Context     string      `json:"context"`
	Viewpoints  []string    `json:"viewpoints"`
	UserProfile UserProfile `json:"user_profile"`
}

// New returns an empty payload whose slices serialize as [] rather than null.
func New() *RequestPayload {
	return &RequestPayload{
		Cache:      []string{},
		Viewpoints: []string{},
	}
}

// Pretty renders the payload as indented JSON for the synthesis prompt.
func (p *RequestPayload) Pretty() (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
