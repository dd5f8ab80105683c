package smd

import (
	"encoding/json"
	"fmt"
	"os"
)

// Credentials is the authorization record for a Share My Data third party.
// It is loaded once at session start and never mutated afterwards.
//
// The on-disk form is a JSON object with exactly these fields:
//
//	{
//	    "third_party_id": string,
//	    "client_id": string,
//	    "client_secret": string,
//	    "cert_crt_path": string,
//	    "cert_key_path": string
//	}
type Credentials struct {
	ThirdPartyID string `json:"third_party_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CertPath     string `json:"cert_crt_path"`
	KeyPath      string `json:"cert_key_path"`
}

// LoadCredentials reads the credential record from path. A missing or
// malformed file is a configuration error; there is no fallback.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading credentials: %v", ErrConfiguration, err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: parsing credentials: %v", ErrConfiguration, err)
	}

	if err := creds.validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

// validate checks the fields a session cannot run without. The third-party
// id may be absent; the registration flow discovers it.
func (c *Credentials) validate() error {
	switch {
	case c.ClientID == "":
		return fmt.Errorf("%w: missing client_id", ErrConfiguration)
	case c.ClientSecret == "":
		return fmt.Errorf("%w: missing client_secret", ErrConfiguration)
	case c.CertPath == "":
		return fmt.Errorf("%w: missing cert_crt_path", ErrConfiguration)
	case c.KeyPath == "":
		return fmt.Errorf("%w: missing cert_key_path", ErrConfiguration)
	}
	return nil
}
