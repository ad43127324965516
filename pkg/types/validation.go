package types

// Session ids are short opaque tokens; anything longer is not one of ours.
const maxSessionIDLength = 64

// Validate checks the join payload.
func (e *JoinSession) Validate() error {
	return validateSessionID(e.SessionID)
}

// Validate checks the code-change payload. An empty document is a legal
// edit; an absent one is not.
func (e *CodeChange) Validate() error {
	if err := validateSessionID(e.SessionID); err != nil {
		return err
	}
	if e.Document == nil {
		return ErrMissingDocument
	}
	return nil
}

// Validate checks the language-change payload.
func (e *LanguageChange) Validate() error {
	if err := validateSessionID(e.SessionID); err != nil {
		return err
	}
	if e.Language == "" {
		return ErrMissingLanguage
	}
	return nil
}

func validateSessionID(id string) error {
	if id == "" {
		return ErrMissingSessionID
	}
	if len(id) > maxSessionIDLength {
		return ErrSessionIDTooLong
	}
	return nil
}
