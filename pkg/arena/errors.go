package arena

import "github.com/rotisserie/eris"

var (
	ErrAlreadyInMatch = eris.New("player already in match")
	ErrMatchNotFound  = eris.New("match not found")
	ErrUnitNotFound   = eris.New("unit not found")
	ErrNotParticipant = eris.New("not a participant in this match")
	ErrNotOwner       = eris.New("not your unit")
	ErrInvalidPhase   = eris.New("match not in required phase")
	ErrPlayerNotFound = eris.New("player not found")
)

var domainErrors = []error{
	ErrAlreadyInMatch,
	ErrMatchNotFound,
	ErrUnitNotFound,
	ErrNotParticipant,
	ErrNotOwner,
	ErrInvalidPhase,
	ErrPlayerNotFound,
}

// IsDomainError reports whether err is a rejection of the caller's request rather than an internal failure.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if eris.Is(err, target) {
			return true
		}
	}
	return false
}
