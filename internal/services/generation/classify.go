package generation

import (
	"errors"
	"net/http"
	"strings"

	"atelier/internal/services"
)

var errMissingKey = errors.New("no api key selected")

// Body fragments the service uses when the selected key is unusable.
var credentialPhrases = []string{
	"entity not found",
	"api key",
	"permission denied",
	"unauthenticated",
}

// classify tags a raw failure with ErrCredential or ErrTransport.
func classify(op string, err error) error {
	if isCredentialFailure(err) {
		return services.Wrap(services.ErrCredential, "generation", op, "credential rejected", err)
	}
	return services.Wrap(services.ErrTransport, "generation", op, "request failed", err)
}

func isCredentialFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errMissingKey) {
		return true
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden {
			return true
		}
		return mentionsCredential(statusErr.Body)
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return mentionsCredential(apiErr.Code + " " + apiErr.Message)
	}
	return false
}

func mentionsCredential(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range credentialPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
