package discord

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrRateLimited - the platform asked us to slow down.
	ErrRateLimited = errors.New("rate limited")

	// ErrInaccessible - the bot lacks permission or the target is gone.
	// Callers must not retry; the crawler marks the channel instead.
	ErrInaccessible = errors.New("inaccessible")

	// ErrTransient - a network or server-side failure worth retrying.
	ErrTransient = errors.New("transient failure")
)

// classify maps a platform error onto the archiver's error taxonomy.
// Unknown errors come back as transient, which errs on the side of retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var rateLimit *discordgo.RateLimitError
	if errors.As(err, &rateLimit) {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrInaccessible, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// retryAfter extracts the server-provided wait from a rate limit error,
// or zero when the error carries none.
func retryAfter(err error) time.Duration {
	var rateLimit *discordgo.RateLimitError
	if errors.As(err, &rateLimit) {
		return rateLimit.RetryAfter
	}
	return 0
}
